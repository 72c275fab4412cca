package postgres

// SQL queries for analytics event storage.

const (
	// querySaveEvent inserts one event.
	// ON CONFLICT DO NOTHING returns no rows (sql.ErrNoRows) for a duplicate id.
	querySaveEvent = `
		INSERT INTO analytics_events (
			id, event_type, source, occurred_at, ingested_at, tenant_id, payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
		RETURNING id
	`

	// queryRecentEvents lists the latest events by occurrence time.
	queryRecentEvents = `
		SELECT
			id, event_type, source, occurred_at, ingested_at, tenant_id, payload
		FROM analytics_events
		ORDER BY occurred_at DESC
		LIMIT $1
	`

	// queryCountByType counts events per type, both bounds inclusive.
	queryCountByType = `
		SELECT event_type, COUNT(*)
		FROM analytics_events
		WHERE occurred_at BETWEEN $1 AND $2
		GROUP BY event_type
	`

	// queryTimeSeriesCount floors epoch seconds to a multiple of $3 seconds, so
	// buckets are aligned to the epoch and not to $1. Empty buckets produce no row.
	queryTimeSeriesCount = `
		SELECT
			to_timestamp((floor(extract(epoch FROM occurred_at) / $3::numeric) * $3::numeric)::double precision) AS bucket,
			COUNT(*)
		FROM analytics_events
		WHERE occurred_at BETWEEN $1 AND $2
		GROUP BY bucket
		ORDER BY bucket
	`

	// querySchemaExists checks that migrations created the events table.
	querySchemaExists = `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = 'analytics_events'
		)
	`
)
