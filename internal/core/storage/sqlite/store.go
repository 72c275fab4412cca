// Package sqlite is an embedded storage.EventRepository backed by modernc.org/sqlite.
// Timestamps are stored as unix microseconds so range scans and bucketing stay integer math.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	v1 "github.com/aevon-lab/analytics/internal/api/v1"
	"github.com/aevon-lab/analytics/internal/core/storage"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Register sqlite driver
)

const (
	queryInsertEvent = `
		INSERT INTO analytics_events (
			id, event_type, source, occurred_us, ingested_us, tenant_id, payload
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`

	queryRecentEvents = `
		SELECT id, event_type, source, occurred_us, ingested_us, tenant_id, payload
		FROM analytics_events
		ORDER BY occurred_us DESC
		LIMIT ?
	`

	queryCountByType = `
		SELECT event_type, COUNT(*)
		FROM analytics_events
		WHERE occurred_us BETWEEN ? AND ?
		GROUP BY event_type
	`

	// SQLite's % keeps the dividend's sign; ((x % w) + w) % w is the floor modulus.
	queryTimeSeriesCount = `
		SELECT occurred_us - (((occurred_us % ?1) + ?1) % ?1) AS bucket_us, COUNT(*)
		FROM analytics_events
		WHERE occurred_us BETWEEN ?2 AND ?3
		GROUP BY bucket_us
		ORDER BY bucket_us
	`

	querySchemaExists = `
		SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'analytics_events'
	`
)

// Store implements storage.EventRepository on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens a SQLite database. ":memory:" gives a private in-process database.
//
// The connection pool is pinned to one connection: SQLite serializes writers anyway,
// and an in-memory database exists only on the connection that created it.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	if dsn != ":memory:" && !strings.Contains(dsn, "_pragma=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	slog.Info("[SQLite] Database opened", "dsn", dsn)
	return &Store{db: db}, nil
}

// ValidateSchema checks that migrations created the events table.
func (s *Store) ValidateSchema(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, querySchemaExists).Scan(&count); err != nil {
		return fmt.Errorf("failed to check schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("analytics_events table does not exist")
	}
	return nil
}

// Save persists one event.
func (s *Store) Save(ctx context.Context, event *v1.Event) error {
	return s.BulkSave(ctx, []*v1.Event{event})
}

// BulkSave persists events in one transaction. Empty input is a no-op.
func (s *Store) BulkSave(ctx context.Context, events []*v1.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", storage.ErrPersistence, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, event := range events {
		payloadJSON, err := marshalPayload(event)
		if err != nil {
			return fmt.Errorf("%w: %w", storage.ErrPersistence, err)
		}

		var tenant sql.NullString
		if event.TenantID != nil {
			tenant = sql.NullString{String: *event.TenantID, Valid: true}
		}

		res, err := tx.ExecContext(ctx, queryInsertEvent,
			event.ID.String(),
			event.EventType,
			event.Source,
			event.OccurredAt.UnixMicro(),
			event.IngestedAt.UnixMicro(),
			tenant,
			string(payloadJSON),
		)
		if err != nil {
			return fmt.Errorf("%w: failed to save event %s: %w", storage.ErrPersistence, event.ID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: %w", storage.ErrPersistence, err)
		}
		if affected == 0 {
			return storage.ErrDuplicate
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit events: %w", storage.ErrPersistence, err)
	}

	slog.Debug("[SQLite] Saved events", "count", len(events))
	return nil
}

// RecentEvents returns up to limit events ordered by occurred_at descending.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]*v1.Event, error) {
	rows, err := s.db.QueryContext(ctx, queryRecentEvents, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	var events []*v1.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// CountByType counts events per type with occurred_at in [start, end].
func (s *Store) CountByType(ctx context.Context, start, end time.Time) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, queryCountByType, start.UnixMicro(), end.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("failed to count events by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		counts[eventType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating type counts: %w", err)
	}
	return counts, nil
}

// TimeSeriesCount returns non-empty epoch-aligned buckets in ascending order.
func (s *Store) TimeSeriesCount(ctx context.Context, start, end time.Time, intervalMinutes int) ([]storage.BucketCount, error) {
	widthMicros := storage.IntervalSeconds(intervalMinutes) * int64(time.Second/time.Microsecond)

	rows, err := s.db.QueryContext(ctx, queryTimeSeriesCount, widthMicros, start.UnixMicro(), end.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("failed to query time series: %w", err)
	}
	defer rows.Close()

	var buckets []storage.BucketCount
	for rows.Next() {
		var bucketMicros, count int64
		if err := rows.Scan(&bucketMicros, &count); err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		buckets = append(buckets, storage.BucketCount{
			BucketStart: time.UnixMicro(bucketMicros).UTC(),
			Count:       count,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating buckets: %w", err)
	}
	return buckets, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB returns the underlying *sql.DB, shared with the migration runner.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close sqlite database: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (*v1.Event, error) {
	var (
		id                     string
		evt                    v1.Event
		occurredUs, ingestedUs int64
		tenantID               sql.NullString
		payloadJSON            string
	)
	if err := row.Scan(&id, &evt.EventType, &evt.Source, &occurredUs, &ingestedUs, &tenantID, &payloadJSON); err != nil {
		return nil, fmt.Errorf("failed to scan event row: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid event id %q: %w", id, err)
	}
	evt.ID = parsed
	evt.OccurredAt = time.UnixMicro(occurredUs).UTC()
	evt.IngestedAt = time.UnixMicro(ingestedUs).UTC()
	if tenantID.Valid {
		tenant := tenantID.String
		evt.TenantID = &tenant
	}
	if err := json.Unmarshal([]byte(payloadJSON), &evt.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &evt, nil
}

func marshalPayload(event *v1.Event) ([]byte, error) {
	if event.Payload == nil {
		return []byte(`{}`), nil
	}
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return payloadJSON, nil
}

var _ storage.EventRepository = (*Store)(nil)
