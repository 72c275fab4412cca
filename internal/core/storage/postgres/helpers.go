package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	v1 "github.com/aevon-lab/analytics/internal/api/v1"
)

// marshalPayload encodes the event payload for the JSONB column.
// A nil payload is stored as an empty object, never as JSON null.
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

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEventRow scans one analytics_events row into an Event.
// Compatible with both sql.Row (single) and sql.Rows (multiple).
func scanEventRow(row scanner) (*v1.Event, error) {
	var evt v1.Event
	var tenantID sql.NullString
	var payloadJSON []byte

	err := row.Scan(
		&evt.ID,
		&evt.EventType,
		&evt.Source,
		&evt.OccurredAt,
		&evt.IngestedAt,
		&tenantID,
		&payloadJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event row: %w", err)
	}

	evt.OccurredAt = evt.OccurredAt.UTC()
	evt.IngestedAt = evt.IngestedAt.UTC()
	if tenantID.Valid {
		tenant := tenantID.String
		evt.TenantID = &tenant
	}

	if err := json.Unmarshal(payloadJSON, &evt.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return &evt, nil
}
