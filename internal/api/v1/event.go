package v1

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aevon-lab/analytics/internal/core/timestamp"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrValidation marks a command that fails the structural constraints.
var ErrValidation = errors.New("invalid analytics event command")

// commandValidator reads the same `binding` tags gin uses, so stream-sourced
// commands are held to the exact rules the HTTP binding enforces.
var commandValidator = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	return v
}()

// Event is the canonical analytics event.
// It is created by NewEvent and never mutated afterwards; corrections are new events.
type Event struct {
	// ID is generated at normalization time, never supplied by upstream.
	ID uuid.UUID `json:"id"`

	// EventType is the semantic tag, e.g. "challenges.solution-completed".
	EventType string `json:"eventType"`

	// Source names the originating upstream service.
	Source string `json:"source"`

	// OccurredAt comes from the upstream payload's own timestamp, always in UTC.
	OccurredAt time.Time `json:"occurredAt"`

	// Payload holds the original upstream fields plus the decoded "<field>Iso" key.
	Payload map[string]interface{} `json:"payload"`

	// TenantID partitions events per tenant. Nil unless present on the inbound command.
	TenantID *string `json:"tenantId"`

	// IngestedAt is the processing wall clock. Clock skew means it may precede OccurredAt.
	IngestedAt time.Time `json:"ingestedAt"`
}

// RecordEventCommand is the normalized request to persist one event.
type RecordEventCommand struct {
	EventType  string                 `json:"eventType" binding:"required,min=1,max=120"`
	Source     string                 `json:"source" binding:"required,min=1,max=120"`
	OccurredAt *time.Time             `json:"occurredAt"`
	Payload    map[string]interface{} `json:"payload" binding:"required"`
	TenantID   *string                `json:"tenantId" binding:"omitempty,max=64"`
}

// UnmarshalJSON decodes occurredAt with the ISO-8601 decoder, so offset-less
// values are read as UTC. Payload numbers are kept as json.Number.
func (c *RecordEventCommand) UnmarshalJSON(data []byte) error {
	type plain RecordEventCommand
	var wire struct {
		*plain
		OccurredAt *string `json:"occurredAt"`
	}
	wire.plain = (*plain)(c)

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&wire); err != nil {
		return err
	}

	c.OccurredAt = nil
	if wire.OccurredAt == nil {
		return nil
	}
	occurredAt, err := timestamp.FromISO(*wire.OccurredAt)
	if err != nil {
		return fmt.Errorf("occurredAt: %w", err)
	}
	c.OccurredAt = &occurredAt
	return nil
}

// Validate checks the structural constraints of the command.
func (c *RecordEventCommand) Validate() error {
	if err := commandValidator.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%w: %s failed on %q", ErrValidation, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// NewEvent builds the canonical event for a validated command.
// It stamps the id and ingestion time, defaults OccurredAt to now and
// normalizes both to UTC at microsecond precision, the resolution every store keeps.
func NewEvent(cmd RecordEventCommand, now time.Time) *Event {
	occurredAt := now
	if cmd.OccurredAt != nil && !cmd.OccurredAt.IsZero() {
		occurredAt = *cmd.OccurredAt
	}

	return &Event{
		ID:         uuid.New(),
		EventType:  cmd.EventType,
		Source:     cmd.Source,
		OccurredAt: occurredAt.UTC().Truncate(time.Microsecond),
		Payload:    cmd.Payload,
		TenantID:   cmd.TenantID,
		IngestedAt: now.UTC().Truncate(time.Microsecond),
	}
}

// EventView is the display form of an event: strings and primitives only.
type EventView struct {
	ID         string                 `json:"id"`
	EventType  string                 `json:"eventType"`
	Source     string                 `json:"source"`
	OccurredAt string                 `json:"occurredAt"`
	TenantID   *string                `json:"tenantId"`
	Payload    map[string]interface{} `json:"payload"`
}

// View reshapes the event for read-model responses.
func (e *Event) View() EventView {
	return EventView{
		ID:         e.ID.String(),
		EventType:  e.EventType,
		Source:     e.Source,
		OccurredAt: timestamp.FormatISO(e.OccurredAt),
		TenantID:   e.TenantID,
		Payload:    e.Payload,
	}
}

// RecordedEvent is the acknowledgement returned after recording an event.
type RecordedEvent struct {
	ID         string  `json:"id"`
	EventType  string  `json:"eventType"`
	Source     string  `json:"source"`
	OccurredAt string  `json:"occurredAt"`
	IngestedAt string  `json:"ingestedAt"`
	TenantID   *string `json:"tenantId"`
}

// Recorded builds the acknowledgement shape for the event.
func (e *Event) Recorded() RecordedEvent {
	return RecordedEvent{
		ID:         e.ID.String(),
		EventType:  e.EventType,
		Source:     e.Source,
		OccurredAt: timestamp.FormatISO(e.OccurredAt),
		IngestedAt: timestamp.FormatISO(e.IngestedAt),
		TenantID:   e.TenantID,
	}
}
