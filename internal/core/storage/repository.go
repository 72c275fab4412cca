package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/aevon-lab/analytics/internal/api/v1"
)

var (
	// ErrDuplicate is returned when an event with the same id already exists.
	ErrDuplicate = errors.New("event already exists")

	// ErrPersistence wraps every failed repository write.
	ErrPersistence = errors.New("persistence failure")
)

// BucketCount is the number of events whose occurred_at falls in the bucket
// starting at BucketStart.
type BucketCount struct {
	BucketStart time.Time
	Count       int64
}

// EventRepository is the durable storage contract for canonical events.
// Implementations must be safe for one writer and many concurrent readers,
// and each write call is atomic for its own event(s).
type EventRepository interface {
	// Save persists one event.
	Save(ctx context.Context, event *v1.Event) error

	// BulkSave persists many events in one atomic write. Empty input is a no-op.
	BulkSave(ctx context.Context, events []*v1.Event) error

	// RecentEvents returns up to limit events ordered by occurred_at descending.
	RecentEvents(ctx context.Context, limit int) ([]*v1.Event, error)

	// CountByType maps event_type to the number of events with occurred_at in [start, end].
	CountByType(ctx context.Context, start, end time.Time) (map[string]int64, error)

	// TimeSeriesCount groups events with occurred_at in [start, end] into epoch-aligned
	// buckets of intervalMinutes. Only non-empty buckets are returned, ascending.
	TimeSeriesCount(ctx context.Context, start, end time.Time, intervalMinutes int) ([]BucketCount, error)
}

// IntervalSeconds clamps a bucket interval to at least one minute and returns it in seconds.
func IntervalSeconds(intervalMinutes int) int64 {
	if intervalMinutes < 1 {
		intervalMinutes = 1
	}
	return int64(intervalMinutes) * 60
}
