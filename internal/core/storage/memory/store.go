// Package memory is an in-process EventRepository used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	v1 "github.com/aevon-lab/analytics/internal/api/v1"
	coreagg "github.com/aevon-lab/analytics/internal/core/aggregation"
	"github.com/aevon-lab/analytics/internal/core/storage"
	"github.com/google/uuid"
)

// Store keeps events in memory. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	events []*v1.Event
	ids    map[uuid.UUID]struct{}
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{ids: make(map[uuid.UUID]struct{})}
}

func (s *Store) Save(ctx context.Context, event *v1.Event) error {
	return s.BulkSave(ctx, []*v1.Event{event})
}

func (s *Store) BulkSave(ctx context.Context, events []*v1.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrPersistence, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[uuid.UUID]struct{}, len(events))
	for _, evt := range events {
		if _, ok := s.ids[evt.ID]; ok {
			return fmt.Errorf("%w: event %s", storage.ErrDuplicate, evt.ID)
		}
		if _, ok := seen[evt.ID]; ok {
			return fmt.Errorf("%w: event %s", storage.ErrDuplicate, evt.ID)
		}
		seen[evt.ID] = struct{}{}
	}

	for _, evt := range events {
		stored := *evt
		s.events = append(s.events, &stored)
		s.ids[evt.ID] = struct{}{}
	}
	return nil
}

func (s *Store) RecentEvents(ctx context.Context, limit int) ([]*v1.Event, error) {
	if limit <= 0 {
		return []*v1.Event{}, nil
	}

	s.mu.RLock()
	sorted := make([]*v1.Event, len(s.events))
	copy(sorted, s.events)
	s.mu.RUnlock()

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.After(sorted[j].OccurredAt)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]*v1.Event, len(sorted))
	for i, evt := range sorted {
		cp := *evt
		out[i] = &cp
	}
	return out, nil
}

func (s *Store) CountByType(ctx context.Context, start, end time.Time) (map[string]int64, error) {
	window := coreagg.Window{Start: start, End: end}
	counts := make(map[string]int64)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, evt := range s.events {
		if window.Contains(evt.OccurredAt) {
			counts[evt.EventType]++
		}
	}
	return counts, nil
}

func (s *Store) TimeSeriesCount(ctx context.Context, start, end time.Time, intervalMinutes int) ([]storage.BucketCount, error) {
	window := coreagg.Window{Start: start, End: end}
	width := time.Duration(storage.IntervalSeconds(intervalMinutes)) * time.Second
	counts := make(map[int64]int64)

	s.mu.RLock()
	for _, evt := range s.events {
		if window.Contains(evt.OccurredAt) {
			counts[coreagg.BucketFor(evt.OccurredAt, width).Unix()]++
		}
	}
	s.mu.RUnlock()

	buckets := make([]storage.BucketCount, 0, len(counts))
	for bucket, count := range counts {
		buckets = append(buckets, storage.BucketCount{
			BucketStart: time.Unix(bucket, 0).UTC(),
			Count:       count,
		})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].BucketStart.Before(buckets[j].BucketStart)
	})
	return buckets, nil
}

// Len reports how many events are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
