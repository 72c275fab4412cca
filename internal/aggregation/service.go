// Package aggregation serves read-only summaries over stored events.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	v1 "github.com/aevon-lab/analytics/internal/api/v1"
	coreagg "github.com/aevon-lab/analytics/internal/core/aggregation"
	"github.com/aevon-lab/analytics/internal/core/storage"
	"github.com/aevon-lab/analytics/internal/core/timestamp"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidQuery marks request validation errors that should return HTTP 400.
var ErrInvalidQuery = errors.New("invalid analytics query")

// Config bounds the query parameters.
type Config struct {
	DefaultWindowMinutes int
	MinWindowMinutes     int
	MaxWindowMinutes     int
	DefaultRecentLimit   int
	MaxRecentLimit       int
}

// DefaultConfig mirrors the public API defaults.
func DefaultConfig() Config {
	return Config{
		DefaultWindowMinutes: 60,
		MinWindowMinutes:     5,
		MaxWindowMinutes:     7 * 24 * 60,
		DefaultRecentLimit:   50,
		MaxRecentLimit:       500,
	}
}

// Summary is the event summary over one window.
type Summary struct {
	WindowStart       string           `json:"windowStart"`
	WindowEnd         string           `json:"windowEnd"`
	EventsPerType     map[string]int64 `json:"eventsPerType"`
	EventsPerInterval []IntervalCount  `json:"eventsPerInterval"`
}

// IntervalCount is one non-empty time-series bucket.
type IntervalCount struct {
	BucketStart string `json:"bucketStart"`
	Count       int64  `json:"count"`
}

// RecentEvents is the recent-events listing.
type RecentEvents struct {
	Items []v1.EventView `json:"items"`
	Count int            `json:"count"`
}

// Service derives summaries from the event repository. It never writes.
type Service struct {
	repo  storage.EventRepository
	cfg   Config
	nowFn func() time.Time
}

// NewService creates an aggregation service. Zero config fields take DefaultConfig values.
func NewService(repo storage.EventRepository, cfg Config) *Service {
	if repo == nil {
		panic("aggregation: repository must not be nil")
	}
	return &Service{
		repo: repo,
		cfg:  cfg.withDefaults(),
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultWindowMinutes <= 0 {
		c.DefaultWindowMinutes = d.DefaultWindowMinutes
	}
	if c.MinWindowMinutes <= 0 {
		c.MinWindowMinutes = d.MinWindowMinutes
	}
	if c.MaxWindowMinutes <= 0 {
		c.MaxWindowMinutes = d.MaxWindowMinutes
	}
	if c.DefaultRecentLimit <= 0 {
		c.DefaultRecentLimit = d.DefaultRecentLimit
	}
	if c.MaxRecentLimit <= 0 {
		c.MaxRecentLimit = d.MaxRecentLimit
	}
	return c
}

// Summary counts events per type and per epoch-aligned bucket over the window
// [reference - windowMinutes, reference]. A nil reference means now.
// Buckets with no events are omitted.
func (s *Service) Summary(ctx context.Context, windowMinutes int, reference *time.Time) (*Summary, error) {
	minutes, err := coreagg.ParseWindowMinutes(windowMinutes, s.cfg.MinWindowMinutes, s.cfg.MaxWindowMinutes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	ref := s.nowFn()
	if reference != nil {
		ref = *reference
	}
	window := coreagg.WindowEndingAt(ref, minutes)
	bucketMinutes := coreagg.BucketMinutes(minutes)

	var (
		perType map[string]int64
		buckets []storage.BucketCount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.repo.CountByType(gctx, window.Start, window.End)
		if err != nil {
			return fmt.Errorf("failed to count events by type: %w", err)
		}
		perType = counts
		return nil
	})
	g.Go(func() error {
		series, err := s.repo.TimeSeriesCount(gctx, window.Start, window.End, bucketMinutes)
		if err != nil {
			return fmt.Errorf("failed to count events per interval: %w", err)
		}
		buckets = series
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if perType == nil {
		perType = map[string]int64{}
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].BucketStart.Before(buckets[j].BucketStart)
	})
	intervals := make([]IntervalCount, 0, len(buckets))
	for _, b := range buckets {
		if b.Count == 0 {
			continue
		}
		intervals = append(intervals, IntervalCount{
			BucketStart: timestamp.FormatISO(b.BucketStart),
			Count:       b.Count,
		})
	}

	return &Summary{
		WindowStart:       timestamp.FormatISO(window.Start),
		WindowEnd:         timestamp.FormatISO(window.End),
		EventsPerType:     perType,
		EventsPerInterval: intervals,
	}, nil
}

// RecentEvents returns up to limit of the most recently occurred events in display form.
func (s *Service) RecentEvents(ctx context.Context, limit int) (*RecentEvents, error) {
	if limit < 1 || limit > s.cfg.MaxRecentLimit {
		return nil, fmt.Errorf("%w: limit %d outside [1, %d]", ErrInvalidQuery, limit, s.cfg.MaxRecentLimit)
	}

	events, err := s.repo.RecentEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent events: %w", err)
	}

	items := make([]v1.EventView, 0, len(events))
	for _, e := range events {
		items = append(items, e.View())
	}
	return &RecentEvents{Items: items, Count: len(items)}, nil
}
