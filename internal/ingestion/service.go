package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/aevon-lab/analytics/internal/api/v1"
	"github.com/aevon-lab/analytics/internal/core/storage"
	"github.com/aevon-lab/analytics/internal/metrics"
	"github.com/aevon-lab/analytics/internal/stream"
	"github.com/gin-gonic/gin"
)

// Service records canonical events. It backs both the HTTP write endpoint and
// the stream consumer.
type Service struct {
	repo             storage.EventRepository
	recorder         metrics.Recorder
	nowFn            func() time.Time
	maxBodySizeBytes int64
	relay            stream.Publisher
}

// Option customizes a Service.
type Option func(*Service)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock overrides the ingestion wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithMaxBodySizeMB caps HTTP request bodies. Non-positive values keep the 1MB default.
func WithMaxBodySizeMB(mb int) Option {
	return func(s *Service) {
		if mb > 0 {
			s.maxBodySizeBytes = int64(mb) * 1024 * 1024
		}
	}
}

// WithStreamRelay exposes POST /analytics/stream, which publishes raw upstream
// messages onto pub. Used with the in-process memory stream.
func WithStreamRelay(pub stream.Publisher) Option {
	return func(s *Service) {
		s.relay = pub
	}
}

func NewService(repo storage.EventRepository, opts ...Option) *Service {
	if repo == nil {
		panic("ingestion: repository must not be nil")
	}
	s := &Service{
		repo:             repo,
		recorder:         metrics.NoopRecorder{},
		nowFn:            time.Now,
		maxBodySizeBytes: 1024 * 1024,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record validates the command, builds the canonical event and persists it.
// Validation failures wrap v1.ErrValidation; repository errors are returned wrapped.
func (s *Service) Record(ctx context.Context, cmd v1.RecordEventCommand) (*v1.Event, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	evt := v1.NewEvent(cmd, s.nowFn())
	if err := s.repo.Save(ctx, evt); err != nil {
		return nil, fmt.Errorf("failed to record event %s: %w", evt.ID, err)
	}

	s.recorder.IncEventRecorded(evt.EventType, evt.Source)
	slog.Debug("[Ingestion] Event recorded",
		"event_id", evt.ID,
		"event_type", evt.EventType,
		"source", evt.Source,
		"occurred_at", evt.OccurredAt)

	return evt, nil
}

// RegisterRoutes registers the write endpoints under the API version prefix.
func (s *Service) RegisterRoutes(r gin.IRouter, apiVersion string) {
	r.POST("/"+apiVersion+"/analytics/events", s.RecordHandler)
	if s.relay != nil {
		r.POST("/"+apiVersion+"/analytics/stream", s.RelayHandler)
	}
}
