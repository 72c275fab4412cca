package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	v1 "github.com/aevon-lab/analytics/internal/api/v1"
	"github.com/aevon-lab/analytics/internal/core/storage"
	storagemocks "github.com/aevon-lab/analytics/internal/mocks/storage"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestService_Record(t *testing.T) {
	now := time.Date(2025, 11, 16, 18, 20, 0, 0, time.UTC)
	occurred := time.Date(2025, 11, 16, 18, 14, 0, 0, time.UTC)

	repo := storagemocks.NewEventRepository(t)
	repo.EXPECT().
		Save(mock.Anything, mock.MatchedBy(func(e *v1.Event) bool {
			return e.EventType == "iam.user-registered" &&
				e.Source == "iam-service" &&
				e.OccurredAt.Equal(occurred) &&
				e.IngestedAt.Equal(now)
		})).
		Return(nil).
		Once()

	svc := NewService(repo, WithClock(fixedClock(now)))
	evt, err := svc.Record(context.Background(), v1.RecordEventCommand{
		EventType:  "iam.user-registered",
		Source:     "iam-service",
		OccurredAt: &occurred,
		Payload:    map[string]interface{}{"userId": "u1"},
	})
	require.NoError(t, err)
	require.Equal(t, occurred, evt.OccurredAt)
	require.Equal(t, now, evt.IngestedAt)
}

func TestService_RecordValidationFailure(t *testing.T) {
	repo := storagemocks.NewEventRepository(t)
	svc := NewService(repo)

	tests := []struct {
		name string
		cmd  v1.RecordEventCommand
	}{
		{name: "missing event type", cmd: v1.RecordEventCommand{Source: "s", Payload: map[string]interface{}{}}},
		{name: "source too long", cmd: v1.RecordEventCommand{EventType: "e", Source: strings.Repeat("s", 121), Payload: map[string]interface{}{}}},
		{name: "missing payload", cmd: v1.RecordEventCommand{EventType: "e", Source: "s"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Record(context.Background(), tc.cmd)
			require.ErrorIs(t, err, v1.ErrValidation)
		})
	}
}

func TestService_RecordPersistenceFailure(t *testing.T) {
	repo := storagemocks.NewEventRepository(t)
	repo.EXPECT().
		Save(mock.Anything, mock.Anything).
		Return(errors.Join(storage.ErrPersistence, errors.New("connection refused"))).
		Once()

	svc := NewService(repo)
	_, err := svc.Record(context.Background(), v1.RecordEventCommand{
		EventType: "e",
		Source:    "s",
		Payload:   map[string]interface{}{},
	})
	require.ErrorIs(t, err, storage.ErrPersistence)
	require.NotErrorIs(t, err, v1.ErrValidation)
}

func TestNewService_PanicsOnNilRepository(t *testing.T) {
	require.Panics(t, func() { NewService(nil) })
}
