package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	v1 "github.com/aevon-lab/analytics/internal/api/v1"
	"github.com/aevon-lab/analytics/internal/classifier"
	"github.com/aevon-lab/analytics/internal/core/storage"
	"github.com/aevon-lab/analytics/internal/core/storage/memory"
	storagemocks "github.com/aevon-lab/analytics/internal/mocks/storage"
	"github.com/aevon-lab/analytics/internal/stream"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	iamPayload       = `{"userId":"u1","email":"a@b.com","firstName":"A","lastName":"B","provider":"local","registeredAt":[2025,11,16,18,14,0]}`
	executionPayload = `{"execution_id":"e1","status":"ok","timestamp":"2025-11-16T18:13:45.123456789Z"}`
)

func newTestConsumer(t *testing.T, s stream.Stream, repo storage.EventRepository) *Consumer {
	t.Helper()
	return NewConsumer(s, classifier.NewDefault(), NewService(repo), ConsumerConfig{Backoff: 10 * time.Millisecond})
}

func TestConsumer_ProcessOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		setupRepo func(repo *storagemocks.EventRepository)
		want      Outcome
	}{
		{
			name: "stored",
			body: iamPayload,
			setupRepo: func(repo *storagemocks.EventRepository) {
				repo.EXPECT().Save(mock.Anything, mock.Anything).Return(nil).Once()
			},
			want: OutcomeStored,
		},
		{name: "invalid json", body: `{"userId":`, want: OutcomeInvalidJSON},
		{name: "json array", body: `[1,2,3]`, want: OutcomeInvalidJSON},
		{name: "json null", body: `null`, want: OutcomeInvalidJSON},
		{name: "unknown schema", body: `{"hello":"world"}`, want: OutcomeUnknownSchema},
		{
			name: "classification failed",
			body: `{"guideId":"g1","challengeId":"c1","occurredAt":"not-a-number"}`,
			want: OutcomeClassificationFailed,
		},
		{
			name: "persist failed",
			body: executionPayload,
			setupRepo: func(repo *storagemocks.EventRepository) {
				repo.EXPECT().Save(mock.Anything, mock.Anything).
					Return(errors.Join(storage.ErrPersistence, errors.New("db down"))).
					Once()
			},
			want: OutcomePersistFailed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := storagemocks.NewEventRepository(t)
			if tc.setupRepo != nil {
				tc.setupRepo(repo)
			}
			c := newTestConsumer(t, stream.NewMemory("s", 1), repo)

			require.Equal(t, tc.want, c.Process(context.Background(), []byte(tc.body)))
		})
	}
}

func TestConsumer_ProcessDiscardIsIdempotent(t *testing.T) {
	repo := memory.NewStore()
	c := newTestConsumer(t, stream.NewMemory("s", 1), repo)

	for _, body := range []string{`{broken`, `{"unknown":true}`} {
		first := c.Process(context.Background(), []byte(body))
		second := c.Process(context.Background(), []byte(body))
		require.Equal(t, first, second)
	}
	require.Zero(t, repo.Len())
}

func TestConsumer_EndToEndScenarios(t *testing.T) {
	ctx := context.Background()
	s := stream.NewMemory("analytics.events", 16)
	repo := memory.NewStore()
	c := newTestConsumer(t, s, repo)

	require.NoError(t, c.Start(ctx))
	defer c.Stop(ctx)

	require.NoError(t, s.Publish(ctx, []byte(iamPayload)))
	require.NoError(t, s.Publish(ctx, []byte(`{"nobody":"knows"}`)))
	require.NoError(t, s.Publish(ctx, []byte(`not json`)))
	require.NoError(t, s.Publish(ctx, []byte(executionPayload)))

	// Every message is acknowledged, including the discarded ones.
	require.Eventually(t, func() bool { return s.Acked() == 4 }, 5*time.Second, 5*time.Millisecond)

	events, err := repo.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	byType := make(map[string]*v1.Event, len(events))
	for _, e := range events {
		byType[e.EventType] = e
	}

	iam := byType["iam.user-registered"]
	require.NotNil(t, iam)
	require.Equal(t, "iam-service", iam.Source)
	require.Equal(t, time.Date(2025, 11, 16, 18, 14, 0, 0, time.UTC), iam.OccurredAt)
	require.Equal(t, "2025-11-16T18:14:00+00:00", iam.Payload["registeredAtIso"])

	exec := byType["execution.analytics"]
	require.NotNil(t, exec)
	require.Equal(t, "execution-service", exec.Source)
	require.Equal(t, time.Date(2025, 11, 16, 18, 13, 45, 123456000, time.UTC), exec.OccurredAt)
	require.Equal(t, "2025-11-16T18:13:45.123456+00:00", exec.Payload["timestampIso"])
}

func TestConsumer_PersistFailureDoesNotStopLoop(t *testing.T) {
	ctx := context.Background()
	s := stream.NewMemory("s", 8)

	repo := storagemocks.NewEventRepository(t)
	repo.EXPECT().Save(mock.Anything, mock.Anything).
		Return(errors.Join(storage.ErrPersistence, errors.New("timeout"))).
		Once()
	repo.EXPECT().Save(mock.Anything, mock.Anything).Return(nil).Once()

	c := newTestConsumer(t, s, repo)
	require.NoError(t, c.Start(ctx))
	defer c.Stop(ctx)

	require.NoError(t, s.Publish(ctx, []byte(iamPayload)))
	require.NoError(t, s.Publish(ctx, []byte(executionPayload)))

	require.Eventually(t, func() bool { return s.Acked() == 2 }, 5*time.Second, 5*time.Millisecond)
}

func TestConsumer_RecoversFromPanic(t *testing.T) {
	ctx := context.Background()
	s := stream.NewMemory("s", 8)
	repo := &panickyRepo{EventRepository: memory.NewStore()}
	repo.panics.Store(1)

	c := newTestConsumer(t, s, repo)
	require.NoError(t, c.Start(ctx))
	defer c.Stop(ctx)

	require.NoError(t, s.Publish(ctx, []byte(iamPayload)))
	require.NoError(t, s.Publish(ctx, []byte(executionPayload)))

	require.Eventually(t, func() bool {
		events, err := repo.RecentEvents(ctx, 10)
		return err == nil && len(events) == 1
	}, 5*time.Second, 5*time.Millisecond)
	require.Equal(t, StateRunning, c.State())
}

func TestConsumer_ResumesAfterTransportError(t *testing.T) {
	ctx := context.Background()
	s := &flakyStream{Memory: stream.NewMemory("s", 8)}
	repo := memory.NewStore()

	c := newTestConsumer(t, s, repo)
	require.NoError(t, c.Start(ctx))
	defer c.Stop(ctx)

	require.NoError(t, s.Publish(ctx, []byte(iamPayload)))

	require.Eventually(t, func() bool { return repo.Len() == 1 }, 5*time.Second, 5*time.Millisecond)
	require.GreaterOrEqual(t, s.subscribes.Load(), int32(2))
}

func TestConsumer_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := &countingStream{Memory: stream.NewMemory("s", 1)}
	c := newTestConsumer(t, s, memory.NewStore())

	require.Equal(t, StateStopped, c.State())
	require.NoError(t, c.Stop(ctx), "stop while stopped is a no-op")

	require.NoError(t, c.Start(ctx))
	require.Equal(t, StateRunning, c.State())
	require.NoError(t, c.Start(ctx), "start while running is a no-op")
	require.Equal(t, int32(1), s.subscribes.Load())

	// The loop is blocked waiting for a message; Stop must return promptly.
	stopped := make(chan error, 1)
	go func() { stopped <- c.Stop(ctx) }()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop did not return while blocked on the next message")
	}
	require.Equal(t, StateStopped, c.State())

	// A stopped consumer can be started again.
	require.NoError(t, c.Start(ctx))
	require.Equal(t, int32(2), s.subscribes.Load())
	require.NoError(t, c.Stop(ctx))
}

func TestConsumer_StopLeavesInterruptedWriteUnacked(t *testing.T) {
	ctx := context.Background()
	s := stream.NewMemory("s", 8)
	repo := newBlockingRepo(true)

	c := newTestConsumer(t, s, repo)
	require.NoError(t, c.Start(ctx))

	require.NoError(t, s.Publish(ctx, []byte(iamPayload)))
	<-repo.entered

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(stopCtx))

	require.Equal(t, StateStopped, c.State())
	require.Zero(t, s.Acked())
	require.Zero(t, repo.Len())
}

func TestConsumer_StopTimeoutKeepsStoppingUntilLoopExits(t *testing.T) {
	ctx := context.Background()
	s := &countingStream{Memory: stream.NewMemory("s", 8)}
	repo := newBlockingRepo(false)

	c := newTestConsumer(t, s, repo)
	require.NoError(t, c.Start(ctx))

	require.NoError(t, s.Publish(ctx, []byte(iamPayload)))
	<-repo.entered

	stopCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, c.Stop(stopCtx), context.DeadlineExceeded)
	require.Equal(t, StateStopping, c.State())

	// No second loop while the first is still draining.
	require.NoError(t, c.Start(ctx))
	require.Equal(t, int32(1), s.subscribes.Load())

	close(repo.release)
	require.Eventually(t, func() bool { return c.State() == StateStopped }, 5*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, repo.Len())
	require.Equal(t, int64(1), s.Acked())

	require.NoError(t, c.Start(ctx))
	require.Equal(t, int32(2), s.subscribes.Load())
	require.NoError(t, c.Stop(ctx))
}

func TestConsumer_StartFailsWhenSubscribeFails(t *testing.T) {
	s := stream.NewMemory("s", 1)
	require.NoError(t, s.Close())

	c := newTestConsumer(t, s, memory.NewStore())
	err := c.Start(context.Background())
	require.ErrorIs(t, err, stream.ErrClosed)
	require.Equal(t, StateStopped, c.State())
}

// panickyRepo panics on Save while its counter is positive.
type panickyRepo struct {
	storage.EventRepository
	panics atomic.Int32
}

func (r *panickyRepo) Save(ctx context.Context, event *v1.Event) error {
	if r.panics.Add(-1) >= 0 {
		panic("boom")
	}
	return r.EventRepository.Save(ctx, event)
}

// blockingRepo blocks in Save. With honorCtx it gives up when ctx ends,
// otherwise it waits for release and then stores the event.
type blockingRepo struct {
	*memory.Store
	honorCtx bool
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func newBlockingRepo(honorCtx bool) *blockingRepo {
	return &blockingRepo{
		Store:    memory.NewStore(),
		honorCtx: honorCtx,
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (r *blockingRepo) Save(ctx context.Context, event *v1.Event) error {
	r.once.Do(func() { close(r.entered) })
	if r.honorCtx {
		<-ctx.Done()
		return fmt.Errorf("%w: %w", storage.ErrPersistence, ctx.Err())
	}
	<-r.release
	// The write itself finished before the cancellation reached it.
	return r.Store.Save(context.WithoutCancel(ctx), event)
}

// countingStream counts subscriptions.
type countingStream struct {
	*stream.Memory
	subscribes atomic.Int32
}

func (s *countingStream) Subscribe(ctx context.Context) (stream.Subscription, error) {
	s.subscribes.Add(1)
	return s.Memory.Subscribe(ctx)
}

// flakyStream hands out a first subscription that is already closed.
type flakyStream struct {
	*stream.Memory
	subscribes atomic.Int32
	once       sync.Once
}

func (s *flakyStream) Subscribe(ctx context.Context) (stream.Subscription, error) {
	s.subscribes.Add(1)
	sub, err := s.Memory.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	s.once.Do(func() { sub.Close() })
	return sub, nil
}
