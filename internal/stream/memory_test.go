package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemory_DeliversInOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("analytics.events", 8)

	sub, err := m.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	for _, body := range []string{"a", "b", "c"} {
		require.NoError(t, m.Publish(ctx, []byte(body)))
	}
	require.Equal(t, 3, m.Pending())

	for _, want := range []string{"a", "b", "c"} {
		msg, err := sub.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, want, string(msg.Data()))
		require.Equal(t, "analytics.events", msg.Subject())
		require.NoError(t, msg.Ack())
		require.NoError(t, msg.Ack())
	}
	require.Equal(t, int64(3), m.Acked())
}

func TestMemory_NextReturnsImmediatelyOnCancel(t *testing.T) {
	m := NewMemory("s", 1)
	sub, err := m.Subscribe(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := sub.Next(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after cancellation")
	}
}

func TestMemory_Closed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("s", 1)
	sub, err := m.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	_, err = sub.Next(ctx)
	require.ErrorIs(t, err, ErrClosed)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	require.ErrorIs(t, m.Publish(ctx, []byte("x")), ErrClosed)
	_, err = m.Subscribe(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestMemory_PublishRespectsContextWhenFull(t *testing.T) {
	m := NewMemory("s", 1)
	require.NoError(t, m.Publish(context.Background(), []byte("first")))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, m.Publish(ctx, []byte("second")), context.DeadlineExceeded)
}
