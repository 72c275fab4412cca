package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// Memory is a channel-backed Stream and Publisher for tests and single-process runs.
// All subscriptions share one queue, so each message is delivered once.
type Memory struct {
	subject string
	ch      chan *memoryMessage

	closeOnce sync.Once
	closed    chan struct{}
	acked     atomic.Int64
}

// NewMemory returns a Memory stream buffering up to size undelivered messages.
func NewMemory(subject string, size int) *Memory {
	return &Memory{
		subject: subject,
		ch:      make(chan *memoryMessage, size),
		closed:  make(chan struct{}),
	}
}

// Publish enqueues a message, blocking while the buffer is full.
func (m *Memory) Publish(ctx context.Context, data []byte) error {
	msg := &memoryMessage{subject: m.subject, data: data, stream: m}
	select {
	case <-m.closed:
		return ErrClosed
	default:
	}
	select {
	case m.ch <- msg:
		return nil
	case <-m.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a subscription on the shared queue.
func (m *Memory) Subscribe(ctx context.Context) (Subscription, error) {
	select {
	case <-m.closed:
		return nil, ErrClosed
	default:
	}
	return &memorySubscription{stream: m, closed: make(chan struct{})}, nil
}

// Acked reports how many messages have been acknowledged.
func (m *Memory) Acked() int64 {
	return m.acked.Load()
}

// Pending reports how many published messages are waiting for delivery.
func (m *Memory) Pending() int {
	return len(m.ch)
}

// Close stops delivery to every subscription.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

type memorySubscription struct {
	stream    *Memory
	closeOnce sync.Once
	closed    chan struct{}
}

func (s *memorySubscription) Next(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, ErrClosed
	case <-s.stream.closed:
		return nil, ErrClosed
	case msg := <-s.stream.ch:
		return msg, nil
	}
}

func (s *memorySubscription) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type memoryMessage struct {
	subject string
	data    []byte
	stream  *Memory
	acked   atomic.Bool
}

func (m *memoryMessage) Data() []byte    { return m.data }
func (m *memoryMessage) Subject() string { return m.subject }

func (m *memoryMessage) Ack() error {
	if m.acked.CompareAndSwap(false, true) {
		m.stream.acked.Add(1)
	}
	return nil
}
