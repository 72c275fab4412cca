// Package stream abstracts the inbound event transport consumed by the ingestion loop.
package stream

import (
	"context"
	"errors"
)

// ErrClosed is returned by Next once a subscription or stream has been closed.
var ErrClosed = errors.New("stream closed")

// Message is one raw inbound event.
type Message interface {
	Data() []byte
	Subject() string
	// Ack marks the message handled so the transport can advance past it.
	Ack() error
}

// Subscription yields messages in delivery order.
type Subscription interface {
	// Next blocks until a message arrives, the subscription closes (ErrClosed)
	// or ctx is done (ctx.Err()). Cancellation returns immediately.
	Next(ctx context.Context) (Message, error)
	Close() error
}

// Stream opens subscriptions on the inbound transport.
type Stream interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Publisher writes raw messages to the transport.
type Publisher interface {
	Publish(ctx context.Context, data []byte) error
}
