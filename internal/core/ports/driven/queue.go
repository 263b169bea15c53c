package driven

import "context"

// Message is one delivered change notification.
// Exactly one of Ack or Retry should be called.
type Message interface {
	ID() string
	Body() []byte
	// Attempts counts deliveries including this one.
	Attempts() int
	// Ack removes the message from the queue.
	Ack(ctx context.Context) error
	// Retry returns the message for later redelivery.
	Retry(ctx context.Context) error
}

// ChangeQueue delivers document store change notifications.
type ChangeQueue interface {
	// Receive returns up to max messages, or an empty slice when none
	// are available.
	Receive(ctx context.Context, max int) ([]Message, error)

	// Close releases resources.
	Close() error
}
