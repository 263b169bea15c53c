package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driven"
)

// Ensure Queue implements the interfaces.
var (
	_ driven.ChangeQueue = (*Queue)(nil)
	_ Notifier           = (*Queue)(nil)
)

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithRetryDelay holds a retried message back for d before it can be
// received again.
func WithRetryDelay(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.retryDelay = d
		}
	}
}

// Queue is an in-memory FIFO change queue with at-least-once delivery.
// Received messages stay in flight until acknowledged or retried.
type Queue struct {
	mu         sync.Mutex
	pending    []*message
	inflight   map[string]*message
	closed     bool
	retryDelay time.Duration
	now        func() time.Time
}

// NewQueue creates an empty queue.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{inflight: make(map[string]*message), now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Notify enqueues a change notification.
func (q *Queue) Notify(_ context.Context, n domain.ChangeNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	_, err = q.Enqueue(body)
	return err
}

// Enqueue adds a raw message body and returns its id.
func (q *Queue) Enqueue(body []byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", domain.ErrQueueClosed
	}
	m := &message{queue: q, id: uuid.NewString(), body: body}
	q.pending = append(q.pending, m)
	return m.id, nil
}

// Receive moves up to max available pending messages in flight. Retried
// messages still inside their delay are skipped.
func (q *Queue) Receive(ctx context.Context, max int) ([]driven.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, domain.ErrQueueClosed
	}

	now := q.now()
	var out []driven.Message
	kept := q.pending[:0]
	for _, m := range q.pending {
		if len(out) >= max || m.availableAt.After(now) {
			kept = append(kept, m)
			continue
		}
		m.attempts++
		q.inflight[m.id] = m
		out = append(out, m)
	}
	clear(q.pending[len(kept):])
	q.pending = kept
	return out, nil
}

// Pending returns the number of messages waiting for delivery, including
// retried messages that are not yet available.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InFlight returns the number of delivered, unsettled messages.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// Close stops delivery.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

type message struct {
	queue    *Queue
	id       string
	body     []byte
	attempts int

	availableAt time.Time
}

func (m *message) ID() string    { return m.id }
func (m *message) Body() []byte  { return m.body }
func (m *message) Attempts() int { return m.attempts }

func (m *message) Ack(_ context.Context) error {
	q := m.queue
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, m.id)
	return nil
}

func (m *message) Retry(_ context.Context) error {
	q := m.queue
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[m.id]; !ok {
		return nil
	}
	delete(q.inflight, m.id)
	m.availableAt = q.now().Add(q.retryDelay)
	q.pending = append(q.pending, m)
	return nil
}
