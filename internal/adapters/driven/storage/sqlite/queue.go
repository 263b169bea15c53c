package sqlite

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
	"github.com/custodia-labs/knowledge-server/internal/core/ports/driven"
)

var _ driven.ChangeQueue = (*Queue)(nil)

// Queue delivers outbox rows with at-least-once semantics. A received row
// becomes invisible for the visibility timeout and reappears unless it is
// acknowledged.
type Queue struct {
	store  *Store
	closed atomic.Bool
}

// Receive leases up to max available notifications.
func (q *Queue) Receive(ctx context.Context, max int) ([]driven.Message, error) {
	if q.closed.Load() {
		return nil, domain.ErrQueueClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if max <= 0 {
		return []driven.Message{}, nil
	}

	now := q.store.now()
	rows, err := q.store.db.QueryContext(ctx, `
		UPDATE notifications
		SET attempts = attempts + 1, available_at = ?
		WHERE seq IN (
			SELECT seq FROM notifications
			WHERE available_at <= ?
			ORDER BY seq
			LIMIT ?
		)
		RETURNING seq, id, body, attempts
	`, now.Add(q.store.visibility).UnixMilli(), now.UnixMilli(), max)
	if err != nil {
		return nil, fmt.Errorf("receiving notifications: %w", err)
	}
	defer rows.Close()

	var leased []*message
	for rows.Next() {
		m := &message{queue: q}
		var body string
		if err := rows.Scan(&m.seq, &m.id, &body, &m.attempts); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		m.body = []byte(body)
		leased = append(leased, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notifications: %w", err)
	}

	sort.Slice(leased, func(i, j int) bool { return leased[i].seq < leased[j].seq })
	out := make([]driven.Message, len(leased))
	for i, m := range leased {
		out[i] = m
	}
	return out, nil
}

// Pending counts notifications that have not been acknowledged.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	var n int
	if err := q.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifications").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting notifications: %w", err)
	}
	return n, nil
}

// Close stops delivery. The underlying store stays open.
func (q *Queue) Close() error {
	q.closed.Store(true)
	return nil
}

type message struct {
	queue    *Queue
	seq      int64
	id       string
	body     []byte
	attempts int
}

func (m *message) ID() string    { return m.id }
func (m *message) Body() []byte  { return m.body }
func (m *message) Attempts() int { return m.attempts }

func (m *message) Ack(ctx context.Context) error {
	if _, err := m.queue.store.db.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", m.id); err != nil {
		return fmt.Errorf("acknowledging %s: %w", m.id, err)
	}
	return nil
}

func (m *message) Retry(ctx context.Context) error {
	s := m.queue.store
	_, err := s.db.ExecContext(ctx, "UPDATE notifications SET available_at = ? WHERE id = ?",
		s.now().Add(s.retryDelay).UnixMilli(), m.id)
	if err != nil {
		return fmt.Errorf("releasing %s: %w", m.id, err)
	}
	return nil
}
