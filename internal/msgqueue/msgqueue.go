// Package msgqueue is the append-only log of applied patches. Consumers
// subscribe from a cursor and receive every subsequent entry exactly once,
// in commit order.
package msgqueue

import (
	"context"
	"sync"

	"github.com/untoldecay/loom/internal/patch"
)

// Queue is the ordered, cursor-indexed applied-patch log.
type Queue struct {
	mu      sync.Mutex
	entries []*patch.Applied
	wakeups []chan struct{}
}

// New creates an empty queue. The first pushed entry gets cursor 1.
func New() *Queue {
	return &Queue{}
}

// Cursor returns the current head cursor: the number of entries committed so
// far. Monotonically increasing.
func (q *Queue) Cursor() uint32 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return uint32(len(q.entries))
}

// Push appends an applied patch and wakes blocked subscribers.
func (q *Queue) Push(applied *patch.Applied) uint32 {
	q.mu.Lock()
	q.entries = append(q.entries, applied)
	cursor := uint32(len(q.entries))
	wakeups := q.wakeups
	q.wakeups = nil
	q.mu.Unlock()

	for _, ch := range wakeups {
		close(ch)
	}
	return cursor
}

// GetSince returns every entry after the cursor without blocking, plus the
// new head cursor.
func (q *Queue) GetSince(cursor uint32) ([]*patch.Applied, uint32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	head := uint32(len(q.entries))
	if cursor >= head {
		return nil, head
	}
	out := make([]*patch.Applied, head-cursor)
	copy(out, q.entries[cursor:head])
	return out, head
}

// Subscribe blocks until at least one entry exists past the cursor, then
// returns all of them with the new cursor. Returns the context's error on
// cancellation.
func (q *Queue) Subscribe(ctx context.Context, cursor uint32) ([]*patch.Applied, uint32, error) {
	for {
		q.mu.Lock()
		head := uint32(len(q.entries))
		if cursor < head {
			out := make([]*patch.Applied, head-cursor)
			copy(out, q.entries[cursor:head])
			q.mu.Unlock()
			return out, head, nil
		}
		wakeup := make(chan struct{})
		q.wakeups = append(q.wakeups, wakeup)
		q.mu.Unlock()

		select {
		case <-wakeup:
		case <-ctx.Done():
			return nil, cursor, ctx.Err()
		}
	}
}
