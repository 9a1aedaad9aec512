package core

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrApprovalNotFound is returned when an approval ID is absent from the
// active queue (already resolved, discarded, or never existed).
var ErrApprovalNotFound = errors.New("approval item not found")

// ApprovalQueue holds pending human-review items addressable by stable
// identifiers. IDs are monotonic ULIDs, never positional indexes, so a
// concurrent resolve can never invalidate another caller's handle.
type ApprovalQueue struct {
	mu      sync.Mutex
	items   map[string]*ApprovalItem
	order   []string // insertion order of active IDs
	entropy *ulid.MonotonicEntropy
}

// NewApprovalQueue creates an empty approval queue.
func NewApprovalQueue() *ApprovalQueue {
	return &ApprovalQueue{
		items:   make(map[string]*ApprovalItem),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Enqueue assigns a fresh identifier, appends the item, and returns the ID.
func (q *ApprovalQueue) Enqueue(msg *Message, sender *Sender, intent Intent, draft string) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	id := ulid.MustNew(ulid.Timestamp(now), q.entropy).String()
	q.items[id] = &ApprovalItem{
		ID:        id,
		Message:   msg,
		Sender:    sender,
		Intent:    intent,
		Draft:     draft,
		CreatedAt: now,
		Status:    ApprovalPending,
	}
	q.order = append(q.order, id)
	return id
}

// Resolve marks an item approved and removes it from the active set. When
// revisedText is non-empty it replaces the stored draft and the item is
// marked revised. The resolved item is returned for the caller to act on.
func (q *ApprovalQueue) Resolve(id, revisedText string) (*ApprovalItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return nil, ErrApprovalNotFound
	}
	if revisedText != "" {
		item.Draft = revisedText
		item.Status = ApprovalRevised
	} else {
		item.Status = ApprovalApproved
	}
	q.remove(id)
	return item, nil
}

// Discard removes an item without sending anything.
func (q *ApprovalQueue) Discard(id string) (*ApprovalItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return nil, ErrApprovalNotFound
	}
	item.Status = ApprovalDiscarded
	q.remove(id)
	return item, nil
}

// ListPending returns an insertion-ordered snapshot of the active items.
func (q *ApprovalQueue) ListPending() []*ApprovalItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := make([]*ApprovalItem, 0, len(q.order))
	for _, id := range q.order {
		pending = append(pending, q.items[id])
	}
	return pending
}

// Len returns the number of active items.
func (q *ApprovalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// remove must be called with the lock held.
func (q *ApprovalQueue) remove(id string) {
	delete(q.items, id)
	for i, other := range q.order {
		if other == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}
