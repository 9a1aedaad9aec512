package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage(id string) *Message {
	return &Message{
		ID:         id,
		SenderAddr: "alex@university.edu",
		SenderName: "Alex",
		Subject:    "Question about homework 3",
		Body:       "When is it due?",
	}
}

func TestApprovalEnqueueAssignsStableIDs(t *testing.T) {
	q := NewApprovalQueue()
	sender := &Sender{Identity: "alex@university.edu"}

	ids := make(map[string]bool)
	var ordered []string
	for i := 0; i < 5; i++ {
		id := q.Enqueue(testMessage(fmt.Sprintf("m%d", i)), sender, IntentGradeInquiry, "draft")
		assert.False(t, ids[id], "IDs must never repeat")
		ids[id] = true
		ordered = append(ordered, id)
	}

	// ULIDs with monotonic entropy sort in creation order.
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, ordered[i-1], ordered[i])
	}

	pending := q.ListPending()
	require.Len(t, pending, 5)
	for i, item := range pending {
		assert.Equal(t, ordered[i], item.ID)
		assert.Equal(t, ApprovalPending, item.Status)
	}
}

func TestApprovalResolveRemovesItem(t *testing.T) {
	q := NewApprovalQueue()
	sender := &Sender{Identity: "alex@university.edu"}

	first := q.Enqueue(testMessage("m1"), sender, IntentGradeInquiry, "draft one")
	second := q.Enqueue(testMessage("m2"), sender, IntentGradeInquiry, "draft two")
	third := q.Enqueue(testMessage("m3"), sender, IntentGradeInquiry, "draft three")

	item, err := q.Resolve(second, "")
	require.NoError(t, err)
	assert.Equal(t, ApprovalApproved, item.Status)
	assert.Equal(t, "draft two", item.Draft)

	// Remaining items keep their identifiers; no positional shifting.
	pending := q.ListPending()
	require.Len(t, pending, 2)
	assert.Equal(t, first, pending[0].ID)
	assert.Equal(t, third, pending[1].ID)

	// Resolving the same identifier again is a caller error.
	_, err = q.Resolve(second, "")
	assert.ErrorIs(t, err, ErrApprovalNotFound)
}

func TestApprovalResolveWithRevisedText(t *testing.T) {
	q := NewApprovalQueue()
	sender := &Sender{Identity: "alex@university.edu"}

	id := q.Enqueue(testMessage("m1"), sender, IntentPersonalCircumstance, "original draft")

	item, err := q.Resolve(id, "revised reply text")
	require.NoError(t, err)
	assert.Equal(t, ApprovalRevised, item.Status)
	assert.Equal(t, "revised reply text", item.Draft)
}

func TestApprovalDiscard(t *testing.T) {
	q := NewApprovalQueue()
	sender := &Sender{Identity: "alex@university.edu"}

	id := q.Enqueue(testMessage("m1"), sender, IntentOther, "draft")

	item, err := q.Discard(id)
	require.NoError(t, err)
	assert.Equal(t, ApprovalDiscarded, item.Status)
	assert.Equal(t, 0, q.Len())

	_, err = q.Discard(id)
	assert.ErrorIs(t, err, ErrApprovalNotFound)
}

func TestApprovalUnknownID(t *testing.T) {
	q := NewApprovalQueue()

	_, err := q.Resolve("01HZZZZZZZZZZZZZZZZZZZZZZZ", "")
	assert.ErrorIs(t, err, ErrApprovalNotFound)
}
