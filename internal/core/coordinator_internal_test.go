package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeenSetPruning(t *testing.T) {
	c := &Coordinator{seen: make(map[string]time.Time)}

	now := time.Now()
	assert.True(t, c.markSeen("old-message"))
	assert.True(t, c.markSeen("recent-message"))
	c.seen["old-message"] = now.Add(-48 * time.Hour)

	c.pruneSeen(now.Add(-24 * time.Hour))

	assert.False(t, c.markSeen("recent-message"), "entries inside the window survive pruning")
	assert.True(t, c.markSeen("old-message"), "entries past the cutoff are dropped")
	assert.Len(t, c.seen, 2)
}
