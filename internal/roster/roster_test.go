package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestEmptyDomainListAcceptsEveryone(t *testing.T) {
	c := NewChecker(nil, zap.NewNop())

	assert.True(t, c.IsStudent("anyone@anywhere.com"))
	assert.True(t, c.IsStudent("weird-address"))
}

func TestDomainMatching(t *testing.T) {
	c := NewChecker([]string{"university.edu"}, zap.NewNop())

	assert.True(t, c.IsStudent("sam@university.edu"))
	assert.True(t, c.IsStudent("sam@UNIVERSITY.EDU"))
	assert.True(t, c.IsStudent("sam@cs.university.edu"))

	assert.False(t, c.IsStudent("sam@elsewhere.com"))
	assert.False(t, c.IsStudent("sam@notuniversity.edu"))
	assert.False(t, c.IsStudent("no-at-sign"))
	assert.False(t, c.IsStudent("two@at@signs"))
}

func TestDomainsNormalizedOnConstruction(t *testing.T) {
	c := NewChecker([]string{" University.EDU ", "", "college.org"}, zap.NewNop())

	assert.True(t, c.IsStudent("sam@university.edu"))
	assert.True(t, c.IsStudent("pat@college.org"))
	assert.False(t, c.IsStudent("sam@other.net"))
}
