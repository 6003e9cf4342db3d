package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ZAKERR/agent-desk/internal/wire"
)

func TestAdapter_MatchesRespectsIncludeAndExclude(t *testing.T) {
	a := NewAdapter("claude-code", []string{"Claude", "node.exe"}, []string{"node.exe"})

	assert.True(t, a.matches("claude"), "include list is lowercased at construction")
	assert.False(t, a.matches("node.exe"), "exclude wins even when also included")
	assert.False(t, a.matches("bash"), "names outside the include set don't match")
}

func TestAdapter_EmptyIncludeMatchesEverythingExceptExcluded(t *testing.T) {
	a := NewAdapter("any", nil, []string{"ssh-agent"})

	assert.True(t, a.matches("claude"))
	assert.False(t, a.matches("ssh-agent"))
}

func TestRegistry_GetCachedStartsEmpty(t *testing.T) {
	r := NewRegistry(NewAdapter("claude-code", nil, nil))
	assert.Empty(t, r.GetCached())
}

func TestRegistry_ScanAllPopulatesCache(t *testing.T) {
	r := NewRegistry(NewAdapter("claude-code", nil, nil))
	r.ScanAll()

	// the live process table always has at least the test binary itself
	// running, so a match-everything adapter should find something.
	cached := r.GetCached()
	assert.IsType(t, []wire.ProcessInfo{}, cached)
	assert.NotEmpty(t, cached)
}
