//go:build !windows

package focus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_NonWindowsIsANoop(t *testing.T) {
	resolver := New()
	assert.False(t, resolver.Focus(Request{Cwd: "/proj"}))
}
