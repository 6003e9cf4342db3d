package permission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZAKERR/agent-desk/internal/wire"
)

func TestRegisterAndRespond_DeliversDecisionOnChannel(t *testing.T) {
	s := New()
	ch := s.Register(wire.PermissionRequest{ID: "req-1", SessionID: "sess-1", ToolName: "Bash"})

	assert.Equal(t, 1, s.Count())

	ok := s.Respond("req-1", wire.DecisionAllow)
	require.True(t, ok)

	select {
	case outcome := <-ch:
		assert.Equal(t, wire.DecisionAllow, outcome.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for decision")
	}

	assert.Equal(t, 0, s.Count(), "Respond must remove the pending request")
}

func TestRespond_UnknownIDReturnsFalse(t *testing.T) {
	s := New()
	assert.False(t, s.Respond("nope", wire.DecisionDeny))
}

func TestRemove_DropsPendingRequestWithoutSignaling(t *testing.T) {
	s := New()
	s.Register(wire.PermissionRequest{ID: "req-1"})
	s.Remove("req-1")

	assert.Equal(t, 0, s.Count())
	ok := s.Respond("req-1", wire.DecisionAllow)
	assert.False(t, ok)
}

func TestGetAndList(t *testing.T) {
	s := New()
	s.Register(wire.PermissionRequest{ID: "req-1", SessionID: "sess-1"})
	s.Register(wire.PermissionRequest{ID: "req-2", SessionID: "sess-2"})

	req, ok := s.Get("req-1")
	require.True(t, ok)
	assert.Equal(t, "sess-1", req.SessionID)

	assert.Len(t, s.List(), 2)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestSessionRules(t *testing.T) {
	s := New()
	assert.False(t, s.CheckSessionRule("sess-1", "Bash"))

	s.AddSessionRule("sess-1", "Bash")
	assert.True(t, s.CheckSessionRule("sess-1", "Bash"))
	assert.False(t, s.CheckSessionRule("sess-1", "Edit"), "rule is per-tool")
	assert.False(t, s.CheckSessionRule("sess-2", "Bash"), "rule is per-session")

	s.ClearSessionRules("sess-1")
	assert.False(t, s.CheckSessionRule("sess-1", "Bash"))
}
