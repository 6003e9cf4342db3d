package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHookEvent_UnknownFallsBackToUnknown(t *testing.T) {
	assert.Equal(t, EventStop, ParseHookEvent("stop"))
	assert.Equal(t, EventUnknown, ParseHookEvent("something_new"))
	assert.Equal(t, EventUnknown, ParseHookEvent(""))
}

func TestHookEvent_UnmarshalJSON_NeverFails(t *testing.T) {
	var e HookEvent
	require.NoError(t, json.Unmarshal([]byte(`"pre_tool"`), &e))
	assert.Equal(t, EventPreTool, e)

	require.NoError(t, json.Unmarshal([]byte(`"some_future_event"`), &e))
	assert.Equal(t, EventUnknown, e)
}

func TestParseSessionStatus(t *testing.T) {
	assert.Equal(t, StatusActive, ParseSessionStatus("active"))
	assert.Equal(t, StatusUnknown, ParseSessionStatus("bogus"))
}

func TestPermissionDecisionKind_Valid(t *testing.T) {
	assert.True(t, DecisionAllow.Valid())
	assert.True(t, DecisionDeny.Valid())
	assert.True(t, DecisionAlwaysAllow.Valid())
	assert.False(t, PermissionDecisionKind("maybe").Valid())
}

func TestHookPayload_Accessors(t *testing.T) {
	p := HookPayload{"session_id": "sess-1", "cwd": "/proj", "agent_pid": 123}
	assert.Equal(t, "sess-1", p.SessionID())
	assert.Equal(t, "/proj", p.Cwd())

	var nilPayload HookPayload
	assert.Equal(t, "", nilPayload.SessionID())

	wrongType := HookPayload{"session_id": 42}
	assert.Equal(t, "", wrongType.SessionID())
}

func TestSignalPayload_IsPermissionPrompt(t *testing.T) {
	assert.True(t, SignalPayload{NotificationType: "permission_prompt"}.IsPermissionPrompt())
	assert.False(t, SignalPayload{NotificationType: "idle_timeout"}.IsPermissionPrompt())
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, LevelStop, LevelFor(EventStop))
	assert.Equal(t, LevelNotification, LevelFor(EventNotification))
	assert.Equal(t, LevelInfo, LevelFor(EventUserPrompt))
}

func TestNewPermissionHookResponse_Allow(t *testing.T) {
	resp := NewPermissionHookResponse(DecisionAllow, []json.RawMessage{json.RawMessage(`"Bash(*)"`)})
	assert.Equal(t, "approve", resp.HookSpecificOutput.Decision.Behavior)
	assert.Empty(t, resp.HookSpecificOutput.Decision.UpdatedPermissions, "plain allow should not persist a rule")
}

func TestNewPermissionHookResponse_AlwaysAllowPersistsSuggestions(t *testing.T) {
	suggestions := []json.RawMessage{json.RawMessage(`"Bash(*)"`)}
	resp := NewPermissionHookResponse(DecisionAlwaysAllow, suggestions)
	assert.Equal(t, "approve", resp.HookSpecificOutput.Decision.Behavior)
	assert.Equal(t, suggestions, resp.HookSpecificOutput.Decision.UpdatedPermissions)
}

func TestNewPermissionHookResponse_Deny(t *testing.T) {
	resp := NewPermissionHookResponse(DecisionDeny, nil)
	assert.Equal(t, "deny", resp.HookSpecificOutput.Decision.Behavior)
	assert.NotNil(t, resp.HookSpecificOutput.Decision.UpdatedPermissions)
	assert.Empty(t, resp.HookSpecificOutput.Decision.UpdatedPermissions)
}
