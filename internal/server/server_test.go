package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZAKERR/agent-desk/internal/broadcast"
	"github.com/ZAKERR/agent-desk/internal/common/config"
	"github.com/ZAKERR/agent-desk/internal/common/logger"
	"github.com/ZAKERR/agent-desk/internal/dedup"
	"github.com/ZAKERR/agent-desk/internal/eventstore"
	"github.com/ZAKERR/agent-desk/internal/focus"
	"github.com/ZAKERR/agent-desk/internal/permission"
	"github.com/ZAKERR/agent-desk/internal/push"
	"github.com/ZAKERR/agent-desk/internal/scanner"
	"github.com/ZAKERR/agent-desk/internal/session"
	"github.com/ZAKERR/agent-desk/internal/wire"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Server:     config.ServerConfig{Port: 15924},
		Permission: config.PermissionConfig{TimeoutSecs: 1},
		Session:    config.SessionConfig{TTLSecs: 86400, StaleSecs: 300},
	}
	log := logger.Default()

	return New(
		cfg,
		log,
		eventstore.New(t.TempDir()+"/events.jsonl"),
		session.New(t.TempDir()+"/sessions.json"),
		permission.New(),
		scanner.NewRegistry(),
		focus.New(),
		dedup.New(500*time.Millisecond),
		broadcast.New(),
		push.New(config.PushConfig{TimeoutSecs: 1}, log),
		nil,
		nil,
	)
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
}

func TestHandleSignal_StopTransitionsSessionAndAppendsEvent(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/signal", wire.SignalPayload{
		Event: wire.EventSessionStart, SessionID: "sess-1", Cwd: "/proj",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/signal", wire.SignalPayload{
		Event: wire.EventStop, SessionID: "sess-1", Cwd: "/proj", LastAssistantMessage: "done.",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	info, ok := s.sessions.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, wire.StatusWaiting, info.Status)

	// the event append happens on a goroutine; give it a beat.
	require.Eventually(t, func() bool {
		return len(s.events.GetEvents(0)) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHandleSignal_DecodeFailureReturns200NotA4xx(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/signal", bytes.NewBufferString("not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "hooks treat any non-2xx as fatal, so decode errors must still be 200")
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["ok"])
}

func TestPermissionRequestAndRespond_RoundTrip(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	type requestResult struct {
		rec *httptest.ResponseRecorder
	}
	done := make(chan requestResult, 1)
	go func() {
		rec := doJSON(t, router, http.MethodPost, "/api/permission-request", wire.PermissionRequestInput{
			SessionID: "sess-1", Cwd: "/proj", ToolName: "Bash", TimeoutSecs: 5,
		})
		done <- requestResult{rec}
	}()

	var reqID string
	require.Eventually(t, func() bool {
		list := s.perms.List()
		if len(list) == 0 {
			return false
		}
		reqID = list[0].ID
		return true
	}, time.Second, 5*time.Millisecond)

	rec := doJSON(t, router, http.MethodPost, "/api/permission-respond", wire.PermissionRespondInput{
		ID: reqID, Decision: wire.DecisionAllow,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	result := <-done
	assert.Equal(t, http.StatusOK, result.rec.Code)
	var resp wire.PermissionHookResponse
	require.NoError(t, json.Unmarshal(result.rec.Body.Bytes(), &resp))
	assert.Equal(t, "approve", resp.HookSpecificOutput.Decision.Behavior)
}

func TestPermissionRequest_TimesOutAsDeny(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/permission-request", wire.PermissionRequestInput{
		SessionID: "sess-1", Cwd: "/proj", ToolName: "Bash", TimeoutSecs: 1,
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp wire.PermissionHookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "deny", resp.HookSpecificOutput.Decision.Behavior)
}

func TestHandlePreToolCheck_SessionRuleAutoApproves(t *testing.T) {
	s := newTestServer(t)
	s.perms.AddSessionRule("sess-1", "Bash")

	rec := doJSON(t, s.Router(), http.MethodPost, "/api/pre-tool-check", map[string]any{
		"session_id": "sess-1", "cwd": "/proj", "tool_name": "Bash",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp wire.PermissionHookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "approve", resp.HookSpecificOutput.Decision.Behavior)
}

func TestHandleSessionsTree_GroupsByParent(t *testing.T) {
	s := newTestServer(t)
	s.sessions.Register("parent-1", "/proj", 1)
	parentID := "parent-1"
	s.sessions.Update("child-1", session.Update{ParentSessionID: &parentID}, 2)

	rec := doJSON(t, s.Router(), http.MethodGet, "/api/sessions/tree", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	tree, ok := body["tree"].([]any)
	require.True(t, ok)
	require.Len(t, tree, 1)
}

func TestHandleSendInput_NonWindowsReportsOkFalse(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s.Router(), http.MethodPost, "/api/send-input", map[string]string{"text": "hello"})
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["ok"])
	assert.NotEmpty(t, resp["error"])
}

func TestHandleClear(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.events.AppendEvent(wire.Event{ID: "evt_1", Ts: 1}))

	rec := doJSON(t, s.Router(), http.MethodPost, "/api/clear", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, s.events.GetEvents(0))
}
