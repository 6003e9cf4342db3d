package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZAKERR/agent-desk/internal/common/config"
	"github.com/ZAKERR/agent-desk/internal/common/logger"
)

func TestAppleScript_EscapesQuotes(t *testing.T) {
	script := appleScript(`it's "done"`, "body")
	assert.Contains(t, script, `\"done\"`)
}

func TestEscapePowerShell_EscapesQuotes(t *testing.T) {
	escaped := escapePowerShell(`say "hi"`)
	assert.Equal(t, "say `\"hi`\"", escaped)
}

func TestDispatch_NoWebhooksIsANoop(t *testing.T) {
	d := New(config.PushConfig{TimeoutSecs: 1}, logger.Default())
	d.Dispatch(context.Background(), Payload{EventType: "stop"})
}

func TestDispatch_PostsToEveryConfiguredWebhook(t *testing.T) {
	var hits int32
	var gotBody Payload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(config.PushConfig{WebhookURLs: []string{srv.URL, srv.URL}, TimeoutSecs: 2}, logger.Default())
	d.Dispatch(context.Background(), Payload{EventType: "stop", SessionID: "sess-1"})

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&hits) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "sess-1", gotBody.SessionID)
}
