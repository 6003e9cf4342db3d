package hookclient

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs_RequiresEvent(t *testing.T) {
	_, err := ParseArgs([]string{"--port", "1234"})
	assert.Error(t, err)
}

func TestParseArgs_DefaultsPort(t *testing.T) {
	opts, err := ParseArgs([]string{"--event", "stop"})
	require.NoError(t, err)
	assert.Equal(t, "stop", opts.Event)
	assert.Equal(t, 15924, opts.Port)
}

func TestParseArgs_OverridesPort(t *testing.T) {
	opts, err := ParseArgs([]string{"--event", "stop", "--port", "9000"})
	require.NoError(t, err)
	assert.Equal(t, 9000, opts.Port)
}

func TestRouteFor(t *testing.T) {
	cases := map[string]struct {
		path     string
		longPoll bool
	}{
		"user_prompt":        {"/api/hook?event=user_prompt", false},
		"pre_tool":           {"/api/pre-tool-check", true},
		"permission_request": {"/api/permission-request", true},
		"session_start":      {"/api/signal", false},
	}
	for event, want := range cases {
		path, longPoll := routeFor(event)
		assert.Equal(t, want.path, path, event)
		assert.Equal(t, want.longPoll, longPoll, event)
	}
}

func TestReadPayload_EmptyStdinYieldsEmptyMap(t *testing.T) {
	payload := readPayload(strings.NewReader(""))
	assert.Empty(t, payload)
}

func TestReadPayload_InvalidJSONYieldsEmptyMap(t *testing.T) {
	payload := readPayload(strings.NewReader("not json"))
	assert.Empty(t, payload)
}

func TestReadPayload_ValidJSON(t *testing.T) {
	payload := readPayload(strings.NewReader(`{"session_id":"sess-1"}`))
	assert.Equal(t, "sess-1", payload["session_id"])
}

func TestRun_FallsBackToDirectHTTPAndEchoesLongPollResponse(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hookSpecificOutput":{"hookEventName":"PermissionRequest","decision":{"behavior":"approve"}}}`))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	var out bytes.Buffer
	Run(Options{Event: "permission_request", Port: port}, strings.NewReader(`{"session_id":"sess-1"}`), &out)

	assert.Equal(t, "/api/permission-request", gotPath)
	assert.Equal(t, "sess-1", gotBody["session_id"])
	assert.Contains(t, out.String(), "approve")
}

func TestRun_NonLongPollEventDoesNotEchoResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(u.Port())

	var out bytes.Buffer
	Run(Options{Event: "user_prompt", Port: port}, strings.NewReader(`{}`), &out)

	assert.Empty(t, out.String(), "light events should not echo the upstream response to stdout")
}
