// Package hookclient implements the Hook Client (C1, spec.md §4.1): the
// short-lived process the agent invokes at each lifecycle point. It reads
// stdin, injects a few well-known fields, prefers the TCP fast path to the
// relay daemon, and falls back to direct HTTP against the Core Server.
package hookclient

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	tcpConnectTimeout  = 50 * time.Millisecond
	writeTimeout       = 2 * time.Second
	longPollTimeout    = 660 * time.Second
	shortPollTimeout   = 5 * time.Second
	directHTTPShort    = 3 * time.Second
	directHTTPLongPoll = 660 * time.Second
	maxAncestorWalk    = 10
)

var longPollEvents = map[string]bool{
	"permission_request": true,
	"pre_tool":            true,
}

// Options are the parsed CLI flags.
type Options struct {
	Event string
	Port  int
}

// ParseArgs parses "--event <name> [--port <p>]", defaulting port to 15924.
// Returns an error iff --event is missing (spec.md §6: "Exits 0 always
// unless --event is missing").
func ParseArgs(args []string) (Options, error) {
	opts := Options{Port: 15924}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--event":
			if i+1 < len(args) {
				opts.Event = args[i+1]
				i++
			}
		case "--port":
			if i+1 < len(args) {
				fmt.Sscanf(args[i+1], "%d", &opts.Port)
				i++
			}
		}
	}
	if opts.Event == "" {
		return opts, fmt.Errorf("--event is required")
	}
	return opts, nil
}

// Run executes one hook invocation: read stdin, inject fields, dispatch,
// echo the response for blocking events. It reports no errors: dispatch
// failures yield an empty or error-shaped response, and a missing --event
// is rejected earlier by ParseArgs.
func Run(opts Options, stdin io.Reader, stdout io.Writer) {
	payload := readPayload(stdin)
	payload["event"] = opts.Event
	payload["hook_pid"] = os.Getpid()

	if pid, ok := nearestAncestorAgentPID(); ok {
		payload["agent_pid"] = pid
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	resp := dispatch(opts, body)

	if longPollEvents[opts.Event] {
		fmt.Fprint(stdout, resp)
	}
}

func readPayload(r io.Reader) map[string]any {
	data, err := io.ReadAll(r)
	if err != nil || len(strings.TrimSpace(string(data))) == 0 {
		return map[string]any{}
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return map[string]any{}
	}
	return payload
}

// dispatch tries the TCP fast path first, then falls back to direct HTTP.
func dispatch(opts Options, body []byte) string {
	if resp, ok := tryTCP(opts, body); ok {
		return resp
	}
	return tryHTTP(opts, body)
}

func tryTCP(opts Options, body []byte) (string, bool) {
	addr := fmt.Sprintf("127.0.0.1:%d", opts.Port+1)
	conn, err := net.DialTimeout("tcp", addr, tcpConnectTimeout)
	if err != nil {
		return "", false
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := conn.Write(append(body, '\n')); err != nil {
		return "", false
	}

	readTimeout := shortPollTimeout
	if longPollEvents[opts.Event] {
		readTimeout = longPollTimeout
	}
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	return strings.TrimRight(line, "\n"), true
}

// tryHTTP is the direct-HTTP fallback: a fresh single-use client per call,
// routed the same way the relay daemon would route it (spec.md §6).
func tryHTTP(opts Options, body []byte) string {
	path, isLongPoll := routeFor(opts.Event)
	timeout := directHTTPShort
	if isLongPoll {
		timeout = directHTTPLongPoll
	}

	client := &http.Client{Timeout: timeout}
	url := fmt.Sprintf("http://127.0.0.1:%d%s", opts.Port, path)

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		if isLongPoll {
			return ""
		}
		return `{"ok":false,"error":"upstream unreachable"}`
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}
	return string(data)
}

func routeFor(event string) (path string, longPoll bool) {
	switch event {
	case "user_prompt":
		return "/api/hook?event=user_prompt", false
	case "pre_tool":
		return "/api/pre-tool-check", true
	case "permission_request":
		return "/api/permission-request", true
	default:
		return "/api/signal", false
	}
}
