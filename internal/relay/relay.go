// Package relay implements the Hook Relay Daemon (C2, spec.md §4.2): a TCP
// listener on port+1 that forwards one JSON line per connection to the
// Core Server over HTTP and writes back its response as one line.
package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ZAKERR/agent-desk/internal/common/logger"
)

const (
	// httpClientTimeout is the single shared client's global timeout,
	// long enough to cover a permission_request/pre_tool long-poll.
	httpClientTimeout = 660 * time.Second
)

// Daemon owns the TCP listener and the one reusable HTTP client used for
// every upstream call (spec.md §4.2: "a single reusable HTTP client").
type Daemon struct {
	addr       string
	coreAddr   string
	log        *logger.Logger
	httpClient *http.Client
	listener   net.Listener
}

// New builds a Daemon bound to 127.0.0.1:<port+1>, forwarding to the core
// server at 127.0.0.1:<port>.
func New(port int, log *logger.Logger) *Daemon {
	return &Daemon{
		addr:       fmt.Sprintf("127.0.0.1:%d", port+1),
		coreAddr:   fmt.Sprintf("http://127.0.0.1:%d", port),
		log:        log,
		httpClient: &http.Client{Timeout: httpClientTimeout},
	}
}

// PortInUse TCP-connects to the relay address and reports whether
// something is already listening there (typically an orphaned daemon from
// a previous run). It only reports; it does not stop the listening process.
func (d *Daemon) PortInUse() bool {
	conn, err := net.DialTimeout("tcp", d.addr, 200*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Serve binds the relay port and accepts connections serially until ctx is
// cancelled. Bind failure is fatal (spec.md §4.2: "exits with code 1 if the
// bind fails"); the caller decides how to translate that into os.Exit.
func (d *Daemon) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.addr)
	if err != nil {
		return fmt.Errorf("hook relay bind %s: %w", d.addr, err)
	}
	d.listener = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	d.log.Info(fmt.Sprintf("hook relay listening on %s", d.addr))
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				d.log.WithError(err).Warn("hook relay accept failed")
				continue
			}
		}
		d.handleConnection(conn)
	}
}

// handleConnection runs serially and intentionally blocking: a single hook
// invocation is small, and per-connection ordering is not a requirement
// (spec.md §4.2).
func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return
	}

	var envelope map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &envelope); err != nil {
		writeLine(conn, `{"ok":false,"error":"invalid json"}`)
		return
	}

	event, _ := envelope["event"].(string)
	upstream, isLongPoll := routeFor(event)

	body, err := json.Marshal(envelope)
	if err != nil {
		writeLine(conn, `{"ok":false,"error":"encode failed"}`)
		return
	}

	resp, err := d.forward(upstream, body)
	if err != nil {
		if isLongPoll {
			writeLine(conn, "")
		} else {
			writeLine(conn, `{"ok":false,"error":"upstream unreachable"}`)
		}
		return
	}
	writeLine(conn, resp)
}

// routeFor implements the fixed route table (spec.md §6): user_prompt goes
// light, pre_tool and permission_request may long-poll, everything else is
// the full signal pipeline.
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

func (d *Daemon) forward(path string, body []byte) (string, error) {
	req, err := http.NewRequest(http.MethodPost, d.coreAddr+path, strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeLine(conn net.Conn, line string) {
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, _ = conn.Write([]byte(line + "\n"))
}
