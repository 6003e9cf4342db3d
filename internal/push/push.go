// Package push fires the outward notification paths the core server
// triggers on Stop/Notification events (spec.md §4.10): a native OS toast
// plus system beep on the local machine, a fire-and-forget HTTP POST to any
// configured generic webhook endpoint, and the three provider-specific
// remote channels (Telegram, DingTalk, WeChat) in remote.go.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/ZAKERR/agent-desk/internal/common/config"
	"github.com/ZAKERR/agent-desk/internal/common/logger"
)

const (
	osDarwin  = "darwin"
	osLinux   = "linux"
	osWindows = "windows"
)

// Dispatcher owns the single shared HTTP client used for every outbound
// push (generic webhook or provider channel), plus each channel's config.
type Dispatcher struct {
	client      *http.Client
	webhookURLs []string
	telegram    config.TelegramConfig
	dingtalk    config.DingTalkConfig
	wechat      config.WeChatConfig
	log         *logger.Logger
}

// New builds a Dispatcher. cfg.TimeoutSecs bounds each outbound HTTP call
// (generic webhook or provider channel); toast/beep subprocesses are bounded
// by the caller's context deadline, or 5 seconds when it has none.
func New(cfg config.PushConfig, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		client:      &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		webhookURLs: cfg.WebhookURLs,
		telegram:    cfg.Telegram,
		dingtalk:    cfg.DingTalk,
		wechat:      cfg.WeChat,
		log:         log,
	}
}

// Payload is the generic JSON body posted to every configured webhook.
type Payload struct {
	EventType string `json:"event_type"`
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

// Toast plays a native OS notification plus a system beep for Stop and
// Notification events (spec.md §4.10). Best-effort: failures are logged,
// never returned, since the caller treats this as fire-and-forget.
func (d *Dispatcher) Toast(ctx context.Context, title, body string, beep bool) {
	if err := sendSystemNotification(ctx, title, body); err != nil {
		d.log.WithError(err).Warn("system toast failed")
	}
	if beep {
		if err := playBeep(ctx); err != nil {
			d.log.WithError(err).Warn("system beep failed")
		}
	}
}

// Dispatch posts payload to every configured webhook URL concurrently and
// fire-and-forget; each call gets its own goroutine so a slow/unreachable
// endpoint never blocks the others or the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, payload Payload) {
	if len(d.webhookURLs) == 0 {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		d.log.WithError(err).Warn("marshal push payload failed")
		return
	}
	for _, url := range d.webhookURLs {
		go d.post(ctx, url, body)
	}
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		d.log.WithError(err).Warn("build push request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.WithError(err).Warn("push webhook delivery failed")
		return
	}
	_ = resp.Body.Close()
}

func sendSystemNotification(ctx context.Context, title, body string) error {
	switch runtime.GOOS {
	case osDarwin:
		return runCommand(ctx, "osascript", "-e", appleScript(title, body))
	case osLinux:
		if _, err := exec.LookPath("notify-send"); err == nil {
			return runCommand(ctx, "notify-send", title, body)
		}
		return fmt.Errorf("notify-send not available")
	case osWindows:
		script := fmt.Sprintf(
			`[reflection.assembly]::loadwithpartialname('System.Windows.Forms');[System.Windows.Forms.MessageBox]::Show("%s","%s")`,
			escapePowerShell(body), escapePowerShell(title))
		return runCommand(ctx, "powershell.exe", "-NoProfile", "-ExecutionPolicy", "Bypass", "-c", script)
	default:
		return fmt.Errorf("system notifications not supported on %s", runtime.GOOS)
	}
}

func playBeep(ctx context.Context) error {
	switch runtime.GOOS {
	case osDarwin:
		return runCommand(ctx, "afplay", "/System/Library/Sounds/Glass.aiff")
	case osWindows:
		return runCommand(ctx, "powershell.exe", "-NoProfile", "-ExecutionPolicy", "Bypass", "-c", "[console]::beep(800,200)")
	default:
		return runCommand(ctx, "sh", "-c", "printf '\\a'")
	}
}

func appleScript(title, body string) string {
	escapedTitle := strings.ReplaceAll(title, `"`, `\"`)
	escapedBody := strings.ReplaceAll(body, `"`, `\"`)
	return fmt.Sprintf(`display notification "%s" with title "%s"`, escapedBody, escapedTitle)
}

func escapePowerShell(value string) string {
	return strings.ReplaceAll(value, `"`, "`\"")
}

func runCommand(ctx context.Context, name string, args ...string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return exec.CommandContext(ctx, name, args...).Run()
}
