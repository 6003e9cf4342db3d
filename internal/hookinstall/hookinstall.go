// Package hookinstall auto-configures Claude Code's own hook registration
// file (`~/.claude/settings.json`) on first launch, so a user who installs
// agent-desk never has to hand-edit Claude Code's settings to wire the
// seven hook events to the hook CLI. This is distinct from
// internal/settings, which manages agent-desk's own settings document —
// this package reads and rewrites a file agent-desk does not otherwise own,
// preserving every entry it doesn't recognize.
package hookinstall

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// claudeHookEvent -> hook CLI --event argument, in the fixed order Claude
// Code invokes them.
var hookEvents = []struct {
	claudeEvent string
	hookArg     string
}{
	{"UserPromptSubmit", "user_prompt"},
	{"PreToolUse", "pre_tool"},
	{"Stop", "stop"},
	{"Notification", "notification"},
	{"SessionStart", "session_start"},
	{"SessionEnd", "session_end"},
	{"PermissionRequest", "permission_request"},
}

// permissionRequestTimeoutSecs is large because PermissionRequest blocks on
// the long-poll rendezvous until the user responds; Claude Code must not
// kill the hook process before that happens.
const permissionRequestTimeoutSecs = 600

// hookMarker is the substring used to recognize a previously-installed
// agent-desk hook entry among a user's other, unrelated hooks.
const hookMarker = "agent-desk-hook"

// EnsureConfigured idempotently adds (or repairs) agent-desk's hook entries
// in settingsPath, a Claude Code `settings.json`. hookBinary is the
// absolute path to the hook CLI executable to wire into every entry.
// Returns (changed, err): changed is true only when the file was rewritten.
func EnsureConfigured(settingsPath, hookBinary string) (bool, error) {
	if hookBinary == "" {
		return false, fmt.Errorf("hookinstall: hook binary path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(settingsPath), 0o755); err != nil {
		return false, fmt.Errorf("creating settings directory: %w", err)
	}

	root, err := loadOrEmpty(settingsPath)
	if err != nil {
		return false, err
	}

	hooks, ok := root["hooks"].(map[string]any)
	if !ok {
		hooks = map[string]any{}
		root["hooks"] = hooks
	}

	// Claude Code executes hook commands via bash, which eats backslashes.
	hookCmdPath := strings.ReplaceAll(hookBinary, `\`, "/")

	changed := false
	for _, ev := range hookEvents {
		entry := buildEntry(hookCmdPath, ev.claudeEvent, ev.hookArg)
		if mergeEntry(hooks, ev.claudeEvent, entry) {
			changed = true
		}
	}

	if !changed {
		return false, nil
	}

	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.WriteFile(settingsPath, data, 0o644); err != nil {
		return false, fmt.Errorf("writing settings file: %w", err)
	}
	return true, nil
}

func loadOrEmpty(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("reading settings file: %w", err)
	}
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		// Malformed settings file: start fresh rather than abort install.
		return map[string]any{}, nil
	}
	if root == nil {
		root = map[string]any{}
	}
	return root, nil
}

func buildEntry(hookCmdPath, claudeEvent, hookArg string) map[string]any {
	command := fmt.Sprintf("%s --event %s", hookCmdPath, hookArg)
	hookObj := map[string]any{"type": "command", "command": command}
	if claudeEvent == "PermissionRequest" {
		hookObj["timeout"] = permissionRequestTimeoutSecs
	}
	return map[string]any{"hooks": []any{hookObj}}
}

// mergeEntry inserts or updates entry under hooks[claudeEvent], which may be
// missing, a non-array value, or an existing array containing the user's
// own unrelated hooks alongside (or instead of) a prior agent-desk install.
func mergeEntry(hooks map[string]any, claudeEvent string, entry map[string]any) bool {
	arr, ok := hooks[claudeEvent].([]any)
	if !ok {
		hooks[claudeEvent] = []any{entry}
		return true
	}

	idx := -1
	for i, item := range arr {
		if itemContainsHook(item, hookMarker) {
			idx = i
			break
		}
	}

	if idx == -1 {
		hooks[claudeEvent] = append(arr, entry)
		return true
	}
	if entriesEqual(arr[idx], entry) {
		return false
	}
	arr[idx] = entry
	hooks[claudeEvent] = arr
	return true
}

// itemContainsHook reports whether item (flat {type,command} or nested
// {hooks:[{type,command}]}) has a command containing needle.
func itemContainsHook(item any, needle string) bool {
	obj, ok := item.(map[string]any)
	if !ok {
		return false
	}
	if cmd, ok := obj["command"].(string); ok && strings.Contains(cmd, needle) {
		return true
	}
	if nested, ok := obj["hooks"].([]any); ok {
		for _, h := range nested {
			hobj, ok := h.(map[string]any)
			if !ok {
				continue
			}
			if cmd, ok := hobj["command"].(string); ok && strings.Contains(cmd, needle) {
				return true
			}
		}
	}
	return false
}

func entriesEqual(a, b any) bool {
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(aj) == string(bj)
}

// ClaudeSettingsPath returns the default `~/.claude/settings.json` path.
func ClaudeSettingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".claude", "settings.json"), nil
}

// hookBinaryBaseName is the hook CLI's install name, without extension.
const hookBinaryBaseName = "agent-desk-hook"

// HookBinaryPath locates the hook CLI executable next to the running
// daemon binary (the two ship side by side in the same install directory).
func HookBinaryPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolving daemon executable: %w", err)
	}
	name := hookBinaryBaseName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	candidate := filepath.Join(filepath.Dir(exe), name)
	if _, err := os.Stat(candidate); err != nil {
		return "", fmt.Errorf("hook binary not found at %s: %w", candidate, err)
	}
	return candidate, nil
}
