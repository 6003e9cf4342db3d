// Package focus implements the terminal-focus resolver (spec.md §4.9): a
// Win32-only process-tree walk that, given a session, activates the
// correct terminal window and the correct tab of a multi-tab terminal
// host. Non-Windows builds (focus_other.go) return false unconditionally.
package focus

import "github.com/ZAKERR/agent-desk/internal/wire"

// Request is the input to Focus: at least one of Cwd or PID should be set.
type Request struct {
	Cwd     string
	PID     int
	HasPID  bool
	Cached  []wire.ProcessInfo
}

// Resolver resolves a session to a focused terminal window.
type Resolver interface {
	// Focus tries, in order: PID walk, CWD process walk, title scan.
	// Returns true if a terminal window was activated.
	Focus(req Request) bool
}

// terminalProcesses is the fixed allow-list of terminal host executables
// recognized by the PID walk and title scan strategies.
var terminalProcesses = map[string]struct{}{
	"windowsterminal.exe": {},
	"wt.exe":              {},
	"cmd.exe":             {},
	"powershell.exe":      {},
	"pwsh.exe":            {},
	"conhost.exe":         {},
	"alacritty.exe":       {},
	"wezterm-gui.exe":     {},
	"hyper.exe":           {},
}

// shellChildAllowList is the fixed allow-list of direct shell children
// Windows Terminal tabs host, used to order tabs by creation time.
var shellChildAllowList = map[string]struct{}{
	"cmd.exe":        {},
	"powershell.exe": {},
	"pwsh.exe":       {},
	"bash.exe":       {},
	"wsl.exe":        {},
	"zsh.exe":        {},
}

func isTerminalProcess(lowerName string) bool {
	_, ok := terminalProcesses[lowerName]
	return ok
}

func isShellChild(lowerName string) bool {
	_, ok := shellChildAllowList[lowerName]
	return ok
}

// normalizeCwdVariants returns the three lowercased CWD matching forms the
// title-contains check tries: backslash form, forward-slash form, and
// basename.
func normalizeCwdVariants(cwd string) []string {
	if cwd == "" {
		return nil
	}
	backslash := toLowerBackslash(cwd)
	forward := toLowerForward(cwd)
	base := baseName(cwd)

	variants := []string{backslash}
	if forward != backslash {
		variants = append(variants, forward)
	}
	if base != "" && base != backslash && base != forward {
		variants = append(variants, base)
	}
	return variants
}
