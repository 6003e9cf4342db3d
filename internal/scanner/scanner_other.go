//go:build !windows

package scanner

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ZAKERR/agent-desk/internal/wire"
)

// scanProcesses provides a best-effort process snapshot on non-Windows
// platforms via /proc. Terminal focus (spec.md §4.9) is Windows-only and
// degrades to a no-op elsewhere, but the process scanner itself still has
// a reasonable cross-platform home so reconciliation (§4.10) has
// something to merge against in local development.
func scanProcesses(a Adapter) []wire.ProcessInfo {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}

	var result []wire.ProcessInfo
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		name, ok := readComm(pid)
		if !ok {
			continue
		}
		lowerName := strings.ToLower(name)
		if !a.matches(lowerName) {
			continue
		}

		result = append(result, wire.ProcessInfo{
			PID:        pid,
			Name:       name,
			Cwd:        readCwd(pid),
			CreateTime: unixNow(),
		})
	}
	return result
}

func readComm(pid int) (string, bool) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "comm"))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

func readCwd(pid int) string {
	link, err := os.Readlink(filepath.Join("/proc", strconv.Itoa(pid), "cwd"))
	if err != nil {
		return ""
	}
	return link
}
