//go:build windows

package scanner

import (
	"path/filepath"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/ZAKERR/agent-desk/internal/wire"
)

// scanProcesses snapshots the OS process table via Toolhelp32 and returns
// every entry matching the adapter's include/exclude name sets (spec.md
// §4.7). Each entry's UTF-16 name is converted to a Go string and
// lower-cased before matching, so every process in the snapshot, matching
// or not, costs those two string allocations.
func scanProcesses(a Adapter) []wire.ProcessInfo {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	if err := windows.Process32First(snap, &entry); err != nil {
		return nil
	}

	var result []wire.ProcessInfo
	for {
		name := windows.UTF16ToString(entry.ExeFile[:])
		lowerName := strings.ToLower(name)

		if a.matches(lowerName) {
			result = append(result, inspectProcess(entry.ProcessID, name))
		}

		if err := windows.Process32Next(snap, &entry); err != nil {
			break
		}
	}
	return result
}

// inspectProcess opens a single process with minimum-information rights
// and fills in cwd/create-time best-effort; any failure on a single
// process yields empty strings and now rather than aborting the scan.
func inspectProcess(pid uint32, name string) wire.ProcessInfo {
	info := wire.ProcessInfo{
		PID:        int(pid),
		Name:       name,
		CreateTime: unixNow(),
	}

	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return info
	}
	defer windows.CloseHandle(h)

	if path, err := queryFullImageName(h); err == nil {
		// Scanner cwd is the process image directory, not the process
		// working directory (reading PEB.ProcessParameters is not done);
		// downstream reconciliation treats it as unreliable by design.
		info.Cwd = filepath.Dir(path)
	}

	var creation, exit, kernel, user syscall.Filetime
	if err := syscall.GetProcessTimes(syscall.Handle(h), &creation, &exit, &kernel, &user); err == nil {
		info.CreateTime = filetimeToUnix(creation)
		info.Uptime = unixNow() - info.CreateTime
	}

	return info
}

func queryFullImageName(h windows.Handle) (string, error) {
	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return "", err
	}
	return windows.UTF16ToString(buf[:size]), nil
}

// filetimeToUnix converts a Windows FILETIME (100ns ticks since 1601) to
// Unix seconds as a float64.
func filetimeToUnix(ft syscall.Filetime) float64 {
	const ticksPerSecond = 1e7
	const epochDiffSeconds = 11644473600 // 1601-01-01 to 1970-01-01
	ticks := int64(ft.HighDateTime)<<32 | int64(ft.LowDateTime)
	return float64(ticks)/ticksPerSecond - epochDiffSeconds
}
