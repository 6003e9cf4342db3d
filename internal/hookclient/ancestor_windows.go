//go:build windows

package hookclient

import (
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

// agentExecutableNames is the set of process names recognized as "the
// agent" when walking the parent chain (spec.md §4.1).
var agentExecutableNames = map[string]struct{}{
	"claude.exe": {},
	"claude":     {},
	"node.exe":   {},
}

// nearestAncestorAgentPID walks the parent-process chain up to
// maxAncestorWalk levels looking for a process whose name matches the
// agent's executable, returning its PID.
func nearestAncestorAgentPID() (int, bool) {
	tree, err := captureProcessTree()
	if err != nil {
		return 0, false
	}

	current := uint32(os.Getpid())
	for level := 0; level < maxAncestorWalk; level++ {
		node, ok := tree[current]
		if !ok {
			return 0, false
		}
		if _, isAgent := agentExecutableNames[node.lowerName]; isAgent {
			return int(node.pid), true
		}
		if node.parentPid == 0 {
			return 0, false
		}
		current = node.parentPid
	}
	return 0, false
}

type procNode struct {
	pid       uint32
	parentPid uint32
	lowerName string
}

func captureProcessTree() (map[uint32]procNode, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	tree := make(map[uint32]procNode)
	if err := windows.Process32First(snap, &entry); err != nil {
		return tree, nil
	}
	for {
		name := windows.UTF16ToString(entry.ExeFile[:])
		tree[entry.ProcessID] = procNode{
			pid:       entry.ProcessID,
			parentPid: entry.ParentProcessID,
			lowerName: strings.ToLower(name),
		}
		if err := windows.Process32Next(snap, &entry); err != nil {
			break
		}
	}
	return tree, nil
}
