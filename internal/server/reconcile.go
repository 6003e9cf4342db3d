package server

import (
	"sort"
	"strings"

	"github.com/ZAKERR/agent-desk/internal/wire"
)

// normalizeCwd lowercases, converts to backslash form, and strips trailing
// separators; an empty cwd normalizes to "" and is never used as a map key.
func normalizeCwd(cwd string) string {
	if cwd == "" {
		return ""
	}
	n := strings.ToLower(strings.ReplaceAll(cwd, "/", "\\"))
	n = strings.TrimRight(n, "\\")
	return n
}

// mergedStatus maps a SessionStatus to the merged-row status string used
// in the reconciled output (spec.md §4.10 step 3).
func mergedStatus(s wire.SessionStatus) string {
	switch s {
	case wire.StatusWaiting, wire.StatusIdle:
		return "waiting"
	case wire.StatusStopped, wire.StatusEnded:
		return "stopped"
	case wire.StatusActive:
		return "active"
	default:
		return "waiting"
	}
}

// scanAndMerge runs the two-phase reconciliation algorithm (spec.md §4.10):
// phase 1 pairs processes to tracked sessions by normalized cwd (picking
// the freshest candidate on a collision); phase 2 pairs any processes left
// unmatched to the freshest still-unmatched non-Ended tracker entry,
// regardless of cwd, because a running process proves the session lives
// even though the scanner's cwd (the process image directory) is
// unreliable. Processes with no pairing at all are dropped as phantoms;
// tracker entries with no process are dropped as stale.
func scanAndMerge(cachedProcesses []wire.ProcessInfo, tracked []wire.SessionInfo) []wire.MergedSession {
	byCwd := make(map[string][]wire.SessionInfo)
	var unmatchedPool []wire.SessionInfo
	for _, s := range tracked {
		if s.Status == wire.StatusEnded {
			continue
		}
		unmatchedPool = append(unmatchedPool, s)
		if n := normalizeCwd(s.Cwd); n != "" {
			byCwd[n] = append(byCwd[n], s)
		}
	}

	matchedSessionIDs := make(map[string]bool)
	var merged []wire.MergedSession
	var unmatchedProcesses []wire.ProcessInfo

	// Phase 1: cwd-keyed matching.
	for _, p := range cachedProcesses {
		candidates := byCwd[normalizeCwd(p.Cwd)]
		best, ok := freshestUnmatched(candidates, matchedSessionIDs)
		if !ok {
			unmatchedProcesses = append(unmatchedProcesses, p)
			continue
		}

		matchedSessionIDs[best.SessionID] = true
		cwd := p.Cwd
		if best.Cwd != "" {
			cwd = best.Cwd
		}
		merged = append(merged, wire.MergedSession{
			SessionID: best.SessionID,
			PID:       p.PID,
			Cwd:       cwd,
			Status:    mergedStatus(best.Status),
			Model:     best.Model,
			UpdatedAt: best.UpdatedAt,
		})
	}

	// Phase 2: pair remaining processes with the freshest still-unmatched
	// tracker entry, regardless of cwd.
	for _, p := range unmatchedProcesses {
		best, ok := freshestUnmatched(unmatchedPool, matchedSessionIDs)
		if !ok {
			continue // phantom: no tracker pairing available, drop.
		}
		matchedSessionIDs[best.SessionID] = true
		cwd := p.Cwd
		if best.Cwd != "" {
			cwd = best.Cwd
		}
		merged = append(merged, wire.MergedSession{
			SessionID: best.SessionID,
			PID:       p.PID,
			Cwd:       cwd,
			Status:    mergedStatus(best.Status),
			Model:     best.Model,
			UpdatedAt: best.UpdatedAt,
		})
	}

	return merged
}

// freshestUnmatched returns the candidate with the greatest UpdatedAt that
// isn't already in matched.
func freshestUnmatched(candidates []wire.SessionInfo, matched map[string]bool) (wire.SessionInfo, bool) {
	var best wire.SessionInfo
	found := false
	for _, c := range candidates {
		if matched[c.SessionID] {
			continue
		}
		if !found || c.UpdatedAt > best.UpdatedAt {
			best = c
			found = true
		}
	}
	return best, found
}

// computeState is a total function of the merged list (spec.md §4.10,
// Testable Property 7): empty -> sleeping; any waiting -> attention; else
// any active -> thinking; else done.
func computeState(merged []wire.MergedSession) wire.CoreState {
	if len(merged) == 0 {
		return wire.StateSleeping
	}
	hasWaiting := false
	hasActive := false
	for _, m := range merged {
		switch m.Status {
		case "waiting":
			hasWaiting = true
		case "active":
			hasActive = true
		}
	}
	if hasWaiting {
		return wire.StateAttention
	}
	if hasActive {
		return wire.StateThinking
	}
	return wire.StateDone
}

// sortMergedBySessionID keeps reconciled output stable for tests and for
// a readable /api/sessions response.
func sortMergedBySessionID(merged []wire.MergedSession) {
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].SessionID < merged[j].SessionID
	})
}
