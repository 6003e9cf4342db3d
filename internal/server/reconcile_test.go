package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZAKERR/agent-desk/internal/wire"
)

func TestNormalizeCwd(t *testing.T) {
	assert.Equal(t, "", normalizeCwd(""))
	assert.Equal(t, `c:\users\me\proj`, normalizeCwd("C:/Users/Me/Proj/"))
	assert.Equal(t, normalizeCwd("/home/me/proj"), normalizeCwd("/home/me/proj/"))
}

func TestScanAndMerge_Phase1MatchesByCwd(t *testing.T) {
	processes := []wire.ProcessInfo{{PID: 100, Cwd: "/proj/a"}}
	tracked := []wire.SessionInfo{{SessionID: "sess-1", Cwd: "/proj/a", Status: wire.StatusActive, UpdatedAt: 10}}

	merged := scanAndMerge(processes, tracked)

	require.Len(t, merged, 1)
	assert.Equal(t, "sess-1", merged[0].SessionID)
	assert.Equal(t, 100, merged[0].PID)
	assert.Equal(t, "active", merged[0].Status)
}

func TestScanAndMerge_Phase2FallsBackRegardlessOfCwd(t *testing.T) {
	processes := []wire.ProcessInfo{{PID: 200, Cwd: "/unrelated/path"}}
	tracked := []wire.SessionInfo{{SessionID: "sess-1", Cwd: "/proj/a", Status: wire.StatusWaiting, UpdatedAt: 10}}

	merged := scanAndMerge(processes, tracked)

	require.Len(t, merged, 1, "phase 2 should still pair the orphaned process to the freshest unmatched session")
	assert.Equal(t, "sess-1", merged[0].SessionID)
}

func TestScanAndMerge_PhantomProcessDroppedWhenNoSessionAvailable(t *testing.T) {
	processes := []wire.ProcessInfo{{PID: 300, Cwd: "/nowhere"}}

	merged := scanAndMerge(processes, nil)
	assert.Empty(t, merged)
}

func TestScanAndMerge_EndedSessionsAreIgnored(t *testing.T) {
	processes := []wire.ProcessInfo{{PID: 400, Cwd: "/proj"}}
	tracked := []wire.SessionInfo{{SessionID: "sess-dead", Cwd: "/proj", Status: wire.StatusEnded, UpdatedAt: 999}}

	merged := scanAndMerge(processes, tracked)
	assert.Empty(t, merged)
}

func TestScanAndMerge_PrefersFreshestCandidateOnCollision(t *testing.T) {
	processes := []wire.ProcessInfo{{PID: 500, Cwd: "/proj"}}
	tracked := []wire.SessionInfo{
		{SessionID: "sess-old", Cwd: "/proj", Status: wire.StatusIdle, UpdatedAt: 1},
		{SessionID: "sess-new", Cwd: "/proj", Status: wire.StatusIdle, UpdatedAt: 99},
	}

	merged := scanAndMerge(processes, tracked)
	require.Len(t, merged, 1)
	assert.Equal(t, "sess-new", merged[0].SessionID)
}

func TestComputeState(t *testing.T) {
	assert.Equal(t, wire.StateSleeping, computeState(nil))
	assert.Equal(t, wire.StateAttention, computeState([]wire.MergedSession{{Status: "waiting"}, {Status: "active"}}))
	assert.Equal(t, wire.StateThinking, computeState([]wire.MergedSession{{Status: "active"}}))
	assert.Equal(t, wire.StateDone, computeState([]wire.MergedSession{{Status: "stopped"}}))
}

func TestSortMergedBySessionID(t *testing.T) {
	merged := []wire.MergedSession{{SessionID: "z"}, {SessionID: "a"}, {SessionID: "m"}}
	sortMergedBySessionID(merged)
	assert.Equal(t, []string{"a", "m", "z"}, []string{merged[0].SessionID, merged[1].SessionID, merged[2].SessionID})
}
