package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZAKERR/agent-desk/internal/wire"
)

func tempSnapshotPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "sessions.json")
}

func TestRegister_CreatesIdleSession(t *testing.T) {
	tr := New(tempSnapshotPath(t))
	tr.Register("sess-1", "/home/user/proj", 100)

	info, ok := tr.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, wire.StatusIdle, info.Status)
	assert.Equal(t, "/home/user/proj", info.Cwd)
	assert.Equal(t, float64(100), info.StartedAt)
	assert.Equal(t, float64(100), info.UpdatedAt)
}

func TestUpdate_OnlySetsProvidedFields(t *testing.T) {
	tr := New(tempSnapshotPath(t))
	tr.Register("sess-1", "/proj", 100)

	model := "claude-sonnet"
	status := wire.StatusActive
	tr.Update("sess-1", Update{Model: &model, Status: &status}, 110)

	info, ok := tr.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, "claude-sonnet", info.Model)
	assert.Equal(t, wire.StatusActive, info.Status)
	assert.Equal(t, "/proj", info.Cwd, "untouched field must survive the partial update")
	assert.Equal(t, float64(110), info.UpdatedAt)
}

func TestUpdate_CreatesSessionWhenMissing(t *testing.T) {
	tr := New(tempSnapshotPath(t))

	cwd := "/new"
	tr.Update("sess-unknown", Update{Cwd: &cwd}, 50)

	info, ok := tr.Get("sess-unknown")
	require.True(t, ok)
	assert.Equal(t, wire.StatusIdle, info.Status)
	assert.Equal(t, "/new", info.Cwd)
}

func TestClearNotification_BlanksNotificationFields(t *testing.T) {
	tr := New(tempSnapshotPath(t))
	ntype, nmsg := "permission_prompt", "allow Bash?"
	tr.Update("sess-1", Update{NotificationType: &ntype, NotificationMessage: &nmsg}, 10)

	tr.ClearNotification("sess-1", wire.StatusActive, 20)

	info, ok := tr.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, wire.StatusActive, info.Status)
	assert.Empty(t, info.NotificationType)
	assert.Empty(t, info.NotificationMessage)
}

func TestResolveShortID(t *testing.T) {
	tr := New(tempSnapshotPath(t))
	tr.Register("abc123", "/a", 1)
	tr.Register("abc999", "/b", 1)
	tr.Register("def000", "/c", 1)

	_, ambiguous := tr.ResolveShortID("abc")
	assert.False(t, ambiguous)

	full, ok := tr.ResolveShortID("def")
	assert.True(t, ok)
	assert.Equal(t, "def000", full)

	_, ok = tr.ResolveShortID("zzz")
	assert.False(t, ok)
}

func TestGetActive_ExcludesEndedPastTTL(t *testing.T) {
	tr := New(tempSnapshotPath(t))
	ended := wire.StatusEnded
	tr.Register("sess-1", "/a", 0)
	tr.Update("sess-1", Update{Status: &ended}, 0)

	active := tr.GetActive(60, 120)
	assert.Empty(t, active, "ended session older than ttl must be excluded")

	active = tr.GetActive(1000, 120)
	assert.Len(t, active, 1, "ended session within ttl must still be included")
}

func TestPurgeStale_RemovesOnlyEndedPastTTL(t *testing.T) {
	tr := New(tempSnapshotPath(t))
	ended := wire.StatusEnded
	tr.Register("sess-old", "/a", 0)
	tr.Update("sess-old", Update{Status: &ended}, 0)
	tr.Register("sess-fresh", "/b", 100)

	tr.PurgeStale(60, 120)

	_, ok := tr.Get("sess-old")
	assert.False(t, ok)
	_, ok = tr.Get("sess-fresh")
	assert.True(t, ok)
}

func TestFlushIfDirty_WritesOnlyWhenDirty(t *testing.T) {
	path := tempSnapshotPath(t)
	tr := New(path)

	require.NoError(t, tr.FlushIfDirty())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "no write should happen when nothing changed")

	tr.Register("sess-1", "/a", 1)
	require.NoError(t, tr.FlushIfDirty())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snapshot map[string]wire.SessionInfo
	require.NoError(t, json.Unmarshal(data, &snapshot))
	assert.Contains(t, snapshot, "sess-1")
}

func TestLoad_DemotesStaleActiveSessionToIdle(t *testing.T) {
	path := tempSnapshotPath(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	snapshot := map[string]wire.SessionInfo{
		"sess-stale": {SessionID: "sess-stale", Status: wire.StatusActive, UpdatedAt: 0},
		"sess-fresh": {SessionID: "sess-fresh", Status: wire.StatusActive, UpdatedAt: 95},
	}
	data, err := json.Marshal(snapshot)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	tr, err := Load(path, 60, 100)
	require.NoError(t, err)

	stale, ok := tr.Get("sess-stale")
	require.True(t, ok)
	assert.Equal(t, wire.StatusIdle, stale.Status)

	fresh, ok := tr.Get("sess-fresh")
	require.True(t, ok)
	assert.Equal(t, wire.StatusActive, fresh.Status)
}

func TestLoad_MissingFileReturnsEmptyTracker(t *testing.T) {
	tr, err := Load(tempSnapshotPath(t), 60, 100)
	require.NoError(t, err)
	assert.Empty(t, tr.All())
}
