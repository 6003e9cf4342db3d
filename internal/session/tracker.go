// Package session implements the in-memory session map and its persisted
// snapshot (spec.md §3/§4.5): registration, partial updates, stale-session
// demotion on startup, and dirty-flag-gated flushing.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZAKERR/agent-desk/internal/wire"
)

// Update carries only the fields that should be applied on an existing
// SessionInfo; nil-equivalent (unset) fields are left untouched.
type Update struct {
	Cwd                 *string
	Model               *string
	Status              *wire.SessionStatus
	LastMessage         *string
	NotificationType    *string
	NotificationMessage *string
	AgentPID            *int
	ParentSessionID     *string
}

// Tracker holds the live session map plus a dirty-flag-gated snapshot path.
type Tracker struct {
	path string

	mu       sync.RWMutex
	sessions map[string]wire.SessionInfo

	dirty atomic.Bool
}

// New creates an empty tracker backed by the given snapshot path.
func New(path string) *Tracker {
	return &Tracker{
		path:     path,
		sessions: make(map[string]wire.SessionInfo),
	}
}

// Load reads the persisted snapshot (if any) and runs the startup stale
// demotion pass: any session whose updated_at is older than staleSecs and
// whose status is Active|Waiting|Stopped is demoted to Idle without
// bumping updated_at, so reconciliation doesn't treat it as fresh.
func Load(path string, staleSecs float64, now float64) (*Tracker, error) {
	t := New(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return t, nil // silent empty result on read failure, per spec §4.4/§4.5 semantics
	}

	var snapshot map[string]wire.SessionInfo
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return t, nil
	}

	for id, info := range snapshot {
		if isStaleDemotable(info, staleSecs, now) {
			info.Status = wire.StatusIdle
		}
		t.sessions[id] = info
	}
	return t, nil
}

func isStaleDemotable(info wire.SessionInfo, staleSecs float64, now float64) bool {
	switch info.Status {
	case wire.StatusActive, wire.StatusWaiting, wire.StatusStopped:
	default:
		return false
	}
	return now-info.UpdatedAt > staleSecs
}

// Register inserts a fresh session at Idle status with started_at=now.
func (t *Tracker) Register(sessionID, cwd string, now float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sessions[sessionID] = wire.SessionInfo{
		SessionID: sessionID,
		Cwd:       cwd,
		Status:    wire.StatusIdle,
		StartedAt: now,
		UpdatedAt: now,
	}
	t.markDirty()
}

// Update applies only the Some (non-nil) fields of upd to an existing
// session, or creates one at Idle if it doesn't exist yet.
func (t *Tracker) Update(sessionID string, upd Update, now float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.sessions[sessionID]
	if !ok {
		info = wire.SessionInfo{
			SessionID: sessionID,
			Status:    wire.StatusIdle,
			StartedAt: now,
		}
	}

	if upd.Cwd != nil {
		info.Cwd = *upd.Cwd
	}
	if upd.Model != nil {
		info.Model = *upd.Model
	}
	if upd.Status != nil {
		info.Status = *upd.Status
	}
	if upd.LastMessage != nil {
		info.LastMessage = *upd.LastMessage
	}
	if upd.NotificationType != nil {
		info.NotificationType = *upd.NotificationType
	}
	if upd.NotificationMessage != nil {
		info.NotificationMessage = *upd.NotificationMessage
	}
	if upd.AgentPID != nil {
		info.AgentPID = *upd.AgentPID
	}
	if upd.ParentSessionID != nil {
		info.ParentSessionID = *upd.ParentSessionID
	}
	info.UpdatedAt = now

	t.sessions[sessionID] = info
	t.markDirty()
}

// ClearNotification sets status and blanks
// notification_type/notification_message in a single update.
func (t *Tracker) ClearNotification(sessionID string, status wire.SessionStatus, now float64) {
	empty := ""
	t.Update(sessionID, Update{Status: &status, NotificationType: &empty, NotificationMessage: &empty}, now)
}

// Remove deletes a session entry outright (DELETE /api/session/{id}).
func (t *Tracker) Remove(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
	t.markDirty()
}

// Get returns a session by its full id.
func (t *Tracker) Get(sessionID string) (wire.SessionInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.sessions[sessionID]
	return info, ok
}

// ResolveShortID returns the full session id iff exactly one key starts
// with the given prefix.
func (t *Tracker) ResolveShortID(prefix string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var match string
	count := 0
	for id := range t.sessions {
		if strings.HasPrefix(id, prefix) {
			match = id
			count++
			if count > 1 {
				return "", false
			}
		}
	}
	if count == 1 {
		return match, true
	}
	return "", false
}

// GetActive returns every session not excluded by the Ended+ttl rule: a
// session with status Ended is excluded once ttl seconds have passed since
// its last update.
func (t *Tracker) GetActive(ttlSecs float64, now float64) []wire.SessionInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]wire.SessionInfo, 0, len(t.sessions))
	for _, info := range t.sessions {
		if info.Status == wire.StatusEnded && now-info.UpdatedAt > ttlSecs {
			continue
		}
		result = append(result, info)
	}
	return result
}

// All returns every tracked session, for pure read projections.
func (t *Tracker) All() []wire.SessionInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make([]wire.SessionInfo, 0, len(t.sessions))
	for _, info := range t.sessions {
		result = append(result, info)
	}
	return result
}

// PurgeStale removes Ended sessions whose updated_at is older than ttl.
func (t *Tracker) PurgeStale(ttlSecs float64, now float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, info := range t.sessions {
		if info.Status == wire.StatusEnded && now-info.UpdatedAt > ttlSecs {
			delete(t.sessions, id)
		}
	}
	t.markDirty()
}

// markDirty must be called with mu held.
func (t *Tracker) markDirty() {
	t.dirty.Store(true)
}

// FlushIfDirty writes a pretty JSON snapshot only if the dirty flag was set,
// clearing it atomically first so a concurrent mutation during the write is
// not lost (it will simply mark dirty again and be picked up next tick).
func (t *Tracker) FlushIfDirty() error {
	if !t.dirty.CompareAndSwap(true, false) {
		return nil
	}

	t.mu.RLock()
	snapshot := make(map[string]wire.SessionInfo, len(t.sessions))
	for k, v := range t.sessions {
		snapshot[k] = v
	}
	t.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return err
	}

	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, t.path)
}

// NowUnix returns the current time as a float64 Unix-seconds value with
// microsecond precision, matching the timestamp format used throughout the
// wire protocol.
func NowUnix() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
