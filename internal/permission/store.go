// Package permission implements the long-poll rendezvous between a blocked
// hook invocation and a human decision delivered through the indicator UI
// (spec.md §4.6, §9 "Long-poll as a rendezvous"). It pairs a request id
// with a single-use channel; the HTTP handler awaits the receiver, and a
// sibling HTTP call (the UI's respond action) delivers the sender.
package permission

import (
	"sync"

	"github.com/ZAKERR/agent-desk/internal/wire"
)

// pending bundles a PermissionRequest with its one-shot decision channel.
type pending struct {
	req        wire.PermissionRequest
	decisionCh chan wire.PermissionDecisionOutcome
}

// ruleKey identifies a (session, tool) auto-approve rule.
type ruleKey struct {
	sessionID string
	toolName  string
}

// Store holds pending permission requests, their one-shot decision
// channels, and per-session auto-approve rules, each under its own lock.
type Store struct {
	mu      sync.RWMutex
	pending map[string]*pending

	rulesMu sync.RWMutex
	rules   map[ruleKey]bool
}

// New creates an empty permission store.
func New() *Store {
	return &Store{
		pending: make(map[string]*pending),
		rules:   make(map[ruleKey]bool),
	}
}

// Register inserts req and returns the receiver half of a new one-shot
// decision channel. For every pending request there is exactly one live
// decision channel (spec.md §3 invariant); removing the request removes
// the channel too (see Remove/Respond).
func (s *Store) Register(req wire.PermissionRequest) <-chan wire.PermissionDecisionOutcome {
	ch := make(chan wire.PermissionDecisionOutcome, 1)

	s.mu.Lock()
	s.pending[req.ID] = &pending{req: req, decisionCh: ch}
	s.mu.Unlock()

	return ch
}

// Respond removes the request and forwards the decision on its channel.
// Returns true if a pending request with that id existed.
func (s *Store) Respond(id string, decision wire.PermissionDecisionKind) bool {
	s.mu.Lock()
	p, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}

	select {
	case p.decisionCh <- wire.PermissionDecisionOutcome{Kind: decision}:
	default:
		// Buffered with capacity 1; this should never block, but never panic either.
	}
	return true
}

// Remove cleans up the pending request and its channel without signaling
// a decision — used on timeout, where the caller independently treats the
// absence of a decision as Deny.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// Get returns the pending request by id, mainly so a handler can look up
// its session_id before calling Respond.
func (s *Store) Get(id string) (wire.PermissionRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pending[id]
	if !ok {
		return wire.PermissionRequest{}, false
	}
	return p.req, true
}

// List returns every pending request (GET /api/permissions).
func (s *Store) List() []wire.PermissionRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]wire.PermissionRequest, 0, len(s.pending))
	for _, p := range s.pending {
		result = append(result, p.req)
	}
	return result
}

// Count returns the number of pending requests (GET /api/health).
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// AddSessionRule records an auto-approve rule for (session_id, tool_name).
func (s *Store) AddSessionRule(sessionID, toolName string) {
	s.rulesMu.Lock()
	defer s.rulesMu.Unlock()
	s.rules[ruleKey{sessionID, toolName}] = true
}

// CheckSessionRule reports whether an auto-approve rule exists for the
// (session_id, tool_name) pair.
func (s *Store) CheckSessionRule(sessionID, toolName string) bool {
	s.rulesMu.RLock()
	defer s.rulesMu.RUnlock()
	return s.rules[ruleKey{sessionID, toolName}]
}

// ClearSessionRules drops every auto-approve rule for a session, e.g. on
// SessionEnd.
func (s *Store) ClearSessionRules(sessionID string) {
	s.rulesMu.Lock()
	defer s.rulesMu.Unlock()
	for k := range s.rules {
		if k.sessionID == sessionID {
			delete(s.rules, k)
		}
	}
}
