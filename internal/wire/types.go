// Package wire is the single source of truth for every field that crosses
// the hook/daemon/core-server boundary: the tagged event enum, session
// status enum, and the request/response payloads described in spec.md §3/§6.
//
// Everything here decodes structurally — absent fields take their type's
// zero value rather than failing — so a hook payload from an older or newer
// agent build never breaks the pipeline.
package wire

import "encoding/json"

// HookEvent is the tagged variant of lifecycle events a hook can report.
type HookEvent string

const (
	EventUserPrompt        HookEvent = "user_prompt"
	EventPreTool           HookEvent = "pre_tool"
	EventStop              HookEvent = "stop"
	EventNotification      HookEvent = "notification"
	EventSessionStart      HookEvent = "session_start"
	EventSessionEnd        HookEvent = "session_end"
	EventPermissionRequest HookEvent = "permission_request"
	EventUnknown           HookEvent = "unknown"
)

var knownHookEvents = map[string]HookEvent{
	string(EventUserPrompt):        EventUserPrompt,
	string(EventPreTool):           EventPreTool,
	string(EventStop):              EventStop,
	string(EventNotification):      EventNotification,
	string(EventSessionStart):      EventSessionStart,
	string(EventSessionEnd):        EventSessionEnd,
	string(EventPermissionRequest): EventPermissionRequest,
}

// ParseHookEvent maps a raw event name to its enum value, defaulting to
// EventUnknown for anything not recognized (including the empty string).
func ParseHookEvent(s string) HookEvent {
	if e, ok := knownHookEvents[s]; ok {
		return e
	}
	return EventUnknown
}

// UnmarshalJSON decodes an unrecognized string into EventUnknown instead of
// failing, matching the "unrecognized strings decode to Unknown" rule.
func (e *HookEvent) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*e = ParseHookEvent(s)
	return nil
}

// EventLevel is the severity bucket an Event is filed under.
type EventLevel int

const (
	LevelInfo         EventLevel = 1
	LevelStop         EventLevel = 2
	LevelNotification EventLevel = 3
)

// LevelFor returns the log level for a given hook event per spec.md §3.
func LevelFor(e HookEvent) EventLevel {
	switch e {
	case EventStop:
		return LevelStop
	case EventNotification:
		return LevelNotification
	default:
		return LevelInfo
	}
}

// SessionStatus is the state-machine value tracked per session.
type SessionStatus string

const (
	StatusIdle    SessionStatus = "idle"
	StatusActive  SessionStatus = "active"
	StatusWaiting SessionStatus = "waiting"
	StatusEnded   SessionStatus = "ended"
	StatusStopped SessionStatus = "stopped"
	StatusUnknown SessionStatus = "unknown"
)

var knownStatuses = map[string]SessionStatus{
	string(StatusIdle):    StatusIdle,
	string(StatusActive):  StatusActive,
	string(StatusWaiting): StatusWaiting,
	string(StatusEnded):   StatusEnded,
	string(StatusStopped): StatusStopped,
}

// ParseSessionStatus defaults anything unrecognized to StatusUnknown.
func ParseSessionStatus(s string) SessionStatus {
	if v, ok := knownStatuses[s]; ok {
		return v
	}
	return StatusUnknown
}

func (s *SessionStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = ParseSessionStatus(raw)
	return nil
}

// PermissionDecisionKind is the decision a user makes on a permission gate.
type PermissionDecisionKind string

const (
	DecisionAllow       PermissionDecisionKind = "allow"
	DecisionDeny        PermissionDecisionKind = "deny"
	DecisionAlwaysAllow PermissionDecisionKind = "always_allow"
)

func (k PermissionDecisionKind) Valid() bool {
	switch k {
	case DecisionAllow, DecisionDeny, DecisionAlwaysAllow:
		return true
	default:
		return false
	}
}

// HookPayload is the neutral JSON blob read from a hook's stdin. Its field
// set is open (tool_input shapes vary per tool), so it is kept as a raw map
// rather than a closed struct; the relay/client layer only ever needs to
// inject a handful of well-known keys into it.
type HookPayload map[string]any

// SessionID extracts "session_id" if present and is a string.
func (p HookPayload) SessionID() string {
	return p.stringField("session_id")
}

// Cwd extracts "cwd" if present and is a string.
func (p HookPayload) Cwd() string {
	return p.stringField("cwd")
}

func (p HookPayload) stringField(key string) string {
	if p == nil {
		return ""
	}
	if v, ok := p[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SignalPayload is the typed body of POST /api/signal — the full event
// pipeline entry point. Every field absent in the wire JSON decodes to its
// zero value (empty string, zero time).
type SignalPayload struct {
	Event                 HookEvent `json:"event"`
	SessionID             string    `json:"session_id"`
	Cwd                   string    `json:"cwd"`
	Model                 string    `json:"model,omitempty"`
	Message               string    `json:"message,omitempty"`
	NotificationType      string    `json:"notification_type,omitempty"`
	NotificationMessage   string    `json:"notification_message,omitempty"`
	LastAssistantMessage  string    `json:"last_assistant_message,omitempty"`
	AgentPID              int       `json:"agent_pid,omitempty"`
	ParentSessionID       string    `json:"parent_session_id,omitempty"`
}

// IsPermissionPrompt reports whether a notification signal is specifically
// the "waiting on a permission prompt" kind (vs. a generic notification).
func (p SignalPayload) IsPermissionPrompt() bool {
	return p.NotificationType == "permission_prompt"
}

// PermissionRequest is a pending tool-approval request awaiting a human
// decision, delivered through the indicator UI (spec.md §3/§4.6).
type PermissionRequest struct {
	ID                    string            `json:"id"`
	SessionID             string            `json:"session_id"`
	Cwd                   string            `json:"cwd"`
	ToolName              string            `json:"tool_name"`
	ToolInput             json.RawMessage   `json:"tool_input"`
	PermissionSuggestions []json.RawMessage `json:"permission_suggestions"`
	Timestamp             float64           `json:"timestamp"`
	TimeoutSecs           int               `json:"timeout_secs"`
}

// PermissionRequestInput is the decoded POST /api/permission-request body,
// before an id and timestamp are minted by the server.
type PermissionRequestInput struct {
	SessionID             string            `json:"session_id"`
	Cwd                   string            `json:"cwd"`
	ToolName              string            `json:"tool_name"`
	ToolInput             json.RawMessage   `json:"tool_input"`
	PermissionSuggestions []json.RawMessage `json:"permission_suggestions"`
	TimeoutSecs           int               `json:"timeout_secs"`
}

// PermissionRespondInput is the decoded POST /api/permission-respond body.
type PermissionRespondInput struct {
	ID       string                 `json:"id"`
	Decision PermissionDecisionKind `json:"decision"`
}

// PermissionDecisionOutcome is delivered over a request's one-shot channel.
type PermissionDecisionOutcome struct {
	Kind PermissionDecisionKind
}

// PermissionHookResponse is the fixed agent-shaped schema the hook relay
// echoes back to the blocking hook invocation (spec.md §6).
type PermissionHookResponse struct {
	HookSpecificOutput PermissionHookSpecificOutput `json:"hookSpecificOutput"`
}

type PermissionHookSpecificOutput struct {
	HookEventName string             `json:"hookEventName"`
	Decision      PermissionDecision `json:"decision"`
}

type PermissionDecision struct {
	Behavior           string            `json:"behavior"`
	UpdatedPermissions []json.RawMessage `json:"updatedPermissions"`
}

// NewPermissionHookResponse builds the fixed-schema response for a decision.
func NewPermissionHookResponse(kind PermissionDecisionKind, suggestions []json.RawMessage) PermissionHookResponse {
	behavior := "deny"
	var updated []json.RawMessage
	switch kind {
	case DecisionAllow, DecisionAlwaysAllow:
		behavior = "approve"
		if kind == DecisionAlwaysAllow {
			updated = suggestions
		}
	}
	if updated == nil {
		updated = []json.RawMessage{}
	}
	return PermissionHookResponse{
		HookSpecificOutput: PermissionHookSpecificOutput{
			HookEventName: "PermissionRequest",
			Decision: PermissionDecision{
				Behavior:           behavior,
				UpdatedPermissions: updated,
			},
		},
	}
}

// Event is an immutable (once written) row in the append-only event log.
type Event struct {
	ID                   string    `json:"id"`
	Ts                   float64   `json:"ts"`
	Event                HookEvent `json:"event"`
	SessionID            string    `json:"session_id"`
	Cwd                  string    `json:"cwd"`
	Message              string    `json:"message"`
	NotificationType     string    `json:"notification_type,omitempty"`
	LastAssistantMessage string    `json:"last_assistant_message,omitempty"`
	Level                EventLevel `json:"level"`
	Cleared              bool      `json:"cleared"`
}

// SessionInfo is the tracked state for one agent session (spec.md §3).
type SessionInfo struct {
	SessionID           string        `json:"session_id"`
	Cwd                 string        `json:"cwd"`
	Model               string        `json:"model,omitempty"`
	Status              SessionStatus `json:"status"`
	StartedAt           float64       `json:"started_at"`
	UpdatedAt           float64       `json:"updated_at"`
	LastMessage         string        `json:"last_message,omitempty"`
	NotificationType    string        `json:"notification_type,omitempty"`
	NotificationMessage string        `json:"notification_message,omitempty"`
	AgentPID            int           `json:"agent_pid,omitempty"`
	ParentSessionID     string        `json:"parent_session_id,omitempty"`
}

// ProcessInfo is a single row of a process-table snapshot (spec.md §4.7).
type ProcessInfo struct {
	PID        int     `json:"pid"`
	Name       string  `json:"name"`
	AgentType  string  `json:"agent_type"`
	Cwd        string  `json:"cwd"`
	Uptime     float64 `json:"uptime"`
	CreateTime float64 `json:"create_time"`
}

// MergedSession is one row of the reconciled session↔process list
// produced by scan_and_merge (spec.md §4.10).
type MergedSession struct {
	SessionID string  `json:"session_id"`
	PID       int     `json:"pid"`
	Cwd       string  `json:"cwd"`
	Status    string  `json:"status"`
	Model     string  `json:"model,omitempty"`
	UpdatedAt float64 `json:"updated_at"`
}

// CoreState is compute_state's result over a merged list.
type CoreState string

const (
	StateSleeping CoreState = "sleeping"
	StateAttention CoreState = "attention"
	StateThinking CoreState = "thinking"
	StateDone     CoreState = "done"
)
