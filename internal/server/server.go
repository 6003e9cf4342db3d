// Package server implements the Core Server (C10): the HTTP/SSE surface
// that orchestrates every other component (spec.md §4.10/§6). It owns no
// business rules of its own beyond the merge/reconciliation helpers in
// reconcile.go and the state-transition table in transitions.go — every
// mutation is delegated to the C4–C9/C11 stores it holds a reference to.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ZAKERR/agent-desk/internal/audit"
	"github.com/ZAKERR/agent-desk/internal/broadcast"
	"github.com/ZAKERR/agent-desk/internal/common/config"
	"github.com/ZAKERR/agent-desk/internal/common/httpmw"
	"github.com/ZAKERR/agent-desk/internal/common/logger"
	"github.com/ZAKERR/agent-desk/internal/dedup"
	"github.com/ZAKERR/agent-desk/internal/eventstore"
	"github.com/ZAKERR/agent-desk/internal/focus"
	"github.com/ZAKERR/agent-desk/internal/permission"
	"github.com/ZAKERR/agent-desk/internal/push"
	"github.com/ZAKERR/agent-desk/internal/scanner"
	"github.com/ZAKERR/agent-desk/internal/sendinput"
	"github.com/ZAKERR/agent-desk/internal/session"
	"github.com/ZAKERR/agent-desk/internal/settings"
	"github.com/ZAKERR/agent-desk/internal/tracing"
	"github.com/ZAKERR/agent-desk/internal/wire"
)

// Server wires C3–C9/C11 together behind the HTTP/SSE surface described in
// spec.md §6.
type Server struct {
	cfg      *config.Config
	log      *logger.Logger
	events   *eventstore.Store
	sessions *session.Tracker
	perms    *permission.Store
	registry *scanner.Registry
	focus    focus.Resolver
	dedup    *dedup.Cache
	stream   *broadcast.Broadcaster
	pusher   *push.Dispatcher
	audit    *audit.Store      // optional, may be nil
	settings *settings.Store   // optional, may be nil

	startedAt  time.Time
	lastSeenTs atomic.Value // float64
}

// New builds a Server. auditStore and settingsStore may both be nil: they
// are supplemental features and the server degrades gracefully rather
// than failing startup.
func New(
	cfg *config.Config,
	log *logger.Logger,
	events *eventstore.Store,
	sessions *session.Tracker,
	perms *permission.Store,
	registry *scanner.Registry,
	resolver focus.Resolver,
	dedupCache *dedup.Cache,
	stream *broadcast.Broadcaster,
	pusher *push.Dispatcher,
	auditStore *audit.Store,
	settingsStore *settings.Store,
) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		events:    events,
		sessions:  sessions,
		perms:     perms,
		registry:  registry,
		focus:     resolver,
		dedup:     dedupCache,
		stream:    stream,
		pusher:    pusher,
		audit:     auditStore,
		settings:  settingsStore,
		startedAt: time.Now(),
	}
	s.lastSeenTs.Store(float64(0))
	return s
}

// Router builds the Gin engine with every endpoint from spec.md §6.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(httpmw.Recovery(s.log))
	r.Use(httpmw.RequestLogger(s.log))
	r.Use(httpmw.CORS())
	r.Use(httpmw.VersionHeader())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/status", s.handleStatus)
	r.GET("/api/all", s.handleAll)
	r.GET("/api/events", s.handleEvents)
	r.GET("/api/sessions", s.handleSessions)
	r.GET("/api/sessions/tree", s.handleSessionsTree)
	r.GET("/api/stream", s.handleStream)
	r.POST("/api/hook", s.handleHook)
	r.POST("/api/signal", s.handleSignal)
	r.POST("/api/pre-tool-check", s.handlePreToolCheck)
	r.POST("/api/permission-request", s.handlePermissionRequest)
	r.POST("/api/permission-respond", s.handlePermissionRespond)
	r.GET("/api/permissions", s.handlePermissionsList)
	r.POST("/api/focus", s.handleFocus)
	r.POST("/api/send-input", s.handleSendInput)
	r.POST("/api/clear", s.handleClear)
	r.POST("/api/mark_read", s.handleMarkRead)
	r.DELETE("/api/session/:id", s.handleDeleteSession)
	r.GET("/api/settings", s.handleGetSettings)
	r.POST("/api/settings", s.handlePostSettings)

	// Boundary-only surface: these belong to external collaborators
	// (transcript reader, indicator UI, tray/hotkey plane) that this
	// daemon does not implement. Kept so a caller gets a clear 501
	// instead of a 404, matching the rest of the JSON surface.
	boundary := []string{
		"/api/chat", "/api/chat/v2",
		"/api/island/expand", "/api/island/collapse", "/api/island/pill-state", "/api/island/hide",
		"/api/island/config", "/api/hotkey/*action",
	}
	for _, path := range boundary {
		r.Any(path, s.handleBoundaryStub)
	}

	return r
}

func (s *Server) handleBoundaryStub(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{
		"ok":    false,
		"error": "handled by the indicator UI collaborator, not this daemon",
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":                  true,
		"version":             httpmw.Version,
		"uptime":              time.Since(s.startedAt).Seconds(),
		"sessions":            len(s.sessions.All()),
		"pending_permissions": s.perms.Count(),
	})
}

func (s *Server) mergedSessions() []wire.MergedSession {
	processes := s.registry.GetCached()
	active := s.sessions.GetActive(float64(s.cfg.Session.TTLSecs), session.NowUnix())
	merged := scanAndMerge(processes, active)
	sortMergedBySessionID(merged)
	return merged
}

func (s *Server) handleStatus(c *gin.Context) {
	merged := s.mergedSessions()
	state := computeState(merged)
	recent := s.events.GetEvents(0)
	if len(recent) > 20 {
		recent = recent[len(recent)-20:]
	}

	lastSeen, _ := s.lastSeenTs.Load().(float64)
	unread := 0
	for _, e := range s.events.GetEvents(lastSeen) {
		if e.Ts > lastSeen {
			unread++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"state":         state,
		"sessions":      merged,
		"recent_events": recent,
		"unread_count":  unread,
	})
}

func (s *Server) handleAll(c *gin.Context) {
	after := parseAfter(c)
	c.JSON(http.StatusOK, gin.H{
		"status":    computeState(s.mergedSessions()),
		"processes": s.registry.GetCached(),
		"events":    s.events.GetEvents(after),
	})
}

func (s *Server) handleEvents(c *gin.Context) {
	after := parseAfter(c)
	c.JSON(http.StatusOK, gin.H{"events": s.events.GetEvents(after)})
}

func (s *Server) handleSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"processes": s.mergedSessions()})
}

// handleSessionsTree groups tracked sessions by parent_session_id, the
// otherwise-unread linkage spec.md §9's Open Questions leaves for
// consumers to interpret (spec.md §3 SessionInfo.parent_session_id).
func (s *Server) handleSessionsTree(c *gin.Context) {
	all := s.sessions.All()
	roots := make([]wire.SessionInfo, 0)
	children := make(map[string][]wire.SessionInfo)
	for _, info := range all {
		if info.ParentSessionID == "" {
			roots = append(roots, info)
		} else {
			children[info.ParentSessionID] = append(children[info.ParentSessionID], info)
		}
	}

	type node struct {
		wire.SessionInfo
		Children []wire.SessionInfo `json:"children,omitempty"`
	}
	tree := make([]node, 0, len(roots))
	for _, r := range roots {
		tree = append(tree, node{SessionInfo: r, Children: children[r.SessionID]})
	}

	c.JSON(http.StatusOK, gin.H{"tree": tree})
}

func parseAfter(c *gin.Context) float64 {
	raw := c.Query("after")
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}

// handleStream is C9 over SSE: a keep-alive heartbeat is produced by the
// background task (5s tick) via the same broadcaster, not by this handler.
func (s *Server) handleStream(c *gin.Context) {
	ch, unsubscribe := s.stream.Subscribe()
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case frame, ok := <-ch:
			if !ok {
				return false
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", frame)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// handleHook is the light path (spec.md §4.10): dedup by "<sid>:<event>"
// within a 500ms window, then an Active transition for UserPrompt/PreTool.
// It never appends to the event log — that's the heavy /api/signal path.
func (s *Server) handleHook(c *gin.Context) {
	event := wire.ParseHookEvent(c.Query("event"))
	var payload wire.HookPayload
	_ = c.ShouldBindJSON(&payload)

	sessionID := payload.SessionID()
	now := session.NowUnix()
	key := dedup.Key(sessionID, string(event))
	if s.dedup.CheckAndMark(key, timeFromUnix(now)) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "dedup": true})
		return
	}

	if event == wire.EventUserPrompt || event == wire.EventPreTool {
		status := wire.StatusActive
		empty := ""
		s.sessions.Update(sessionID, session.Update{
			Cwd:                 nonEmptyPtr(payload.Cwd()),
			Status:              &status,
			NotificationType:    &empty,
			NotificationMessage: &empty,
		}, now)
		s.stream.Broadcast("activity", gin.H{"event": string(event), "session_id": sessionID})
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleSignal is the heavy path: full SignalPayload decode, state
// transition, event-log append, broadcast, tray notify, toast + push.
func (s *Server) handleSignal(c *gin.Context) {
	var payload wire.SignalPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		return
	}

	now := session.NowUnix()
	evt := applySignal(s.sessions, payload, now)

	go func() {
		if err := s.events.AppendEvent(evt); err != nil {
			s.log.WithSessionID(payload.SessionID).WithHookEvent(string(payload.Event)).WithError(err).Warn("append event failed")
		}
	}()

	s.stream.Broadcast("event", evt)
	s.log.Debug(fmt.Sprintf("tray notify: %s", evt.Event))

	if payload.Event == wire.EventStop || payload.Event == wire.EventNotification {
		title := fmt.Sprintf("%s: %s", payload.SessionID, payload.Event)
		ctx := context.Background()
		go s.pusher.Toast(ctx, title, evt.Message, true)
		go s.pusher.Dispatch(ctx, push.Payload{
			EventType: string(payload.Event),
			SessionID: payload.SessionID,
			Title:     title,
			Body:      evt.Message,
		})
		go s.pusher.DispatchRemote(ctx, fmt.Sprintf("%s\n%s", title, evt.Message))
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handlePreToolCheck is the referenced long-poll endpoint for the pre_tool
// hook route (spec.md §7 Open Questions): treated analogously to a
// permission request — register, wait, reply — since the source does not
// expose its own handler for this in the core we implement from.
func (s *Server) handlePreToolCheck(c *gin.Context) {
	var raw map[string]any
	_ = c.ShouldBindJSON(&raw)

	payload := wire.HookPayload(raw)
	toolName := stringFromAny(raw["tool_name"])
	req := wire.PermissionRequest{
		ID:          fmt.Sprintf("%s:%s", payload.SessionID(), toolName),
		SessionID:   payload.SessionID(),
		Cwd:         payload.Cwd(),
		ToolName:    toolName,
		TimeoutSecs: s.cfg.Permission.TimeoutSecs,
	}
	if toolInput, ok := raw["tool_input"]; ok {
		if b, err := json.Marshal(toolInput); err == nil {
			req.ToolInput = b
		}
	}

	if s.perms.CheckSessionRule(req.SessionID, req.ToolName) {
		c.JSON(http.StatusOK, wire.NewPermissionHookResponse(wire.DecisionAlwaysAllow, nil))
		return
	}

	s.awaitPermission(c, req)
}

// handlePermissionRequest is the permission-gate long-poll entry point
// (spec.md §4.10).
func (s *Server) handlePermissionRequest(c *gin.Context) {
	var input wire.PermissionRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		return
	}

	timeoutSecs := input.TimeoutSecs
	if timeoutSecs <= 0 {
		timeoutSecs = s.cfg.Permission.TimeoutSecs
	}

	req := wire.PermissionRequest{
		ID:                    newPermissionRequestID(),
		SessionID:             input.SessionID,
		Cwd:                   input.Cwd,
		ToolName:              input.ToolName,
		ToolInput:             input.ToolInput,
		PermissionSuggestions: input.PermissionSuggestions,
		Timestamp:             session.NowUnix(),
		TimeoutSecs:           timeoutSecs,
	}

	s.awaitPermission(c, req)
}

// awaitPermission registers req, announces it, starts the countdown
// broadcast, and blocks on the decision channel with a timeout — shared by
// /api/permission-request and the analogous /api/pre-tool-check path.
func (s *Server) awaitPermission(c *gin.Context, req wire.PermissionRequest) {
	ctx, span := tracing.StartSpan(c.Request.Context(), "permission.await")
	span.SetAttributes(
		attribute.String("session_id", req.SessionID),
		attribute.String("tool_name", req.ToolName),
	)
	defer span.End()

	decisionCh := s.perms.Register(req)
	s.stream.Broadcast("permission_request", req)

	countdownCtx, cancelCountdown := context.WithCancel(ctx)
	go s.runCountdown(countdownCtx, req)
	defer cancelCountdown()

	timer := time.NewTimer(time.Duration(req.TimeoutSecs) * time.Second)
	defer timer.Stop()

	select {
	case outcome, ok := <-decisionCh:
		if !ok {
			span.SetAttributes(attribute.String("decision", string(wire.DecisionDeny)), attribute.Bool("timed_out", true))
			s.respondTimeout(c, req)
			return
		}
		span.SetAttributes(attribute.String("decision", string(outcome.Kind)), attribute.Bool("timed_out", false))
		if s.audit != nil {
			go func() {
				_ = s.audit.Record(context.Background(), req, outcome.Kind, false)
			}()
		}
		c.JSON(http.StatusOK, wire.NewPermissionHookResponse(outcome.Kind, req.PermissionSuggestions))

	case <-timer.C:
		span.SetAttributes(attribute.String("decision", string(wire.DecisionDeny)), attribute.Bool("timed_out", true))
		s.perms.Remove(req.ID)
		s.respondTimeout(c, req)
	}
}

func (s *Server) respondTimeout(c *gin.Context, req wire.PermissionRequest) {
	if s.audit != nil {
		go func() {
			_ = s.audit.Record(context.Background(), req, wire.DecisionDeny, true)
		}()
	}
	c.JSON(http.StatusOK, wire.NewPermissionHookResponse(wire.DecisionDeny, nil))
}

// runCountdown broadcasts a 10s-interval reminder that a permission
// request is still pending, until the request resolves or times out
// (spec.md §4.10). It self-terminates via countdownCtx.Done(), which the
// caller cancels once awaitPermission returns.
func (s *Server) runCountdown(ctx context.Context, req wire.PermissionRequest) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	elapsed := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			elapsed += 10
			s.stream.Broadcast("permission_countdown", gin.H{
				"id":            req.ID,
				"elapsed_secs":  elapsed,
				"timeout_secs":  req.TimeoutSecs,
			})
		}
	}
}

func (s *Server) handlePermissionRespond(c *gin.Context) {
	var input wire.PermissionRespondInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if !input.Decision.Valid() {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": "invalid decision"})
		return
	}

	req, found := s.perms.Get(input.ID)
	if !found {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": "unknown permission request"})
		return
	}

	if !s.perms.Respond(input.ID, input.Decision) {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": "unknown permission request"})
		return
	}

	if input.Decision == wire.DecisionAlwaysAllow {
		s.perms.AddSessionRule(req.SessionID, req.ToolName)
	}

	s.stream.Broadcast("activity", gin.H{"event": "permission_resolved", "id": input.ID})

	now := session.NowUnix()
	var status wire.SessionStatus
	if input.Decision == wire.DecisionDeny {
		status = wire.StatusWaiting
	} else {
		status = wire.StatusActive
	}
	s.sessions.Update(req.SessionID, session.Update{Status: &status}, now)

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handlePermissionsList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"permissions": s.perms.List()})
}

type focusRequest struct {
	Cwd string `json:"cwd"`
	PID int    `json:"pid"`
}

func (s *Server) handleFocus(c *gin.Context) {
	var input focusRequest
	_ = c.ShouldBindJSON(&input)

	req := focus.Request{
		Cwd:    input.Cwd,
		PID:    input.PID,
		HasPID: input.PID != 0,
		Cached: s.registry.GetCached(),
	}

	if req.Cwd == "" {
		for _, m := range s.mergedSessions() {
			if input.PID != 0 && m.PID == input.PID {
				req.Cwd = m.Cwd
				break
			}
		}
	}

	ok := s.focus.Focus(req)
	c.JSON(http.StatusOK, gin.H{"ok": ok})
}

type sendInputRequest struct {
	Text string `json:"text"`
}

// handleSendInput types text into whatever window last received OS focus,
// then presses Enter — letting the indicator UI reply to the agent on the
// user's behalf. Win32 SendInput only; non-Windows builds always report
// ok=false with the platform error.
func (s *Server) handleSendInput(c *gin.Context) {
	var input sendInputRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if err := sendinput.SendText(input.Text); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleClear(c *gin.Context) {
	if err := s.events.ClearAll(); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		return
	}
	s.stream.Broadcast("clear", gin.H{})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleMarkRead(c *gin.Context) {
	s.lastSeenTs.Store(session.NowUnix())
	s.log.Debug("tray notify: mark_read")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	id := c.Param("id")
	s.sessions.Remove(id)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleGetSettings returns the on-disk settings document as an
// opaque blob; agent-desk never interprets individual keys.
func (s *Server) handleGetSettings(c *gin.Context) {
	if s.settings == nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": "settings store not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "settings": s.settings.Get()})
}

// handlePostSettings overwrites the settings document. The on-disk write
// itself triggers the fsnotify watcher, which re-broadcasts
// "settings_changed" — this handler doesn't broadcast directly, so an
// external edit and an API write produce exactly the same downstream
// event.
func (s *Server) handlePostSettings(c *gin.Context) {
	if s.settings == nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": "settings store not configured"})
		return
	}
	var doc map[string]any
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if err := s.settings.Set(doc); err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func stringFromAny(v any) string {
	s, _ := v.(string)
	return s
}

func timeFromUnix(sec float64) time.Time {
	return time.Unix(0, int64(sec*float64(time.Second)))
}
