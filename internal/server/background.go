package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZAKERR/agent-desk/internal/session"
)

// RunBackgroundTasks starts the seven forever-running tasks from spec.md
// §4.10 and blocks until ctx is cancelled. Each runs on its own goroutine
// so a slow tick of one never delays another.
func (s *Server) RunBackgroundTasks(ctx context.Context) {
	scanInterval := time.Duration(s.cfg.Scanner.IntervalSecs) * time.Second
	if scanInterval <= 0 {
		scanInterval = 5 * time.Second
	}
	go s.loop(ctx, 5*time.Second, s.tickHeartbeat)
	go s.loop(ctx, 5*time.Second, s.tickFlushSessions)
	go s.loop(ctx, scanInterval, s.tickScan)
	go s.loop(ctx, 300*time.Second, s.tickPurgeStale)
	go s.loop(ctx, 600*time.Second, s.tickChatCacheEviction)
	go s.loop(ctx, 3600*time.Second, s.tickCompact)
	go s.loop(ctx, 60*time.Second, s.tickDedupSweep)
	<-ctx.Done()
}

func (s *Server) loop(ctx context.Context, interval time.Duration, tick func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

func (s *Server) tickHeartbeat() {
	s.stream.Broadcast("refresh", gin.H{"ts": session.NowUnix()})
}

func (s *Server) tickFlushSessions() {
	if err := s.sessions.FlushIfDirty(); err != nil {
		s.log.WithError(err).Warn("session flush failed")
	}
}

func (s *Server) tickScan() {
	s.registry.ScanAll()
}

func (s *Server) tickPurgeStale() {
	s.sessions.PurgeStale(float64(s.cfg.Session.TTLSecs), session.NowUnix())
}

// tickChatCacheEviction is a boundary stub: transcript caching belongs to
// the chat-transcript collaborator (spec.md §4.12/C12), which this daemon
// doesn't implement. The tick still runs on schedule so wiring it up later
// doesn't require touching the background-task list.
func (s *Server) tickChatCacheEviction() {
	s.log.Debug("chat-cache eviction tick (no-op: transcript collaborator not wired)")
}

func (s *Server) tickCompact() {
	if err := s.events.Compact(float64(s.cfg.EventLog.MaxAgeSecs), session.NowUnix()); err != nil {
		s.log.WithError(err).Warn("event log compact failed")
	}
}

func (s *Server) tickDedupSweep() {
	s.dedup.Sweep(5*time.Second, time.Now())
}
