// Package main is the Hook Relay Daemon's process entry point (spec.md
// §4.2/§5): it loads configuration, wires C3-C11 together, starts the
// Core Server's HTTP surface and the TCP relay side by side, and runs
// until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ZAKERR/agent-desk/internal/audit"
	"github.com/ZAKERR/agent-desk/internal/broadcast"
	"github.com/ZAKERR/agent-desk/internal/common/config"
	"github.com/ZAKERR/agent-desk/internal/common/logger"
	"github.com/ZAKERR/agent-desk/internal/dedup"
	"github.com/ZAKERR/agent-desk/internal/eventstore"
	"github.com/ZAKERR/agent-desk/internal/focus"
	"github.com/ZAKERR/agent-desk/internal/hookinstall"
	"github.com/ZAKERR/agent-desk/internal/permission"
	"github.com/ZAKERR/agent-desk/internal/push"
	"github.com/ZAKERR/agent-desk/internal/relay"
	"github.com/ZAKERR/agent-desk/internal/scanner"
	"github.com/ZAKERR/agent-desk/internal/server"
	"github.com/ZAKERR/agent-desk/internal/session"
	"github.com/ZAKERR/agent-desk/internal/settings"
	"github.com/ZAKERR/agent-desk/internal/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	// spec.md §5: on startup, TCP-connect to the core port; if something
	// answers, another instance already owns it and this one exits
	// without side effects.
	if instanceRunning(cfg.Server.Port) {
		log.Info("another agent-desk instance is already listening, exiting", zap.Int("port", cfg.Server.Port))
		return
	}

	log.Info("starting agent-desk", zap.Int("port", cfg.Server.Port))

	if err := autoConfigureHooks(log); err != nil {
		log.Debug("hook auto-configure skipped", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracing.Tracer("agent-desk")
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracing shutdown error", zap.Error(err))
		}
	}()

	now := session.NowUnix()

	events := eventstore.New(cfg.EventLog.Path)

	sessions, err := session.Load(cfg.Session.SnapshotPath, float64(cfg.Session.StaleSecs), now)
	if err != nil {
		log.Warn("session snapshot load failed, starting empty", zap.Error(err))
		sessions = session.New(cfg.Session.SnapshotPath)
	}

	perms := permission.New()
	dedupCache := dedup.New(time.Duration(cfg.Dedup.WindowMillis) * time.Millisecond)
	stream := broadcast.New()
	resolver := focus.New()

	registry := scanner.NewRegistry(
		scanner.NewAdapter("claude-code", cfg.Scanner.IncludeNames, cfg.Scanner.ExcludeNames),
	)
	registry.ScanAll()

	pusher := push.New(cfg.Push, log)

	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		auditStore, err = audit.Open(cfg.Audit.DBPath)
		if err != nil {
			log.Warn("audit store unavailable, decisions will not be recorded", zap.Error(err))
			auditStore = nil
		} else {
			defer auditStore.Close()
		}
	}

	settingsStore, err := settings.Open(cfg.SettingsFile, log)
	if err != nil {
		log.Warn("settings store unavailable", zap.Error(err))
		settingsStore = nil
	} else {
		stopWatch := make(chan struct{})
		go func() {
			<-ctx.Done()
			close(stopWatch)
		}()
		if err := settingsStore.Watch(func(doc map[string]any) {
			stream.Broadcast("settings_changed", doc)
		}, stopWatch); err != nil {
			log.Warn("settings watcher unavailable, edits won't be re-broadcast", zap.Error(err))
		}
	}

	srv := server.New(cfg, log, events, sessions, perms, registry, resolver, dedupCache, stream, pusher, auditStore, settingsStore)
	go srv.RunBackgroundTasks(ctx)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler: srv.Router(),
	}
	go func() {
		log.Info("core server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("core server failed", zap.Error(err))
		}
	}()

	// An orphaned relay daemon still listening on port+1 is detected and
	// logged, but not terminated: nothing here stops the owning process,
	// so Serve's bind then fails and the daemon exits.
	relayDaemon := relay.New(cfg.Server.Port, log)
	if relayDaemon.PortInUse() {
		log.Warn("orphaned hook relay daemon detected, it will not be reclaimed automatically",
			zap.Int("port", cfg.Server.Port+1))
	}
	go func() {
		if err := relayDaemon.Serve(ctx); err != nil && ctx.Err() == nil {
			log.Fatal("hook relay daemon failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down agent-desk")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("core server shutdown error", zap.Error(err))
	}

	if err := sessions.FlushIfDirty(); err != nil {
		log.Error("final session flush failed", zap.Error(err))
	}

	log.Info("agent-desk stopped")
}

// autoConfigureHooks ensures Claude Code's settings.json has hook entries
// for all seven hook events pointing at the bundled hook CLI, so a fresh
// install needs no manual settings.json edit. Best-effort: a missing hook
// binary (e.g. a dev build run from source) or unresolvable home directory
// just skips this, it never blocks startup.
func autoConfigureHooks(log *logger.Logger) error {
	hookBinary, err := hookinstall.HookBinaryPath()
	if err != nil {
		return err
	}
	settingsPath, err := hookinstall.ClaudeSettingsPath()
	if err != nil {
		return err
	}
	changed, err := hookinstall.EnsureConfigured(settingsPath, hookBinary)
	if err != nil {
		return err
	}
	if changed {
		log.Info("auto-configured Claude Code hooks", zap.String("path", settingsPath))
	}
	return nil
}

// instanceRunning reports whether something is already listening on the
// given port.
func instanceRunning(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 200*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
