package server

import (
	"fmt"

	"github.com/ZAKERR/agent-desk/internal/session"
	"github.com/ZAKERR/agent-desk/internal/wire"
)

// applySignal applies the event->status transition table (spec.md §3) for
// a full /api/signal payload, and returns the Event that should be
// appended to the log.
func applySignal(tracker *session.Tracker, p wire.SignalPayload, now float64) wire.Event {
	switch p.Event {
	case wire.EventSessionStart:
		tracker.Register(p.SessionID, p.Cwd, now)

	case wire.EventUserPrompt, wire.EventPreTool:
		status := wire.StatusActive
		empty := ""
		tracker.Update(p.SessionID, session.Update{
			Cwd:                 nonEmptyPtr(p.Cwd),
			Status:              &status,
			NotificationType:    &empty,
			NotificationMessage: &empty,
		}, now)

	case wire.EventStop:
		status := wire.StatusWaiting
		empty := ""
		tracker.Update(p.SessionID, session.Update{
			Cwd:                 nonEmptyPtr(p.Cwd),
			Status:              &status,
			LastMessage:         &p.LastAssistantMessage,
			NotificationType:    &empty,
			NotificationMessage: &empty,
		}, now)

	case wire.EventNotification:
		var status wire.SessionStatus
		if p.IsPermissionPrompt() {
			status = wire.StatusWaiting
			tracker.Update(p.SessionID, session.Update{
				Cwd:                 nonEmptyPtr(p.Cwd),
				Status:              &status,
				NotificationType:    &p.NotificationType,
				NotificationMessage: &p.NotificationMessage,
			}, now)
		} else {
			status = wire.StatusIdle
			tracker.Update(p.SessionID, session.Update{
				Cwd:    nonEmptyPtr(p.Cwd),
				Status: &status,
			}, now)
		}

	case wire.EventSessionEnd:
		status := wire.StatusEnded
		tracker.Update(p.SessionID, session.Update{
			Cwd:    nonEmptyPtr(p.Cwd),
			Status: &status,
		}, now)
	}

	return buildEvent(p, now)
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// buildEvent constructs the Event row for a signal, including the
// human-readable message rendering used by Stop events (spec.md §8
// scenario 4: "[Done] S2\nC:/q\ndone.").
func buildEvent(p wire.SignalPayload, now float64) wire.Event {
	message := p.Message
	if p.Event == wire.EventStop {
		message = fmt.Sprintf("[Done] %s\n%s\n%s", p.SessionID, p.Cwd, p.LastAssistantMessage)
	}

	return wire.Event{
		ID:                   newEventID(now),
		Ts:                   now,
		Event:                p.Event,
		SessionID:            p.SessionID,
		Cwd:                  p.Cwd,
		Message:              message,
		NotificationType:     p.NotificationType,
		LastAssistantMessage: p.LastAssistantMessage,
		Level:                wire.LevelFor(p.Event),
	}
}
