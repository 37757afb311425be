package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventConnectionRequested EventType = "connection_requested"
	EventConnectionAccepted  EventType = "connection_accepted"
	EventConnectionRejected  EventType = "connection_rejected"
	EventConnectionCancelled EventType = "connection_cancelled"
	EventConnectionActivated EventType = "connection_activated"
	EventSessionScheduled    EventType = "session_scheduled"
	EventSessionStarted      EventType = "session_started"
	EventSessionCompleted    EventType = "session_completed"
	EventSessionCancelled    EventType = "session_cancelled"
	EventSessionMissed       EventType = "session_missed"
	EventSessionRated        EventType = "session_rated"
	EventVideoStarted        EventType = "video_started"
	EventVideoActive         EventType = "video_active"
	EventVideoEnded          EventType = "video_ended"
	EventVideoFailed         EventType = "video_failed"
	EventAuthFailure         EventType = "auth_failure"
	EventRateLimitExceed     EventType = "rate_limit_exceeded"
)

// Event is one entry of a user's activity history.
type Event struct {
	Type         EventType
	ActorID      string
	ConnectionID string
	SessionID    string
	IP           string
	Details      map[string]interface{}
}

// Log writes the event as a structured history line.
func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "history").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.ActorID != "" {
		logger = logger.With().Str("actor_id", event.ActorID).Logger()
	}
	if event.ConnectionID != "" {
		logger = logger.With().Str("connection_id", event.ConnectionID).Logger()
	}
	if event.SessionID != "" {
		logger = logger.With().Str("session_id", event.SessionID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("history event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case float64:
		return e.Float64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}
