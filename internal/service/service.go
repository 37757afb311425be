package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/generations-connect/connect-server-go/internal/database"
	"github.com/generations-connect/connect-server-go/internal/sse"
)

// Notifier delivers events to a user's live clients.
type Notifier interface {
	Publish(ctx context.Context, userID string, event sse.Event) error
}

// Transactor runs fn inside a database transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_transitions_total",
		Help: "Applied connection and session state transitions",
	}, []string{"entity", "to"})

	transitionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_transition_rejections_total",
		Help: "Transitions refused because the current state did not allow them",
	}, []string{"entity", "requested"})
)

func tracer() trace.Tracer {
	return otel.Tracer("github.com/generations-connect/connect-server-go/internal/service")
}

// notify publishes to each user. Delivery is best effort.
func notify(ctx context.Context, n Notifier, eventType sse.EventType, payload any, userIDs ...string) {
	if n == nil {
		return
	}
	event, err := sse.NewEvent(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("eventType", string(eventType)).Msg("failed to encode event")
		return
	}
	for _, userID := range userIDs {
		if err := n.Publish(ctx, userID, event); err != nil {
			log.Warn().Err(err).
				Str("userId", userID).
				Str("eventType", string(eventType)).
				Msg("failed to publish event")
		}
	}
}

// validID reports whether id can name a connection or session row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
