package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/generations-connect/connect-server-go/internal/audit"
	apperrors "github.com/generations-connect/connect-server-go/internal/errors"
	"github.com/generations-connect/connect-server-go/internal/model"
	"github.com/generations-connect/connect-server-go/internal/repository"
	"github.com/generations-connect/connect-server-go/internal/sse"
)

type CreateConnectionInput struct {
	FromID           string
	ToID             string
	MatchScore       *float64
	MatchExplanation *string
}

type connectionPayload struct {
	ConnectionID string                 `json:"connectionId"`
	Status       model.ConnectionStatus `json:"status"`
	ActorID      string                 `json:"actorId,omitempty"`
}

// ConnectionService drives the connection request state machine.
type ConnectionService struct {
	connections repository.ConnectionRepository
	users       repository.UserRepository
	notifier    Notifier
	now         func() time.Time
}

func NewConnectionService(
	connections repository.ConnectionRepository,
	users repository.UserRepository,
	notifier Notifier,
) *ConnectionService {
	return &ConnectionService{
		connections: connections,
		users:       users,
		notifier:    notifier,
		now:         time.Now,
	}
}

// Create opens a pending connection from FromID to ToID. At most one
// non-terminal connection may exist per pair; a duplicate yields Conflict
// carrying the existing id.
func (s *ConnectionService) Create(ctx context.Context, in CreateConnectionInput) (*model.Connection, error) {
	ctx, span := tracer().Start(ctx, "connection.Create")
	defer span.End()

	if in.FromID == "" || in.ToID == "" {
		return nil, apperrors.MissingRequired("userId")
	}
	if in.FromID == in.ToID {
		return nil, apperrors.BadRequest("cannot request a connection with yourself")
	}
	if in.MatchScore != nil && (*in.MatchScore < 0 || *in.MatchScore > 100) {
		return nil, apperrors.BadRequest("matchScore must be between 0 and 100")
	}

	from, err := s.activeUser(ctx, in.FromID)
	if err != nil {
		return nil, err
	}
	to, err := s.activeUser(ctx, in.ToID)
	if err != nil {
		return nil, err
	}

	params := model.CreateConnectionParams{
		InitiatedBy:      from.ID,
		MatchScore:       in.MatchScore,
		MatchExplanation: in.MatchExplanation,
	}
	switch {
	case from.UserType == model.UserTypeElder && to.UserType == model.UserTypeYoung:
		params.ElderID, params.YoungID = from.ID, to.ID
	case from.UserType == model.UserTypeYoung && to.UserType == model.UserTypeElder:
		params.ElderID, params.YoungID = to.ID, from.ID
	default:
		return nil, apperrors.BadRequest("a connection pairs one elder with one young volunteer")
	}

	existing, err := s.connections.FindOpenByPair(ctx, from.ID, to.ID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find open pair: %w", err))
	}
	if existing != nil {
		return nil, apperrors.Conflict(existing.ID)
	}

	conn, err := s.connections.Create(ctx, params)
	if errors.Is(err, repository.ErrDuplicatePair) {
		// Lost the race to a concurrent request for the same pair.
		existing, findErr := s.connections.FindOpenByPair(ctx, from.ID, to.ID)
		if findErr != nil || existing == nil {
			return nil, apperrors.Conflict("")
		}
		return nil, apperrors.Conflict(existing.ID)
	}
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("create connection: %w", err))
	}

	span.SetAttributes(attribute.String("connection.id", conn.ID))
	transitionsTotal.WithLabelValues("connection", string(model.ConnectionPending)).Inc()

	log.Info().
		Str("connectionId", conn.ID).
		Str("elderId", conn.ElderID).
		Str("youngId", conn.YoungID).
		Str("initiatedBy", conn.InitiatedBy).
		Msg("connection requested")

	audit.Log(ctx, audit.Event{
		Type:         audit.EventConnectionRequested,
		ActorID:      from.ID,
		ConnectionID: conn.ID,
	})
	notify(ctx, s.notifier, sse.EventConnectionRequested,
		connectionPayload{ConnectionID: conn.ID, Status: conn.Status, ActorID: from.ID}, conn.Recipient())

	return conn, nil
}

// Accept is valid from pending and only for the party that did not send
// the request.
func (s *ConnectionService) Accept(ctx context.Context, id, actorID string) (*model.Connection, error) {
	conn, err := s.partyConnection(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	if actorID == conn.InitiatedBy {
		return nil, apperrors.Forbidden("the requester cannot accept their own connection request")
	}
	return s.apply(ctx, s.connections, conn, model.ConnectionAccepted, actorID)
}

// Reject is valid from pending for either party.
func (s *ConnectionService) Reject(ctx context.Context, id, actorID string) (*model.Connection, error) {
	conn, err := s.partyConnection(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, s.connections, conn, model.ConnectionRejected, actorID)
}

// Respond accepts or rejects a pending request.
func (s *ConnectionService) Respond(ctx context.Context, id, actorID string, accept bool) (*model.Connection, error) {
	if accept {
		return s.Accept(ctx, id, actorID)
	}
	return s.Reject(ctx, id, actorID)
}

// Cancel is valid from pending or accepted for either party.
func (s *ConnectionService) Cancel(ctx context.Context, id, actorID string) (*model.Connection, error) {
	conn, err := s.partyConnection(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, s.connections, conn, model.ConnectionCancelled, actorID)
}

// Activate moves an accepted connection to active. It is called when the
// first session under the connection begins; tx may be nil. Nothing is
// published: the caller announces the result once its transaction commits.
func (s *ConnectionService) Activate(ctx context.Context, tx *sqlx.Tx, id string) (*model.Connection, error) {
	repo := s.connections
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	conn, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find connection: %w", err))
	}
	if conn == nil {
		return nil, apperrors.NotFound("connection")
	}
	return s.transition(ctx, repo, conn, model.ConnectionActive)
}

// TouchActivity records that the parties interacted. Status is unchanged.
func (s *ConnectionService) TouchActivity(ctx context.Context, id, actorID string) (*model.Connection, error) {
	if _, err := s.partyConnection(ctx, id, actorID); err != nil {
		return nil, err
	}
	conn, err := s.connections.TouchActivity(ctx, id, s.now())
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("touch activity: %w", err))
	}
	if conn == nil {
		return nil, apperrors.NotFound("connection")
	}
	return conn, nil
}

func (s *ConnectionService) Get(ctx context.Context, id, actorID string) (*model.Connection, error) {
	return s.partyConnection(ctx, id, actorID)
}

// List returns the actor's connections, optionally filtered by status.
func (s *ConnectionService) List(ctx context.Context, actorID string, status model.ConnectionStatus) ([]model.Connection, error) {
	if status != "" && !status.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown connection status %q", status))
	}
	conns, err := s.connections.FindByUser(ctx, actorID, status)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("list connections: %w", err))
	}
	if conns == nil {
		conns = []model.Connection{}
	}
	return conns, nil
}

func (s *ConnectionService) activeUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.FindActiveByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find user: %w", err))
	}
	if user == nil {
		return nil, apperrors.NotFound("user")
	}
	return user, nil
}

func (s *ConnectionService) partyConnection(ctx context.Context, id, actorID string) (*model.Connection, error) {
	if !validID(id) {
		return nil, apperrors.NotFound("connection")
	}
	conn, err := s.connections.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find connection: %w", err))
	}
	if conn == nil {
		return nil, apperrors.NotFound("connection")
	}
	if !conn.HasParty(actorID) {
		return nil, apperrors.Forbidden("not a party to this connection")
	}
	return conn, nil
}

// apply transitions conn and announces the change.
func (s *ConnectionService) apply(
	ctx context.Context,
	repo repository.ConnectionRepository,
	conn *model.Connection,
	to model.ConnectionStatus,
	actorID string,
) (*model.Connection, error) {
	updated, err := s.transition(ctx, repo, conn, to)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, updated, conn.Status, actorID)
	return updated, nil
}

// transition performs a guarded compare-and-set. When the row moved
// underneath us the freshly observed status is reported.
func (s *ConnectionService) transition(
	ctx context.Context,
	repo repository.ConnectionRepository,
	conn *model.Connection,
	to model.ConnectionStatus,
) (*model.Connection, error) {
	if !conn.Status.CanTransitionTo(to) {
		transitionRejections.WithLabelValues("connection", string(to)).Inc()
		return nil, apperrors.InvalidTransition("connection", string(conn.Status), string(to))
	}

	updated, err := repo.Transition(ctx, conn.ID, conn.Status, to, s.now())
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("transition connection: %w", err))
	}
	if updated == nil {
		current, err := repo.FindByID(ctx, conn.ID)
		if err != nil {
			return nil, apperrors.Database(fmt.Errorf("reload connection: %w", err))
		}
		if current == nil {
			return nil, apperrors.NotFound("connection")
		}
		transitionRejections.WithLabelValues("connection", string(to)).Inc()
		return nil, apperrors.InvalidTransition("connection", string(current.Status), string(to))
	}
	return updated, nil
}

// announce records a committed transition: metrics, log, audit and events.
// Without an actor both parties are notified.
func (s *ConnectionService) announce(ctx context.Context, updated *model.Connection, from model.ConnectionStatus, actorID string) {
	transitionsTotal.WithLabelValues("connection", string(updated.Status)).Inc()
	log.Info().
		Str("connectionId", updated.ID).
		Str("from", string(from)).
		Str("to", string(updated.Status)).
		Str("actorId", actorID).
		Msg("connection transitioned")

	eventType, auditType := connectionEvents(updated.Status)
	audit.Log(ctx, audit.Event{Type: auditType, ActorID: actorID, ConnectionID: updated.ID})

	recipients := []string{updated.ElderID, updated.YoungID}
	if actorID != "" {
		recipients = []string{updated.Counterpart(actorID)}
	}
	notify(ctx, s.notifier, eventType,
		connectionPayload{ConnectionID: updated.ID, Status: updated.Status, ActorID: actorID}, recipients...)
}

func connectionEvents(to model.ConnectionStatus) (sse.EventType, audit.EventType) {
	switch to {
	case model.ConnectionAccepted:
		return sse.EventConnectionAccepted, audit.EventConnectionAccepted
	case model.ConnectionRejected:
		return sse.EventConnectionRejected, audit.EventConnectionRejected
	case model.ConnectionCancelled:
		return sse.EventConnectionCancelled, audit.EventConnectionCancelled
	default:
		return sse.EventConnectionActivated, audit.EventConnectionActivated
	}
}
