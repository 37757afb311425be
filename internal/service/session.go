package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/generations-connect/connect-server-go/internal/audit"
	apperrors "github.com/generations-connect/connect-server-go/internal/errors"
	"github.com/generations-connect/connect-server-go/internal/model"
	"github.com/generations-connect/connect-server-go/internal/repository"
	"github.com/generations-connect/connect-server-go/internal/sse"
)

const (
	minRating = 1
	maxRating = 5
)

type SessionConfig struct {
	// VideoRetryWindow is how long a repeated start from the same caller is
	// a silent no-op before the peer is rung again.
	VideoRetryWindow time.Duration
	// MissedGrace is how long past scheduled_at a session may still begin
	// before it can be marked missed.
	MissedGrace time.Duration
}

type ScheduleInput struct {
	ActivityType        model.ActivityType
	ActivityTitle       *string
	ActivityDescription *string
	ScheduledAt         time.Time
	ChatEnabled         *bool
}

type EndInput struct {
	Rating       *int
	Feedback     *string
	VideoQuality *model.VideoQuality
}

type sessionPayload struct {
	SessionID    string              `json:"sessionId"`
	ConnectionID string              `json:"connectionId"`
	Status       model.SessionStatus `json:"status"`
	VideoStatus  model.VideoStatus   `json:"videoStatus"`
	ActorID      string              `json:"actorId,omitempty"`
}

type incomingCallPayload struct {
	SessionID    string `json:"sessionId"`
	ConnectionID string `json:"connectionId"`
	RoomID       string `json:"roomId"`
	CallerID     string `json:"callerId"`
}

// SessionService drives scheduled activities and their video calls.
type SessionService struct {
	tx          Transactor
	sessions    repository.SessionRepository
	conns       repository.ConnectionRepository
	connections *ConnectionService
	notifier    Notifier
	cfg         SessionConfig
	now         func() time.Time
}

func NewSessionService(
	tx Transactor,
	sessions repository.SessionRepository,
	conns repository.ConnectionRepository,
	connections *ConnectionService,
	notifier Notifier,
	cfg SessionConfig,
) *SessionService {
	return &SessionService{
		tx:          tx,
		sessions:    sessions,
		conns:       conns,
		connections: connections,
		notifier:    notifier,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Schedule creates a session under a connection that is accepted or active.
func (s *SessionService) Schedule(ctx context.Context, actorID, connectionID string, in ScheduleInput) (*model.Session, error) {
	conn, err := s.connections.partyConnection(ctx, connectionID, actorID)
	if err != nil {
		return nil, err
	}
	if !conn.Status.IsSchedulable() {
		return nil, apperrors.Forbidden(fmt.Sprintf("sessions cannot be scheduled while the connection is %s", conn.Status))
	}
	if !in.ActivityType.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown activity type %q", in.ActivityType))
	}
	if !in.ScheduledAt.After(s.now()) {
		return nil, apperrors.BadRequest("scheduledAt must be in the future")
	}

	chat := true
	if in.ChatEnabled != nil {
		chat = *in.ChatEnabled
	}

	session, err := s.sessions.Create(ctx, model.CreateSessionParams{
		ConnectionID:        conn.ID,
		ActivityType:        in.ActivityType,
		ActivityTitle:       in.ActivityTitle,
		ActivityDescription: in.ActivityDescription,
		ScheduledAt:         in.ScheduledAt,
		ChatEnabled:         chat,
	})
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("create session: %w", err))
	}

	transitionsTotal.WithLabelValues("session", string(model.SessionScheduled)).Inc()
	log.Info().
		Str("sessionId", session.ID).
		Str("connectionId", conn.ID).
		Str("activityType", string(session.ActivityType)).
		Time("scheduledAt", session.ScheduledAt).
		Msg("session scheduled")

	audit.Log(ctx, audit.Event{
		Type:         audit.EventSessionScheduled,
		ActorID:      actorID,
		ConnectionID: conn.ID,
		SessionID:    session.ID,
		Details:      map[string]interface{}{"activityType": string(session.ActivityType)},
	})
	notify(ctx, s.notifier, sse.EventSessionScheduled, s.payload(session, actorID), conn.Counterpart(actorID))

	return session, nil
}

func (s *SessionService) List(ctx context.Context, actorID, connectionID string) ([]model.Session, error) {
	if _, err := s.connections.partyConnection(ctx, connectionID, actorID); err != nil {
		return nil, err
	}
	sessions, err := s.sessions.FindByConnectionID(ctx, connectionID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("list sessions: %w", err))
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	return sessions, nil
}

func (s *SessionService) Get(ctx context.Context, actorID, sessionID string) (*model.Session, error) {
	session, _, err := s.partySession(ctx, sessionID, actorID)
	return session, err
}

// Begin starts a scheduled session. The first session to begin under an
// accepted connection activates it in the same transaction.
func (s *SessionService) Begin(ctx context.Context, actorID, sessionID string) (*model.Session, error) {
	ctx, span := tracer().Start(ctx, "session.Begin")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	session, conn, err := s.partySession(ctx, sessionID, actorID)
	if err != nil {
		return nil, err
	}
	if !session.Status.CanTransitionTo(model.SessionInProgress) {
		return nil, s.rejectSession(session.Status, model.SessionInProgress)
	}
	if !conn.Status.IsSchedulable() {
		return nil, apperrors.Forbidden(fmt.Sprintf("sessions cannot begin while the connection is %s", conn.Status))
	}

	var (
		started   *model.Session
		activated *model.Connection
	)
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		sessions := s.sessionRepo(tx)
		started, err = sessions.Begin(ctx, session.ID, s.now())
		if err != nil {
			return apperrors.Database(fmt.Errorf("begin session: %w", err))
		}
		if started == nil {
			return s.reloadRejection(ctx, sessions, session.ID, model.SessionInProgress)
		}

		if conn.Status != model.ConnectionAccepted {
			return nil
		}
		activated, err = s.connections.Activate(ctx, tx, conn.ID)
		if err != nil {
			// A concurrent begin under the same connection may have won.
			current, findErr := s.connRepo(tx).FindByID(ctx, conn.ID)
			if findErr == nil && current != nil && current.Status == model.ConnectionActive {
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if activated != nil {
		s.connections.announce(ctx, activated, conn.Status, "")
	}
	transitionsTotal.WithLabelValues("session", string(model.SessionInProgress)).Inc()
	s.recorded(ctx, started, conn, actorID, audit.EventSessionStarted, sse.EventSessionStarted)
	return started, nil
}

// StartVideo requests a call inside a running session. Repeating the
// request while the call is connecting or active is a no-op; the caller who
// rang may ring again once VideoRetryWindow has passed.
func (s *SessionService) StartVideo(ctx context.Context, actorID, sessionID string) (*model.Session, error) {
	session, conn, err := s.partySession(ctx, sessionID, actorID)
	if err != nil {
		return nil, err
	}

	if session.VideoStatus.IsLive() {
		return s.repeatVideoStart(ctx, session, conn, actorID)
	}
	if !session.CanStartVideo() {
		if session.VideoStatus != model.VideoNotStarted {
			return nil, s.rejectVideo(session.VideoStatus, model.VideoConnecting)
		}
		transitionRejections.WithLabelValues("video", string(model.VideoConnecting)).Inc()
		return nil, apperrors.InvalidTransition("session", string(session.Status), string(model.SessionInProgress))
	}

	roomID := uuid.NewString()
	started, err := s.sessions.TransitionVideo(ctx, session.ID, model.VideoNotStarted, model.VideoConnecting, model.VideoTransitionParams{
		At:          s.now(),
		RoomID:      &roomID,
		RequestedBy: &actorID,
	})
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("start video: %w", err))
	}
	if started == nil {
		current, err := s.sessions.FindByID(ctx, session.ID)
		if err != nil {
			return nil, apperrors.Database(fmt.Errorf("reload session: %w", err))
		}
		if current != nil && current.VideoStatus.IsLive() {
			return s.repeatVideoStart(ctx, current, conn, actorID)
		}
		return nil, s.reloadVideoRejection(current, model.VideoConnecting)
	}

	transitionsTotal.WithLabelValues("video", string(model.VideoConnecting)).Inc()
	log.Info().
		Str("sessionId", started.ID).
		Str("roomId", roomID).
		Str("callerId", actorID).
		Msg("video call requested")
	audit.Log(ctx, audit.Event{
		Type:         audit.EventVideoStarted,
		ActorID:      actorID,
		ConnectionID: conn.ID,
		SessionID:    started.ID,
		Details:      map[string]interface{}{"roomId": roomID},
	})
	s.ring(ctx, started, conn, actorID)
	return started, nil
}

func (s *SessionService) repeatVideoStart(ctx context.Context, session *model.Session, conn *model.Connection, actorID string) (*model.Session, error) {
	if session.VideoStatus != model.VideoConnecting ||
		session.VideoRequestedBy == nil || *session.VideoRequestedBy != actorID ||
		session.VideoRequestedAt == nil {
		return session, nil
	}
	now := s.now()
	if now.Sub(*session.VideoRequestedAt) < s.cfg.VideoRetryWindow {
		return session, nil
	}

	refreshed, err := s.sessions.RefreshVideoRequest(ctx, session.ID, actorID, now)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("refresh video request: %w", err))
	}
	if refreshed == nil {
		// The call moved on meanwhile; report what is there now.
		current, err := s.sessions.FindByID(ctx, session.ID)
		if err != nil {
			return nil, apperrors.Database(fmt.Errorf("reload session: %w", err))
		}
		if current == nil {
			return nil, apperrors.NotFound("session")
		}
		return current, nil
	}

	log.Info().Str("sessionId", session.ID).Str("callerId", actorID).Msg("video call re-requested")
	s.ring(ctx, refreshed, conn, actorID)
	return refreshed, nil
}

func (s *SessionService) ring(ctx context.Context, session *model.Session, conn *model.Connection, callerID string) {
	roomID := ""
	if session.VideoRoomID != nil {
		roomID = *session.VideoRoomID
	}
	notify(ctx, s.notifier, sse.EventVideoIncomingCall, incomingCallPayload{
		SessionID:    session.ID,
		ConnectionID: conn.ID,
		RoomID:       roomID,
		CallerID:     callerID,
	}, conn.Counterpart(callerID))
}

// ConfirmVideoActive marks a connecting call as established.
func (s *SessionService) ConfirmVideoActive(ctx context.Context, actorID, sessionID string) (*model.Session, error) {
	return s.moveVideo(ctx, actorID, sessionID, model.VideoActive, nil)
}

// EndVideo hangs up an active call. The session keeps running.
func (s *SessionService) EndVideo(ctx context.Context, actorID, sessionID string, quality *model.VideoQuality) (*model.Session, error) {
	if quality != nil && !quality.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown video quality %q", *quality))
	}
	return s.moveVideo(ctx, actorID, sessionID, model.VideoEnded, quality)
}

// FailVideo records that a connecting or active call dropped.
func (s *SessionService) FailVideo(ctx context.Context, actorID, sessionID string) (*model.Session, error) {
	return s.moveVideo(ctx, actorID, sessionID, model.VideoFailed, nil)
}

func (s *SessionService) moveVideo(ctx context.Context, actorID, sessionID string, to model.VideoStatus, quality *model.VideoQuality) (*model.Session, error) {
	session, conn, err := s.partySession(ctx, sessionID, actorID)
	if err != nil {
		return nil, err
	}
	if !session.VideoStatus.CanTransitionTo(to) {
		return nil, s.rejectVideo(session.VideoStatus, to)
	}
	if session.Status != model.SessionInProgress {
		transitionRejections.WithLabelValues("video", string(to)).Inc()
		return nil, apperrors.InvalidTransition("session", string(session.Status), string(model.SessionInProgress))
	}

	updated, err := s.sessions.TransitionVideo(ctx, session.ID, session.VideoStatus, to, model.VideoTransitionParams{
		At:      s.now(),
		Quality: quality,
	})
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("transition video: %w", err))
	}
	if updated == nil {
		current, err := s.sessions.FindByID(ctx, session.ID)
		if err != nil {
			return nil, apperrors.Database(fmt.Errorf("reload session: %w", err))
		}
		return nil, s.reloadVideoRejection(current, to)
	}

	transitionsTotal.WithLabelValues("video", string(to)).Inc()
	auditType, eventType := videoEvents(to)
	s.recorded(ctx, updated, conn, actorID, auditType, eventType)
	return updated, nil
}

// End completes a running session, records the actor's rating and
// refreshes the connection's statistics in one transaction.
func (s *SessionService) End(ctx context.Context, actorID, sessionID string, in EndInput) (*model.Session, error) {
	ctx, span := tracer().Start(ctx, "session.End")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	session, conn, err := s.partySession(ctx, sessionID, actorID)
	if err != nil {
		return nil, err
	}
	if !session.Status.CanTransitionTo(model.SessionCompleted) {
		return nil, s.rejectSession(session.Status, model.SessionCompleted)
	}
	if in.VideoQuality != nil && !in.VideoQuality.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown video quality %q", *in.VideoQuality))
	}
	rating, err := ratingFor(conn, actorID, in.Rating, in.Feedback)
	if err != nil {
		return nil, err
	}

	now := s.now()
	duration := 0
	if session.StartedAt != nil {
		duration = max(0, int(math.Round(now.Sub(*session.StartedAt).Minutes())))
	}

	var completed *model.Session
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		sessions := s.sessionRepo(tx)
		completed, err = sessions.Complete(ctx, session.ID, model.CompleteSessionParams{
			EndedAt:         now,
			DurationMinutes: duration,
			VideoQuality:    in.VideoQuality,
			Rating:          rating,
		})
		if err != nil {
			return apperrors.Database(fmt.Errorf("complete session: %w", err))
		}
		if completed == nil {
			return s.reloadRejection(ctx, sessions, session.ID, model.SessionCompleted)
		}
		if _, err := s.connRepo(tx).RecomputeStats(ctx, conn.ID, now); err != nil {
			return apperrors.Database(fmt.Errorf("recompute connection stats: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	transitionsTotal.WithLabelValues("session", string(model.SessionCompleted)).Inc()
	s.recorded(ctx, completed, conn, actorID, audit.EventSessionCompleted, sse.EventSessionCompleted)
	return completed, nil
}

// Rate records the actor's rating on a completed session after the fact.
func (s *SessionService) Rate(ctx context.Context, actorID, sessionID string, score int, feedback *string) (*model.Session, error) {
	session, conn, err := s.partySession(ctx, sessionID, actorID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionCompleted {
		return nil, apperrors.BadRequest("only completed sessions can be rated")
	}
	rating, err := ratingFor(conn, actorID, &score, feedback)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var rated *model.Session
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		rated, err = s.sessionRepo(tx).Rate(ctx, session.ID, *rating, now)
		if err != nil {
			return apperrors.Database(fmt.Errorf("rate session: %w", err))
		}
		if rated == nil {
			return apperrors.NotFound("session")
		}
		if _, err := s.connRepo(tx).RecomputeStats(ctx, conn.ID, now); err != nil {
			return apperrors.Database(fmt.Errorf("recompute connection stats: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.Event{
		Type:         audit.EventSessionRated,
		ActorID:      actorID,
		ConnectionID: conn.ID,
		SessionID:    rated.ID,
		Details:      map[string]interface{}{"rating": score},
	})
	return rated, nil
}

// Cancel calls off a session that has not started.
func (s *SessionService) Cancel(ctx context.Context, actorID, sessionID string) (*model.Session, error) {
	session, conn, err := s.partySession(ctx, sessionID, actorID)
	if err != nil {
		return nil, err
	}
	if !session.Status.CanTransitionTo(model.SessionCancelled) {
		return nil, s.rejectSession(session.Status, model.SessionCancelled)
	}

	cancelled, err := s.sessions.Cancel(ctx, session.ID, s.now())
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("cancel session: %w", err))
	}
	if cancelled == nil {
		return nil, s.reloadRejection(ctx, s.sessions, session.ID, model.SessionCancelled)
	}

	transitionsTotal.WithLabelValues("session", string(model.SessionCancelled)).Inc()
	s.recorded(ctx, cancelled, conn, actorID, audit.EventSessionCancelled, sse.EventSessionCancelled)
	return cancelled, nil
}

// MarkMissed closes a scheduled session nobody began within the grace
// period after scheduled_at.
func (s *SessionService) MarkMissed(ctx context.Context, sessionID string) (*model.Session, error) {
	if !validID(sessionID) {
		return nil, apperrors.NotFound("session")
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find session: %w", err))
	}
	if session == nil {
		return nil, apperrors.NotFound("session")
	}
	return s.markMissed(ctx, session)
}

func (s *SessionService) markMissed(ctx context.Context, session *model.Session) (*model.Session, error) {
	if !session.Status.CanTransitionTo(model.SessionMissed) {
		return nil, s.rejectSession(session.Status, model.SessionMissed)
	}
	now := s.now()
	cutoff := now.Add(-s.cfg.MissedGrace)
	if !session.ScheduledAt.Before(cutoff) {
		transitionRejections.WithLabelValues("session", string(model.SessionMissed)).Inc()
		return nil, apperrors.InvalidTransition("session", string(session.Status), string(model.SessionMissed))
	}

	missed, err := s.sessions.MarkMissed(ctx, session.ID, cutoff, now)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("mark session missed: %w", err))
	}
	if missed == nil {
		return nil, s.reloadRejection(ctx, s.sessions, session.ID, model.SessionMissed)
	}

	transitionsTotal.WithLabelValues("session", string(model.SessionMissed)).Inc()
	conn, err := s.conns.FindByID(ctx, missed.ConnectionID)
	if err != nil || conn == nil {
		log.Warn().Err(err).Str("sessionId", missed.ID).Msg("missed session without readable connection")
		return missed, nil
	}
	s.recorded(ctx, missed, conn, "", audit.EventSessionMissed, sse.EventSessionMissed)
	return missed, nil
}

// SweepMissed marks up to limit overdue sessions as missed and returns how
// many were marked.
func (s *SessionService) SweepMissed(ctx context.Context, limit int) (int, error) {
	cutoff := s.now().Add(-s.cfg.MissedGrace)
	overdue, err := s.sessions.FindOverdue(ctx, cutoff, limit)
	if err != nil {
		return 0, apperrors.Database(fmt.Errorf("find overdue sessions: %w", err))
	}

	marked := 0
	for i := range overdue {
		if ctx.Err() != nil {
			return marked, ctx.Err()
		}
		if _, err := s.markMissed(ctx, &overdue[i]); err != nil {
			if apperrors.Is(err, apperrors.ErrCodeInvalidTransition) {
				continue
			}
			log.Error().Err(err).Str("sessionId", overdue[i].ID).Msg("failed to mark session missed")
			continue
		}
		marked++
	}
	return marked, nil
}

func (s *SessionService) partySession(ctx context.Context, sessionID, actorID string) (*model.Session, *model.Connection, error) {
	if !validID(sessionID) {
		return nil, nil, apperrors.NotFound("session")
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, nil, apperrors.Database(fmt.Errorf("find session: %w", err))
	}
	if session == nil {
		return nil, nil, apperrors.NotFound("session")
	}
	conn, err := s.conns.FindByID(ctx, session.ConnectionID)
	if err != nil {
		return nil, nil, apperrors.Database(fmt.Errorf("find connection: %w", err))
	}
	if conn == nil {
		return nil, nil, apperrors.NotFound("connection")
	}
	if !conn.HasParty(actorID) {
		return nil, nil, apperrors.Forbidden("not a party to this session")
	}
	return session, conn, nil
}

func (s *SessionService) sessionRepo(tx *sqlx.Tx) repository.SessionRepository {
	if tx == nil {
		return s.sessions
	}
	return s.sessions.WithTx(tx)
}

func (s *SessionService) connRepo(tx *sqlx.Tx) repository.ConnectionRepository {
	if tx == nil {
		return s.conns
	}
	return s.conns.WithTx(tx)
}

func (s *SessionService) rejectSession(current, requested model.SessionStatus) error {
	transitionRejections.WithLabelValues("session", string(requested)).Inc()
	return apperrors.InvalidTransition("session", string(current), string(requested))
}

func (s *SessionService) rejectVideo(current, requested model.VideoStatus) error {
	transitionRejections.WithLabelValues("video", string(requested)).Inc()
	return apperrors.InvalidTransition("video", string(current), string(requested))
}

// reloadRejection reports the status a concurrent writer left behind.
func (s *SessionService) reloadRejection(ctx context.Context, repo repository.SessionRepository, id string, requested model.SessionStatus) error {
	current, err := repo.FindByID(ctx, id)
	if err != nil {
		return apperrors.Database(fmt.Errorf("reload session: %w", err))
	}
	if current == nil {
		return apperrors.NotFound("session")
	}
	return s.rejectSession(current.Status, requested)
}

func (s *SessionService) reloadVideoRejection(current *model.Session, requested model.VideoStatus) error {
	if current == nil {
		return apperrors.NotFound("session")
	}
	if current.Status != model.SessionInProgress {
		transitionRejections.WithLabelValues("video", string(requested)).Inc()
		return apperrors.InvalidTransition("session", string(current.Status), string(model.SessionInProgress))
	}
	return s.rejectVideo(current.VideoStatus, requested)
}

func (s *SessionService) payload(session *model.Session, actorID string) sessionPayload {
	return sessionPayload{
		SessionID:    session.ID,
		ConnectionID: session.ConnectionID,
		Status:       session.Status,
		VideoStatus:  session.VideoStatus,
		ActorID:      actorID,
	}
}

// recorded logs, audits and notifies an applied transition. Without an
// actor both parties are notified.
func (s *SessionService) recorded(
	ctx context.Context,
	session *model.Session,
	conn *model.Connection,
	actorID string,
	auditType audit.EventType,
	eventType sse.EventType,
) {
	log.Info().
		Str("sessionId", session.ID).
		Str("connectionId", conn.ID).
		Str("status", string(session.Status)).
		Str("videoStatus", string(session.VideoStatus)).
		Str("actorId", actorID).
		Msg("session updated")

	audit.Log(ctx, audit.Event{
		Type:         auditType,
		ActorID:      actorID,
		ConnectionID: conn.ID,
		SessionID:    session.ID,
	})

	recipients := []string{conn.ElderID, conn.YoungID}
	if actorID != "" {
		recipients = []string{conn.Counterpart(actorID)}
	}
	notify(ctx, s.notifier, eventType, s.payload(session, actorID), recipients...)
}

func ratingFor(conn *model.Connection, actorID string, score *int, feedback *string) (*model.Rating, error) {
	if score == nil {
		if feedback != nil {
			return nil, apperrors.BadRequest("feedback requires a rating")
		}
		return nil, nil
	}
	if *score < minRating || *score > maxRating {
		return nil, apperrors.BadRequest(fmt.Sprintf("rating must be between %d and %d", minRating, maxRating))
	}
	side := model.RatingSideYoung
	if actorID == conn.ElderID {
		side = model.RatingSideElder
	}
	return &model.Rating{Side: side, Score: *score, Feedback: feedback}, nil
}

func videoEvents(to model.VideoStatus) (audit.EventType, sse.EventType) {
	switch to {
	case model.VideoActive:
		return audit.EventVideoActive, sse.EventVideoActive
	case model.VideoEnded:
		return audit.EventVideoEnded, sse.EventVideoEnded
	default:
		return audit.EventVideoFailed, sse.EventVideoFailed
	}
}
