package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/generations-connect/connect-server-go/internal/database"
	"github.com/generations-connect/connect-server-go/internal/model"
)

// SessionRepository persists sessions. Every status-changing method is a
// compare-and-set on the current status and returns (nil, nil) when the row
// was not in the expected state.
type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	FindByConnectionID(ctx context.Context, connectionID string) ([]model.Session, error)
	// FindOverdue returns scheduled sessions whose scheduled_at is before the
	// cutoff, oldest first.
	FindOverdue(ctx context.Context, cutoff time.Time, limit int) ([]model.Session, error)
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	Begin(ctx context.Context, id string, at time.Time) (*model.Session, error)
	Complete(ctx context.Context, id string, params model.CompleteSessionParams) (*model.Session, error)
	Cancel(ctx context.Context, id string, at time.Time) (*model.Session, error)
	MarkMissed(ctx context.Context, id string, cutoff, at time.Time) (*model.Session, error)
	TransitionVideo(ctx context.Context, id string, from, to model.VideoStatus, params model.VideoTransitionParams) (*model.Session, error)
	// RefreshVideoRequest bumps video_requested_at for a call still
	// connecting on behalf of the same caller.
	RefreshVideoRequest(ctx context.Context, id, requestedBy string, at time.Time) (*model.Session, error)
	// Rate writes one side's rating on a completed session.
	Rate(ctx context.Context, id string, rating model.Rating, at time.Time) (*model.Session, error)
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db database.DBTX
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `SELECT * FROM sessions WHERE id = $1`, id)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) FindByConnectionID(ctx context.Context, connectionID string) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE connection_id = $1
		ORDER BY scheduled_at DESC, id
	`, connectionID)
	return sessions, err
}

func (r *sessionRepo) FindOverdue(ctx context.Context, cutoff time.Time, limit int) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT * FROM sessions
		WHERE status = 'scheduled' AND scheduled_at < $1
		ORDER BY scheduled_at, id
		LIMIT $2
	`, cutoff, limit)
	return sessions, err
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions (connection_id, activity_type, activity_title, activity_description,
			status, scheduled_at, video_status, chat_enabled)
		VALUES ($1, $2, $3, $4, 'scheduled', $5, 'not_started', $6)
		RETURNING *
	`, params.ConnectionID, params.ActivityType, params.ActivityTitle, params.ActivityDescription,
		params.ScheduledAt, params.ChatEnabled)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Begin(ctx context.Context, id string, at time.Time) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE sessions SET
			status = 'in_progress',
			started_at = $2::timestamptz,
			updated_at = $2::timestamptz
		WHERE id = $1 AND status = 'scheduled'
		RETURNING *
	`, id, at)
	return HandleNotFound(&session, err)
}

// Complete ends the session. A call that is still active is ended with it;
// any other video state is left untouched.
func (r *sessionRepo) Complete(ctx context.Context, id string, params model.CompleteSessionParams) (*model.Session, error) {
	var (
		side     string
		score    *int
		feedback *string
	)
	if params.Rating != nil {
		side = string(params.Rating.Side)
		score = &params.Rating.Score
		feedback = params.Rating.Feedback
	}

	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE sessions SET
			status = 'completed',
			ended_at = $2::timestamptz,
			duration_minutes = $3,
			video_status = CASE WHEN video_status = 'active' THEN 'ended' ELSE video_status END,
			video_ended_at = CASE WHEN video_status = 'active' THEN $2::timestamptz ELSE video_ended_at END,
			video_duration_seconds = CASE
				WHEN video_status = 'active' AND video_started_at IS NOT NULL
				THEN GREATEST(0, EXTRACT(EPOCH FROM ($2::timestamptz - video_started_at)))::int
				ELSE video_duration_seconds END,
			video_quality = CASE WHEN video_status = 'active' THEN COALESCE($4::text, video_quality) ELSE video_quality END,
			elder_rating = CASE WHEN $5::text = 'elder' THEN $6::int ELSE elder_rating END,
			elder_feedback = CASE WHEN $5::text = 'elder' THEN $7::text ELSE elder_feedback END,
			young_rating = CASE WHEN $5::text = 'young' THEN $6::int ELSE young_rating END,
			young_feedback = CASE WHEN $5::text = 'young' THEN $7::text ELSE young_feedback END,
			updated_at = $2::timestamptz
		WHERE id = $1 AND status = 'in_progress'
		RETURNING *
	`, id, params.EndedAt, params.DurationMinutes, params.VideoQuality, side, score, feedback)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Cancel(ctx context.Context, id string, at time.Time) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE sessions SET
			status = 'cancelled',
			updated_at = $2
		WHERE id = $1 AND status = 'scheduled'
		RETURNING *
	`, id, at)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) MarkMissed(ctx context.Context, id string, cutoff, at time.Time) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE sessions SET
			status = 'missed',
			updated_at = $3
		WHERE id = $1 AND status = 'scheduled' AND scheduled_at < $2
		RETURNING *
	`, id, cutoff, at)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) TransitionVideo(ctx context.Context, id string, from, to model.VideoStatus, params model.VideoTransitionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE sessions SET
			video_status = $3::text,
			video_room_id = COALESCE($4::text, video_room_id),
			video_requested_by = COALESCE($5::text, video_requested_by),
			video_requested_at = CASE WHEN $3::text = 'connecting' THEN $6::timestamptz ELSE video_requested_at END,
			video_started_at = CASE WHEN $3::text = 'active' THEN $6::timestamptz ELSE video_started_at END,
			video_ended_at = CASE WHEN $3::text IN ('ended', 'failed') THEN $6::timestamptz ELSE video_ended_at END,
			video_duration_seconds = CASE
				WHEN $3::text = 'ended' AND video_started_at IS NOT NULL
				THEN GREATEST(0, EXTRACT(EPOCH FROM ($6::timestamptz - video_started_at)))::int
				ELSE video_duration_seconds END,
			video_quality = COALESCE($7::text, video_quality),
			updated_at = $6::timestamptz
		WHERE id = $1 AND status = 'in_progress' AND video_status = $2
		RETURNING *
	`, id, string(from), string(to), params.RoomID, params.RequestedBy, params.At, params.Quality)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) RefreshVideoRequest(ctx context.Context, id, requestedBy string, at time.Time) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE sessions SET
			video_requested_at = $3,
			updated_at = $3
		WHERE id = $1 AND status = 'in_progress'
		AND video_status = 'connecting' AND video_requested_by = $2
		RETURNING *
	`, id, requestedBy, at)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Rate(ctx context.Context, id string, rating model.Rating, at time.Time) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		UPDATE sessions SET
			elder_rating = CASE WHEN $2::text = 'elder' THEN $3::int ELSE elder_rating END,
			elder_feedback = CASE WHEN $2::text = 'elder' THEN $4::text ELSE elder_feedback END,
			young_rating = CASE WHEN $2::text = 'young' THEN $3::int ELSE young_rating END,
			young_feedback = CASE WHEN $2::text = 'young' THEN $4::text ELSE young_feedback END,
			updated_at = $5
		WHERE id = $1 AND status = 'completed'
		RETURNING *
	`, id, string(rating.Side), rating.Score, rating.Feedback, at)
	return HandleNotFound(&session, err)
}
