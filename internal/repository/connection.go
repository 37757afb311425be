package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/generations-connect/connect-server-go/internal/database"
	"github.com/generations-connect/connect-server-go/internal/model"
)

// OpenPairIndex is the partial unique index that keeps one non-terminal
// connection per unordered pair.
const OpenPairIndex = "connections_open_pair_idx"

// ErrDuplicatePair is returned by Create when the pair already has a
// non-terminal connection.
var ErrDuplicatePair = errors.New("connection already open for pair")

type ConnectionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Connection, error)
	// FindOpenByPair returns the non-terminal connection between a and b in
	// either role order.
	FindOpenByPair(ctx context.Context, a, b string) (*model.Connection, error)
	// FindByUser lists connections the user is a party to. An empty status
	// lists every status.
	FindByUser(ctx context.Context, userID string, status model.ConnectionStatus) ([]model.Connection, error)
	// OpenPartnerIDs returns the counterparts of every non-terminal
	// connection of the user.
	OpenPartnerIDs(ctx context.Context, userID string) ([]string, error)
	Create(ctx context.Context, params model.CreateConnectionParams) (*model.Connection, error)
	// Transition moves the connection from one status to another. It returns
	// (nil, nil) when the row was not in the expected status.
	Transition(ctx context.Context, id string, from, to model.ConnectionStatus, at time.Time) (*model.Connection, error)
	TouchActivity(ctx context.Context, id string, at time.Time) (*model.Connection, error)
	// RecomputeStats refreshes total_sessions, total_hours and average_rating
	// from the connection's completed sessions.
	RecomputeStats(ctx context.Context, id string, at time.Time) (*model.Connection, error)
	WithTx(tx *sqlx.Tx) ConnectionRepository
}

type connectionRepo struct {
	db database.DBTX
}

func NewConnectionRepository(db *sqlx.DB) ConnectionRepository {
	return &connectionRepo{db: db}
}

func (r *connectionRepo) WithTx(tx *sqlx.Tx) ConnectionRepository {
	return &connectionRepo{db: tx}
}

func (r *connectionRepo) FindByID(ctx context.Context, id string) (*model.Connection, error) {
	var conn model.Connection
	err := r.db.GetContext(ctx, &conn, `SELECT * FROM connections WHERE id = $1`, id)
	return HandleNotFound(&conn, err)
}

func (r *connectionRepo) FindOpenByPair(ctx context.Context, a, b string) (*model.Connection, error) {
	var conn model.Connection
	err := r.db.GetContext(ctx, &conn, `
		SELECT * FROM connections
		WHERE LEAST(elder_id, young_id) = LEAST($1::text, $2::text)
		AND GREATEST(elder_id, young_id) = GREATEST($1::text, $2::text)
		AND status NOT IN ('rejected', 'cancelled')
		LIMIT 1
	`, a, b)
	return HandleNotFound(&conn, err)
}

func (r *connectionRepo) FindByUser(ctx context.Context, userID string, status model.ConnectionStatus) ([]model.Connection, error) {
	var conns []model.Connection
	err := r.db.SelectContext(ctx, &conns, `
		SELECT * FROM connections
		WHERE (elder_id = $1 OR young_id = $1)
		AND ($2::text = '' OR status = $2::text)
		ORDER BY COALESCE(last_activity_at, created_at) DESC, id
	`, userID, string(status))
	return conns, err
}

func (r *connectionRepo) OpenPartnerIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT CASE WHEN elder_id = $1 THEN young_id ELSE elder_id END
		FROM connections
		WHERE (elder_id = $1 OR young_id = $1)
		AND status NOT IN ('rejected', 'cancelled')
	`, userID)
	return ids, err
}

func (r *connectionRepo) Create(ctx context.Context, params model.CreateConnectionParams) (*model.Connection, error) {
	var conn model.Connection
	err := r.db.GetContext(ctx, &conn, `
		INSERT INTO connections (elder_id, young_id, status, initiated_by, match_score, match_explanation)
		VALUES ($1, $2, 'pending', $3, $4, $5)
		RETURNING *
	`, params.ElderID, params.YoungID, params.InitiatedBy, params.MatchScore, params.MatchExplanation)
	if database.IsUniqueViolation(err, OpenPairIndex) {
		return nil, ErrDuplicatePair
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepo) Transition(ctx context.Context, id string, from, to model.ConnectionStatus, at time.Time) (*model.Connection, error) {
	var conn model.Connection
	err := r.db.GetContext(ctx, &conn, `
		UPDATE connections SET
			status = $3::text,
			accepted_at = CASE WHEN $3::text = 'accepted' THEN $4::timestamptz ELSE accepted_at END,
			first_session_at = CASE WHEN $3::text = 'active' THEN COALESCE(first_session_at, $4::timestamptz) ELSE first_session_at END,
			last_activity_at = $4::timestamptz,
			updated_at = $4::timestamptz
		WHERE id = $1 AND status = $2
		RETURNING *
	`, id, string(from), string(to), at)
	return HandleNotFound(&conn, err)
}

func (r *connectionRepo) TouchActivity(ctx context.Context, id string, at time.Time) (*model.Connection, error) {
	var conn model.Connection
	err := r.db.GetContext(ctx, &conn, `
		UPDATE connections SET
			last_activity_at = $2::timestamptz,
			updated_at = $2::timestamptz
		WHERE id = $1
		RETURNING *
	`, id, at)
	return HandleNotFound(&conn, err)
}

func (r *connectionRepo) RecomputeStats(ctx context.Context, id string, at time.Time) (*model.Connection, error) {
	var conn model.Connection
	err := r.db.GetContext(ctx, &conn, `
		UPDATE connections c SET
			total_sessions = stats.sessions,
			total_hours = stats.hours,
			average_rating = stats.rating,
			last_activity_at = $2,
			updated_at = $2
		FROM (
			SELECT
				COUNT(*)::int AS sessions,
				ROUND(COALESCE(SUM(s.duration_minutes), 0) / 60.0)::int AS hours,
				(
					SELECT ROUND(AVG(r.rating)::numeric, 2)::float8
					FROM sessions rs, LATERAL (VALUES (rs.elder_rating), (rs.young_rating)) AS r(rating)
					WHERE rs.connection_id = $1 AND rs.status = 'completed' AND r.rating IS NOT NULL
				) AS rating
			FROM sessions s
			WHERE s.connection_id = $1 AND s.status = 'completed'
		) AS stats
		WHERE c.id = $1
		RETURNING c.*
	`, id, at)
	return HandleNotFound(&conn, err)
}
