package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/generations-connect/connect-server-go/internal/database"
	"github.com/generations-connect/connect-server-go/internal/model"
)

// UserRepository reads the user directory. Users are owned by the
// registration service; this service never writes them.
type UserRepository interface {
	FindActiveByID(ctx context.Context, id string) (*model.User, error)
	// ListActive returns active users of the given type, newest first.
	ListActive(ctx context.Context, userType model.UserType, limit int) ([]model.User, error)
}

type userRepo struct {
	db database.DBTX
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

const userSelect = `
	SELECT u.id, u.user_type, u.full_name, u.bio, u.birth_date, u.availability,
		u.is_active, u.created_at, u.updated_at,
		COALESCE(array_agg(i.name ORDER BY i.name) FILTER (WHERE i.name IS NOT NULL), '{}') AS interests
	FROM users u
	LEFT JOIN user_interests ui ON ui.user_id = u.id
	LEFT JOIN interests i ON i.id = ui.interest_id AND i.is_active
`

func (r *userRepo) FindActiveByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, userSelect+`
		WHERE u.id = $1 AND u.is_active
		GROUP BY u.id
	`, id)
	return HandleNotFound(&user, err)
}

func (r *userRepo) ListActive(ctx context.Context, userType model.UserType, limit int) ([]model.User, error) {
	var users []model.User
	err := r.db.SelectContext(ctx, &users, userSelect+`
		WHERE u.is_active AND u.user_type = $1
		GROUP BY u.id
		ORDER BY u.created_at DESC, u.id
		LIMIT $2
	`, userType, limit)
	return users, err
}
