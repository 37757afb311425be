package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/generations-connect/connect-server-go/internal/database"
	"github.com/generations-connect/connect-server-go/internal/model"
)

type InterestRepository interface {
	// Upsert inserts the interest or refreshes its category and icon when
	// the name already exists.
	Upsert(ctx context.Context, interest model.Interest) (*model.Interest, error)
	ListActive(ctx context.Context) ([]model.Interest, error)
	WithTx(tx *sqlx.Tx) InterestRepository
}

type interestRepo struct {
	db database.DBTX
}

func NewInterestRepository(db *sqlx.DB) InterestRepository {
	return &interestRepo{db: db}
}

func (r *interestRepo) WithTx(tx *sqlx.Tx) InterestRepository {
	return &interestRepo{db: tx}
}

func (r *interestRepo) Upsert(ctx context.Context, interest model.Interest) (*model.Interest, error) {
	var out model.Interest
	err := r.db.GetContext(ctx, &out, `
		INSERT INTO interests (name, category, icon_url, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (name) DO UPDATE SET
			category = EXCLUDED.category,
			icon_url = EXCLUDED.icon_url,
			is_active = TRUE
		RETURNING id, name, category, icon_url, is_active
	`, interest.Name, interest.Category, interest.IconURL)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *interestRepo) ListActive(ctx context.Context) ([]model.Interest, error) {
	var interests []model.Interest
	err := r.db.SelectContext(ctx, &interests, `
		SELECT id, name, category, icon_url, is_active
		FROM interests
		WHERE is_active
		ORDER BY category, name
	`)
	return interests, err
}
