package service

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/generations-connect/connect-server-go/internal/errors"
	"github.com/generations-connect/connect-server-go/internal/matching"
	"github.com/generations-connect/connect-server-go/internal/model"
	"github.com/generations-connect/connect-server-go/internal/repository"
)

// Pool is a target profile and the candidates eligible to be matched with it.
type Pool struct {
	Target     model.MatchProfile
	Candidates []model.MatchProfile
}

// CandidatePool builds the set of users a target may be matched with:
// active users of the other type who have no open connection with the
// target, newest first.
type CandidatePool struct {
	users       repository.UserRepository
	connections repository.ConnectionRepository
	defaultSize int
	now         func() time.Time
}

func NewCandidatePool(users repository.UserRepository, connections repository.ConnectionRepository, defaultSize int) *CandidatePool {
	return &CandidatePool{
		users:       users,
		connections: connections,
		defaultSize: defaultSize,
		now:         time.Now,
	}
}

// Candidates returns up to n eligible profiles for targetID. A non-positive
// n uses the configured pool size.
func (p *CandidatePool) Candidates(ctx context.Context, targetID string, n int) ([]model.MatchProfile, error) {
	pool, err := p.Build(ctx, targetID, n)
	if err != nil {
		return nil, err
	}
	return pool.Candidates, nil
}

func (p *CandidatePool) Build(ctx context.Context, targetID string, n int) (*Pool, error) {
	if n <= 0 {
		n = p.defaultSize
	}

	target, err := p.users.FindActiveByID(ctx, targetID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("find target: %w", err))
	}
	if target == nil {
		return nil, apperrors.NotFound("user")
	}

	partners, err := p.connections.OpenPartnerIDs(ctx, targetID)
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("open partners: %w", err))
	}
	excluded := make(map[string]struct{}, len(partners)+1)
	excluded[targetID] = struct{}{}
	for _, id := range partners {
		excluded[id] = struct{}{}
	}

	users, err := p.users.ListActive(ctx, target.UserType.Counterpart(), n+len(excluded))
	if err != nil {
		return nil, apperrors.Database(fmt.Errorf("list candidates: %w", err))
	}

	eligible := make([]model.User, 0, min(n, len(users)))
	for i := range users {
		if _, skip := excluded[users[i].ID]; skip {
			continue
		}
		eligible = append(eligible, users[i])
		if len(eligible) == n {
			break
		}
	}

	now := p.now()
	return &Pool{Target: matching.Project(target, now), Candidates: matching.ProjectAll(eligible, now)}, nil
}
