// Package repotest provides in-memory repositories with the same
// compare-and-set semantics as the Postgres implementations.
package repotest

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/generations-connect/connect-server-go/internal/database"
	"github.com/generations-connect/connect-server-go/internal/model"
	"github.com/generations-connect/connect-server-go/internal/repository"
)

type Store struct {
	mu          sync.Mutex
	users       map[string]model.User
	connections map[string]model.Connection
	sessions    map[string]model.Session
}

func NewStore() *Store {
	return &Store{
		users:       make(map[string]model.User),
		connections: make(map[string]model.Connection),
		sessions:    make(map[string]model.Session),
	}
}

func (s *Store) AddUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	s.users[u.ID] = u
}

// PutConnection stores c as-is, assigning an id when empty.
func (s *Store) PutConnection(c model.Connection) model.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.connections[c.ID] = c
	return c
}

// PutSession stores sess as-is, assigning an id when empty.
func (s *Store) PutSession(sess model.Session) model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.VideoStatus == "" {
		sess.VideoStatus = model.VideoNotStarted
	}
	s.sessions[sess.ID] = sess
	return sess
}

func (s *Store) Connection(id string) (model.Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	return c, ok
}

func (s *Store) Session(id string) (model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Store) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

func (s *Store) Users() repository.UserRepository             { return &userRepo{s} }
func (s *Store) Connections() repository.ConnectionRepository { return &connectionRepo{s} }
func (s *Store) Sessions() repository.SessionRepository       { return &sessionRepo{s} }

// Transactor runs fn without a real transaction; the fakes ignore tx.
type Transactor struct{}

func (Transactor) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

type userRepo struct{ s *Store }

func (r *userRepo) FindActiveByID(ctx context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok || !u.IsActive {
		return nil, nil
	}
	return &u, nil
}

func (r *userRepo) ListActive(ctx context.Context, userType model.UserType, limit int) ([]model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.User
	for _, u := range r.s.users {
		if u.IsActive && u.UserType == userType {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type connectionRepo struct{ s *Store }

func (r *connectionRepo) WithTx(tx *sqlx.Tx) repository.ConnectionRepository { return r }

func (r *connectionRepo) FindByID(ctx context.Context, id string) (*model.Connection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.connections[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *connectionRepo) FindOpenByPair(ctx context.Context, a, b string) (*model.Connection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.openPair(a, b), nil
}

func (s *Store) openPair(a, b string) *model.Connection {
	for _, c := range s.connections {
		if c.Status.IsTerminal() {
			continue
		}
		if (c.ElderID == a && c.YoungID == b) || (c.ElderID == b && c.YoungID == a) {
			found := c
			return &found
		}
	}
	return nil
}

func (r *connectionRepo) FindByUser(ctx context.Context, userID string, status model.ConnectionStatus) ([]model.Connection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Connection
	for _, c := range r.s.connections {
		if !c.HasParty(userID) {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := activityTime(out[i]), activityTime(out[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func activityTime(c model.Connection) time.Time {
	if c.LastActivityAt != nil {
		return *c.LastActivityAt
	}
	return c.CreatedAt
}

func (r *connectionRepo) OpenPartnerIDs(ctx context.Context, userID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []string
	for _, c := range r.s.connections {
		if c.HasParty(userID) && !c.Status.IsTerminal() {
			ids = append(ids, c.Counterpart(userID))
		}
	}
	return ids, nil
}

func (r *connectionRepo) Create(ctx context.Context, params model.CreateConnectionParams) (*model.Connection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.openPair(params.ElderID, params.YoungID) != nil {
		return nil, repository.ErrDuplicatePair
	}
	now := time.Now()
	c := model.Connection{
		ID:               uuid.NewString(),
		ElderID:          params.ElderID,
		YoungID:          params.YoungID,
		Status:           model.ConnectionPending,
		MatchScore:       params.MatchScore,
		MatchExplanation: params.MatchExplanation,
		InitiatedBy:      params.InitiatedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	r.s.connections[c.ID] = c
	return &c, nil
}

func (r *connectionRepo) Transition(ctx context.Context, id string, from, to model.ConnectionStatus, at time.Time) (*model.Connection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.connections[id]
	if !ok || c.Status != from {
		return nil, nil
	}
	c.Status = to
	switch to {
	case model.ConnectionAccepted:
		c.AcceptedAt = &at
	case model.ConnectionActive:
		if c.FirstSessionAt == nil {
			c.FirstSessionAt = &at
		}
	}
	c.LastActivityAt = &at
	c.UpdatedAt = at
	r.s.connections[id] = c
	return &c, nil
}

func (r *connectionRepo) TouchActivity(ctx context.Context, id string, at time.Time) (*model.Connection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.connections[id]
	if !ok {
		return nil, nil
	}
	c.LastActivityAt = &at
	c.UpdatedAt = at
	r.s.connections[id] = c
	return &c, nil
}

func (r *connectionRepo) RecomputeStats(ctx context.Context, id string, at time.Time) (*model.Connection, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.connections[id]
	if !ok {
		return nil, nil
	}
	var sessions, minutes, ratingSum, ratingCount int
	for _, sess := range r.s.sessions {
		if sess.ConnectionID != id || sess.Status != model.SessionCompleted {
			continue
		}
		sessions++
		if sess.DurationMinutes != nil {
			minutes += *sess.DurationMinutes
		}
		for _, rating := range []*int{sess.ElderRating, sess.YoungRating} {
			if rating != nil {
				ratingSum += *rating
				ratingCount++
			}
		}
	}
	c.TotalSessions = sessions
	c.TotalHours = int(math.Round(float64(minutes) / 60))
	c.AverageRating = nil
	if ratingCount > 0 {
		avg := math.Round(float64(ratingSum)/float64(ratingCount)*100) / 100
		c.AverageRating = &avg
	}
	c.LastActivityAt = &at
	c.UpdatedAt = at
	r.s.connections[id] = c
	return &c, nil
}

type sessionRepo struct{ s *Store }

func (r *sessionRepo) WithTx(tx *sqlx.Tx) repository.SessionRepository { return r }

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (r *sessionRepo) FindByConnectionID(ctx context.Context, connectionID string) ([]model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Session
	for _, sess := range r.s.sessions {
		if sess.ConnectionID == connectionID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.After(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *sessionRepo) FindOverdue(ctx context.Context, cutoff time.Time, limit int) ([]model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Session
	for _, sess := range r.s.sessions {
		if sess.Status == model.SessionScheduled && sess.ScheduledAt.Before(cutoff) {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	sess := model.Session{
		ID:                  uuid.NewString(),
		ConnectionID:        params.ConnectionID,
		ActivityType:        params.ActivityType,
		ActivityTitle:       params.ActivityTitle,
		ActivityDescription: params.ActivityDescription,
		Status:              model.SessionScheduled,
		ScheduledAt:         params.ScheduledAt,
		VideoStatus:         model.VideoNotStarted,
		ChatEnabled:         params.ChatEnabled,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	r.s.sessions[sess.ID] = sess
	return &sess, nil
}

// update applies fn to the session when cond holds, under the store lock.
func (r *sessionRepo) update(id string, cond func(model.Session) bool, fn func(*model.Session)) *model.Session {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok || !cond(sess) {
		return nil
	}
	fn(&sess)
	r.s.sessions[id] = sess
	return &sess
}

func inStatus(status model.SessionStatus) func(model.Session) bool {
	return func(sess model.Session) bool { return sess.Status == status }
}

func (r *sessionRepo) Begin(ctx context.Context, id string, at time.Time) (*model.Session, error) {
	return r.update(id, inStatus(model.SessionScheduled), func(sess *model.Session) {
		sess.Status = model.SessionInProgress
		sess.StartedAt = &at
		sess.UpdatedAt = at
	}), nil
}

func (r *sessionRepo) Complete(ctx context.Context, id string, params model.CompleteSessionParams) (*model.Session, error) {
	return r.update(id, inStatus(model.SessionInProgress), func(sess *model.Session) {
		endedAt := params.EndedAt
		duration := params.DurationMinutes
		sess.Status = model.SessionCompleted
		sess.EndedAt = &endedAt
		sess.DurationMinutes = &duration
		if sess.VideoStatus == model.VideoActive {
			sess.VideoStatus = model.VideoEnded
			sess.VideoEndedAt = &endedAt
			if sess.VideoStartedAt != nil {
				secs := max(0, int(endedAt.Sub(*sess.VideoStartedAt).Seconds()))
				sess.VideoDurationSeconds = &secs
			}
			if params.VideoQuality != nil {
				sess.VideoQuality = params.VideoQuality
			}
		}
		if params.Rating != nil {
			applyRating(sess, *params.Rating)
		}
		sess.UpdatedAt = endedAt
	}), nil
}

func applyRating(sess *model.Session, rating model.Rating) {
	score := rating.Score
	switch rating.Side {
	case model.RatingSideElder:
		sess.ElderRating = &score
		sess.ElderFeedback = rating.Feedback
	case model.RatingSideYoung:
		sess.YoungRating = &score
		sess.YoungFeedback = rating.Feedback
	}
}

func (r *sessionRepo) Cancel(ctx context.Context, id string, at time.Time) (*model.Session, error) {
	return r.update(id, inStatus(model.SessionScheduled), func(sess *model.Session) {
		sess.Status = model.SessionCancelled
		sess.UpdatedAt = at
	}), nil
}

func (r *sessionRepo) MarkMissed(ctx context.Context, id string, cutoff, at time.Time) (*model.Session, error) {
	cond := func(sess model.Session) bool {
		return sess.Status == model.SessionScheduled && sess.ScheduledAt.Before(cutoff)
	}
	return r.update(id, cond, func(sess *model.Session) {
		sess.Status = model.SessionMissed
		sess.UpdatedAt = at
	}), nil
}

func (r *sessionRepo) TransitionVideo(ctx context.Context, id string, from, to model.VideoStatus, params model.VideoTransitionParams) (*model.Session, error) {
	cond := func(sess model.Session) bool {
		return sess.Status == model.SessionInProgress && sess.VideoStatus == from
	}
	return r.update(id, cond, func(sess *model.Session) {
		at := params.At
		sess.VideoStatus = to
		if params.RoomID != nil {
			sess.VideoRoomID = params.RoomID
		}
		if params.RequestedBy != nil {
			sess.VideoRequestedBy = params.RequestedBy
		}
		switch to {
		case model.VideoConnecting:
			sess.VideoRequestedAt = &at
		case model.VideoActive:
			sess.VideoStartedAt = &at
		case model.VideoEnded, model.VideoFailed:
			sess.VideoEndedAt = &at
			if to == model.VideoEnded && sess.VideoStartedAt != nil {
				secs := max(0, int(at.Sub(*sess.VideoStartedAt).Seconds()))
				sess.VideoDurationSeconds = &secs
			}
		}
		if params.Quality != nil {
			sess.VideoQuality = params.Quality
		}
		sess.UpdatedAt = at
	}), nil
}

func (r *sessionRepo) RefreshVideoRequest(ctx context.Context, id, requestedBy string, at time.Time) (*model.Session, error) {
	cond := func(sess model.Session) bool {
		return sess.Status == model.SessionInProgress &&
			sess.VideoStatus == model.VideoConnecting &&
			sess.VideoRequestedBy != nil && *sess.VideoRequestedBy == requestedBy
	}
	return r.update(id, cond, func(sess *model.Session) {
		sess.VideoRequestedAt = &at
		sess.UpdatedAt = at
	}), nil
}

func (r *sessionRepo) Rate(ctx context.Context, id string, rating model.Rating, at time.Time) (*model.Session, error) {
	return r.update(id, inStatus(model.SessionCompleted), func(sess *model.Session) {
		applyRating(sess, rating)
		sess.UpdatedAt = at
	}), nil
}
