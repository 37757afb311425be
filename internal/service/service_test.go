package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/generations-connect/connect-server-go/internal/errors"
	"github.com/generations-connect/connect-server-go/internal/model"
	"github.com/generations-connect/connect-server-go/internal/repository/repotest"
	"github.com/generations-connect/connect-server-go/internal/sse"
)

const (
	elderID = "elder-1"
	youngID = "young-1"
)

type published struct {
	UserID string
	Type   sse.EventType
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
}

func (n *recordingNotifier) Publish(ctx context.Context, userID string, event sse.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, published{UserID: userID, Type: event.Type})
	return nil
}

func (n *recordingNotifier) sent(t sse.EventType) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var users []string
	for _, e := range n.events {
		if e.Type == t {
			users = append(users, e.UserID)
		}
	}
	return users
}

type fixture struct {
	store       *repotest.Store
	notifier    *recordingNotifier
	connections *ConnectionService
	sessions    *SessionService
	now         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repotest.NewStore()
	store.AddUser(model.User{ID: elderID, UserType: model.UserTypeElder, FullName: "Ruth", IsActive: true})
	store.AddUser(model.User{ID: youngID, UserType: model.UserTypeYoung, FullName: "Sam", IsActive: true})

	f := &fixture{
		store:    store,
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	f.connections = NewConnectionService(store.Connections(), store.Users(), f.notifier)
	f.connections.now = clock
	f.sessions = NewSessionService(repotest.Transactor{}, store.Sessions(), store.Connections(), f.connections, f.notifier, SessionConfig{
		VideoRetryWindow: 30 * time.Second,
		MissedGrace:      15 * time.Minute,
	})
	f.sessions.now = clock
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) acceptedConnection(t *testing.T) *model.Connection {
	t.Helper()
	ctx := context.Background()
	conn, err := f.connections.Create(ctx, CreateConnectionInput{FromID: youngID, ToID: elderID})
	require.NoError(t, err)
	conn, err = f.connections.Accept(ctx, conn.ID, elderID)
	require.NoError(t, err)
	return conn
}

func (f *fixture) startedSession(t *testing.T) (*model.Connection, *model.Session) {
	t.Helper()
	ctx := context.Background()
	conn := f.acceptedConnection(t)
	sess, err := f.sessions.Schedule(ctx, elderID, conn.ID, ScheduleInput{
		ActivityType: model.ActivityCooking,
		ScheduledAt:  f.now.Add(time.Hour),
	})
	require.NoError(t, err)
	f.advance(time.Hour)
	sess, err = f.sessions.Begin(ctx, youngID, sess.ID)
	require.NoError(t, err)
	return conn, sess
}

func assertCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperrors.GetCode(err), "error: %v", err)
}

func assertTransition(t *testing.T, err error, current, requested string) {
	t.Helper()
	assertCode(t, err, apperrors.ErrCodeInvalidTransition)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.TransitionDetails{Current: current, Requested: requested}, appErr.Details)
}

func ptr[T any](v T) *T { return &v }
