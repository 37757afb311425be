package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/generations-connect/connect-server-go/internal/matching"
	"github.com/generations-connect/connect-server-go/internal/middleware"
	"github.com/generations-connect/connect-server-go/internal/model"
	"github.com/generations-connect/connect-server-go/internal/repository/repotest"
	"github.com/generations-connect/connect-server-go/internal/service"
	"github.com/generations-connect/connect-server-go/internal/sse"
)

type testAPI struct {
	t      *testing.T
	router http.Handler
	store  *repotest.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := repotest.NewStore()
	store.AddUser(model.User{ID: "elder-1", UserType: model.UserTypeElder, Interests: pq.StringArray{"cooking", "music"}, IsActive: true})
	store.AddUser(model.User{ID: "young-1", UserType: model.UserTypeYoung, Interests: pq.StringArray{"cooking"}, IsActive: true})
	store.AddUser(model.User{ID: "young-2", UserType: model.UserTypeYoung, Interests: pq.StringArray{"chess"}, IsActive: true})

	broker := sse.NewBroker(nil)
	t.Cleanup(broker.Close)

	connections := service.NewConnectionService(store.Connections(), store.Users(), broker)
	sessions := service.NewSessionService(repotest.Transactor{}, store.Sessions(), store.Connections(), connections, broker, service.SessionConfig{
		VideoRetryWindow: 30 * time.Second,
		MissedGrace:      15 * time.Minute,
	})
	pool := service.NewCandidatePool(store.Users(), store.Connections(), 50)
	matches := service.NewMatchService(pool, matching.NewScorer(nil, matching.DefaultScorerConfig()), 10)

	router := NewRouter(RouterConfig{
		Auth:            middleware.NewAuthMiddleware(store.Users(), ""),
		RateLimit:       middleware.NewRateLimitMiddleware(middleware.NewLocalRateLimiter(), 1000),
		BodyLimit:       middleware.NewBodyLimitMiddleware(4096),
		SecurityHeaders: middleware.NewSecurityHeadersMiddleware(false),
		Health: NewHealthHandler(map[string]Pinger{
			"database": func(ctx context.Context) error { return nil },
		}),
		Events:      NewEventsHandler(broker),
		Matches:     NewMatchHandler(matches),
		Connections: NewConnectionHandler(connections, sessions),
		Sessions:    NewSessionHandler(sessions),
	})

	return &testAPI{t: t, router: router, store: store}
}

func (a *testAPI) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(a.t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details"`
}

func TestAPI_ConnectionAndSessionFlow(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/v1/connections", "young-1", map[string]any{
		"toUserId":   "elder-1",
		"matchScore": 50,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conn := decode[model.Connection](t, rec)
	assert.Equal(t, model.ConnectionPending, conn.Status)

	// Requests from either side for the same pair conflict.
	rec = api.do(http.MethodPost, "/v1/connections", "elder-1", map[string]any{"toUserId": "young-1"})
	require.Equal(t, http.StatusConflict, rec.Code)
	conflict := decode[errorBody](t, rec)
	assert.Equal(t, "CONFLICT", conflict.Code)
	assert.JSONEq(t, `{"connectionId":"`+conn.ID+`"}`, string(conflict.Details))

	// Scheduling under a pending connection is forbidden.
	rec = api.do(http.MethodPost, "/v1/connections/"+conn.ID+"/sessions", "elder-1", map[string]any{
		"activityType": "cooking",
		"scheduledAt":  time.Now().Add(time.Hour),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The requester cannot accept.
	rec = api.do(http.MethodPost, "/v1/connections/"+conn.ID+"/respond", "young-1", map[string]any{"accept": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPost, "/v1/connections/"+conn.ID+"/respond", "elder-1", map[string]any{"accept": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.ConnectionAccepted, decode[model.Connection](t, rec).Status)

	rec = api.do(http.MethodPost, "/v1/connections/"+conn.ID+"/sessions", "elder-1", map[string]any{
		"activityType":  "cooking",
		"activityTitle": "Sunday soup",
		"scheduledAt":   time.Now().Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sess := decode[model.Session](t, rec)

	rec = api.do(http.MethodPost, "/v1/sessions/"+sess.ID+"/begin", "young-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.SessionInProgress, decode[model.Session](t, rec).Status)

	rec = api.do(http.MethodGet, "/v1/connections/"+conn.ID, "young-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.ConnectionActive, decode[model.Connection](t, rec).Status)

	rec = api.do(http.MethodPost, "/v1/sessions/"+sess.ID+"/video/start", "elder-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.VideoConnecting, decode[model.Session](t, rec).VideoStatus)

	rec = api.do(http.MethodPost, "/v1/sessions/"+sess.ID+"/video/start", "elder-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodPost, "/v1/sessions/"+sess.ID+"/video/confirm", "young-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.VideoActive, decode[model.Session](t, rec).VideoStatus)

	rec = api.do(http.MethodPost, "/v1/sessions/"+sess.ID+"/end", "elder-1", map[string]any{
		"rating":       5,
		"feedback":     "Wonderful",
		"videoQuality": "good",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ended := decode[model.Session](t, rec)
	assert.Equal(t, model.SessionCompleted, ended.Status)
	assert.Equal(t, model.VideoEnded, ended.VideoStatus)

	rec = api.do(http.MethodPost, "/v1/sessions/"+sess.ID+"/rating", "young-1", map[string]any{"rating": 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, "/v1/connections/"+conn.ID, "elder-1", nil)
	stats := decode[model.Connection](t, rec)
	assert.Equal(t, 1, stats.TotalSessions)
	require.NotNil(t, stats.AverageRating)
	assert.Equal(t, 4.5, *stats.AverageRating)

	// A completed session cannot begin again.
	rec = api.do(http.MethodPost, "/v1/sessions/"+sess.ID+"/begin", "young-1", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	transition := decode[errorBody](t, rec)
	assert.Equal(t, "INVALID_TRANSITION", transition.Code)
	assert.JSONEq(t, `{"current":"completed","requested":"in_progress"}`, string(transition.Details))

	rec = api.do(http.MethodGet, "/v1/connections/"+conn.ID+"/sessions", "young-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[sessionsResponse](t, rec).Sessions, 1)
}

func TestAPI_ListConnections(t *testing.T) {
	api := newTestAPI(t)

	for _, from := range []string{"young-1", "young-2"} {
		rec := api.do(http.MethodPost, "/v1/connections", from, map[string]any{"toUserId": "elder-1"})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := api.do(http.MethodGet, "/v1/connections?status=pending", "elder-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[connectionsResponse](t, rec).Connections, 2)

	rec = api.do(http.MethodGet, "/v1/connections?limit=1", "elder-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[connectionsResponse](t, rec).Connections, 1)

	rec = api.do(http.MethodGet, "/v1/connections?offset=5", "elder-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connections":[]}`, rec.Body.String())

	rec = api.do(http.MethodGet, "/v1/connections?status=unknown", "elder-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RequestValidation(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"malformed json", http.MethodPost, "/v1/connections", `{"toUserId":`, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown field", http.MethodPost, "/v1/connections", map[string]any{"toUserId": "elder-1", "extra": 1}, http.StatusBadRequest, "BAD_REQUEST"},
		{"missing body", http.MethodPost, "/v1/connections", nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"missing target", http.MethodPost, "/v1/connections", map[string]any{"matchScore": 10}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"score out of range", http.MethodPost, "/v1/connections", map[string]any{"toUserId": "elder-1", "matchScore": 101}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"respond without decision", http.MethodPost, "/v1/connections/00000000-0000-0000-0000-000000000000/respond", map[string]any{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown connection", http.MethodGet, "/v1/connections/00000000-0000-0000-0000-000000000000", nil, http.StatusNotFound, "NOT_FOUND"},
		{"unknown session", http.MethodPost, "/v1/sessions/not-a-uuid/begin", nil, http.StatusNotFound, "NOT_FOUND"},
		{"bad topK", http.MethodGet, "/v1/matches?topK=abc", nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"topK too large", http.MethodGet, "/v1/matches?topK=500", nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"body too large", http.MethodPost, "/v1/connections", map[string]any{"toUserId": string(make([]byte, 5000))}, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(tt.method, tt.path, "young-1", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[errorBody](t, rec).Code)
		})
	}
}

func TestAPI_RequiresIdentity(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/v1/connections", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(http.MethodGet, "/v1/connections", "ghost", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_Matches(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/v1/matches?topK=5", "elder-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	results := decode[matchesResponse](t, rec).Matches
	require.Len(t, results, 2)
	assert.Equal(t, "young-1", results[0].CandidateID)
	assert.Equal(t, 50.0, results[0].Score)
	assert.Equal(t, "young-2", results[1].CandidateID)
	assert.Equal(t, 0.0, results[1].Score)

	rec = api.do(http.MethodGet, "/v1/users/elder-1/matches", "elder-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/v1/users/elder-1/matches", "young-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_ScoreProfiles(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/v1/matches/score", "elder-1", map[string]any{
		"target": map[string]any{"id": "t", "interests": []string{"Cooking", "Gardening", "Reading"}},
		"candidates": []map[string]any{
			{"id": "a", "interests": []string{"cooking"}},
			{"id": "b", "interests": []string{"gardening", "reading", "cooking"}},
		},
		"topK": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	results := decode[matchesResponse](t, rec).Matches
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].CandidateID)
	assert.Equal(t, 100.0, results[0].Score)

	rec = api.do(http.MethodPost, "/v1/matches/score", "elder-1", map[string]any{
		"target":     map[string]any{"id": "t"},
		"candidates": []map[string]any{{"interests": []string{"x"}}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[errorBody](t, rec).Code)
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"up"`)

	rec = api.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthHandler_Degraded(t *testing.T) {
	handler := NewHealthHandler(map[string]Pinger{
		"database": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return errors.New("dial tcp: refused") },
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"down"`)
	assert.NotContains(t, rec.Body.String(), "refused")
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, []int{1, 2}, page(items, PaginationParams{Limit: 2}))
	assert.Equal(t, []int{4, 5}, page(items, PaginationParams{Limit: 10, Offset: 3}))
	assert.Equal(t, []int{}, page(items, PaginationParams{Limit: 10, Offset: 9}))
}
