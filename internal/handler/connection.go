package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/generations-connect/connect-server-go/internal/model"
	"github.com/generations-connect/connect-server-go/internal/service"
)

type ConnectionHandler struct {
	connections *service.ConnectionService
	sessions    *service.SessionService
}

func NewConnectionHandler(connections *service.ConnectionService, sessions *service.SessionService) *ConnectionHandler {
	return &ConnectionHandler{connections: connections, sessions: sessions}
}

func (h *ConnectionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Route("/{connectionID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/respond", h.Respond)
		r.Post("/cancel", h.Cancel)
		r.Post("/activity", h.TouchActivity)
		r.Get("/sessions", h.ListSessions)
		r.Post("/sessions", h.Schedule)
	})

	return r
}

type createConnectionRequest struct {
	ToUserID         string   `json:"toUserId" validate:"required,max=128"`
	MatchScore       *float64 `json:"matchScore" validate:"omitempty,gte=0,lte=100"`
	MatchExplanation *string  `json:"matchExplanation" validate:"omitempty,max=2000"`
}

type respondRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

type connectionsResponse struct {
	Connections []model.Connection `json:"connections"`
}

// GET /v1/connections?status=
func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.ConnectionStatus(r.URL.Query().Get("status"))
	conns, err := h.connections.List(r.Context(), actorID(r), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, connectionsResponse{Connections: page(conns, ParsePagination(r))})
}

// POST /v1/connections
func (h *ConnectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createConnectionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.connections.Create(r.Context(), service.CreateConnectionInput{
		FromID:           actorID(r),
		ToID:             req.ToUserID,
		MatchScore:       req.MatchScore,
		MatchExplanation: req.MatchExplanation,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

// GET /v1/connections/{connectionID}
func (h *ConnectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	conn, err := h.connections.Get(r.Context(), chi.URLParam(r, "connectionID"), actorID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

// POST /v1/connections/{connectionID}/respond
func (h *ConnectionHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.connections.Respond(r.Context(), chi.URLParam(r, "connectionID"), actorID(r), *req.Accept)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

// POST /v1/connections/{connectionID}/cancel
func (h *ConnectionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	conn, err := h.connections.Cancel(r.Context(), chi.URLParam(r, "connectionID"), actorID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

// POST /v1/connections/{connectionID}/activity
func (h *ConnectionHandler) TouchActivity(w http.ResponseWriter, r *http.Request) {
	conn, err := h.connections.TouchActivity(r.Context(), chi.URLParam(r, "connectionID"), actorID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

type scheduleRequest struct {
	ActivityType        string    `json:"activityType" validate:"required"`
	ActivityTitle       *string   `json:"activityTitle" validate:"omitempty,max=200"`
	ActivityDescription *string   `json:"activityDescription" validate:"omitempty,max=2000"`
	ScheduledAt         time.Time `json:"scheduledAt" validate:"required"`
	ChatEnabled         *bool     `json:"chatEnabled"`
}

type sessionsResponse struct {
	Sessions []model.Session `json:"sessions"`
}

// GET /v1/connections/{connectionID}/sessions
func (h *ConnectionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.List(r.Context(), actorID(r), chi.URLParam(r, "connectionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: page(sessions, ParsePagination(r))})
}

// POST /v1/connections/{connectionID}/sessions
func (h *ConnectionHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.sessions.Schedule(r.Context(), actorID(r), chi.URLParam(r, "connectionID"), service.ScheduleInput{
		ActivityType:        model.ActivityType(req.ActivityType),
		ActivityTitle:       req.ActivityTitle,
		ActivityDescription: req.ActivityDescription,
		ScheduledAt:         req.ScheduledAt,
		ChatEnabled:         req.ChatEnabled,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}
