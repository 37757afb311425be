package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/generations-connect/connect-server-go/internal/model"
	"github.com/generations-connect/connect-server-go/internal/service"
)

type SessionHandler struct {
	sessions *service.SessionService
}

func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/{sessionID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/begin", h.Begin)
		r.Post("/end", h.End)
		r.Post("/rating", h.Rate)
		r.Post("/cancel", h.Cancel)
		r.Post("/missed", h.MarkMissed)
		r.Route("/video", func(r chi.Router) {
			r.Post("/start", h.StartVideo)
			r.Post("/confirm", h.ConfirmVideo)
			r.Post("/end", h.EndVideo)
			r.Post("/fail", h.FailVideo)
		})
	})

	return r
}

type endSessionRequest struct {
	Rating       *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Feedback     *string `json:"feedback" validate:"omitempty,max=2000"`
	VideoQuality *string `json:"videoQuality"`
}

type rateSessionRequest struct {
	Rating   int     `json:"rating" validate:"required,min=1,max=5"`
	Feedback *string `json:"feedback" validate:"omitempty,max=2000"`
}

type endVideoRequest struct {
	Quality *string `json:"quality"`
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

func quality(raw *string) *model.VideoQuality {
	if raw == nil {
		return nil
	}
	q := model.VideoQuality(*raw)
	return &q
}

// writeSession writes the result of a session operation.
func writeSession(w http.ResponseWriter, session *model.Session, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// GET /v1/sessions/{sessionID}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(r.Context(), actorID(r), sessionID(r))
	writeSession(w, session, err)
}

// POST /v1/sessions/{sessionID}/begin
func (h *SessionHandler) Begin(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Begin(r.Context(), actorID(r), sessionID(r))
	writeSession(w, session, err)
}

// POST /v1/sessions/{sessionID}/end
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.sessions.End(r.Context(), actorID(r), sessionID(r), service.EndInput{
		Rating:       req.Rating,
		Feedback:     req.Feedback,
		VideoQuality: quality(req.VideoQuality),
	})
	writeSession(w, session, err)
}

// POST /v1/sessions/{sessionID}/rating
func (h *SessionHandler) Rate(w http.ResponseWriter, r *http.Request) {
	var req rateSessionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	session, err := h.sessions.Rate(r.Context(), actorID(r), sessionID(r), req.Rating, req.Feedback)
	writeSession(w, session, err)
}

// POST /v1/sessions/{sessionID}/cancel
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Cancel(r.Context(), actorID(r), sessionID(r))
	writeSession(w, session, err)
}

// POST /v1/sessions/{sessionID}/missed
//
// Either party, or the scheduler acting as one, may close an overdue session.
func (h *SessionHandler) MarkMissed(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessions.Get(r.Context(), actorID(r), sessionID(r)); err != nil {
		writeError(w, err)
		return
	}
	session, err := h.sessions.MarkMissed(r.Context(), sessionID(r))
	writeSession(w, session, err)
}

// POST /v1/sessions/{sessionID}/video/start
func (h *SessionHandler) StartVideo(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.StartVideo(r.Context(), actorID(r), sessionID(r))
	writeSession(w, session, err)
}

// POST /v1/sessions/{sessionID}/video/confirm
func (h *SessionHandler) ConfirmVideo(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.ConfirmVideoActive(r.Context(), actorID(r), sessionID(r))
	writeSession(w, session, err)
}

// POST /v1/sessions/{sessionID}/video/end
func (h *SessionHandler) EndVideo(w http.ResponseWriter, r *http.Request) {
	var req endVideoRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, err)
		return
	}
	session, err := h.sessions.EndVideo(r.Context(), actorID(r), sessionID(r), quality(req.Quality))
	writeSession(w, session, err)
}

// POST /v1/sessions/{sessionID}/video/fail
func (h *SessionHandler) FailVideo(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.FailVideo(r.Context(), actorID(r), sessionID(r))
	writeSession(w, session, err)
}
