package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/generations-connect/connect-server-go/internal/errors"
	"github.com/generations-connect/connect-server-go/internal/model"
	"github.com/generations-connect/connect-server-go/internal/service"
)

type MatchHandler struct {
	matches *service.MatchService
}

func NewMatchHandler(matches *service.MatchService) *MatchHandler {
	return &MatchHandler{matches: matches}
}

func (h *MatchHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.FindMine)
	r.Post("/score", h.Score)

	return r
}

type matchesResponse struct {
	Matches []model.MatchResult `json:"matches"`
}

type scoreRequest struct {
	Target     model.MatchProfile   `json:"target" validate:"required"`
	Candidates []model.MatchProfile `json:"candidates" validate:"required,min=1,max=200,dive"`
	TopK       int                  `json:"topK" validate:"omitempty,min=1"`
}

// GET /v1/matches?topK=
func (h *MatchHandler) FindMine(w http.ResponseWriter, r *http.Request) {
	h.find(w, r, actorID(r))
}

// GET /v1/users/{userID}/matches
func (h *MatchHandler) FindForUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID != actorID(r) {
		writeError(w, apperrors.Forbidden("matches can only be requested for yourself"))
		return
	}
	h.find(w, r, userID)
}

func (h *MatchHandler) find(w http.ResponseWriter, r *http.Request, targetID string) {
	topK, err := parseTopK(r)
	if err != nil {
		writeError(w, err)
		return
	}

	results, err := h.matches.FindMatches(r.Context(), targetID, topK)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matchesResponse{Matches: results})
}

// POST /v1/matches/score
func (h *MatchHandler) Score(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	results, err := h.matches.ScoreProfiles(r.Context(), req.Target, req.Candidates, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matchesResponse{Matches: results})
}

func parseTopK(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("topK")
	if raw == "" {
		return 0, nil
	}
	topK, err := strconv.Atoi(raw)
	if err != nil || topK < 1 {
		return 0, apperrors.BadRequest("topK must be a positive integer")
	}
	return topK, nil
}
