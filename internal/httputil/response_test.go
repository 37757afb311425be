package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/generations-connect/connect-server-go/internal/errors"
)

func TestStatusFromCode(t *testing.T) {
	tests := []struct {
		code apperrors.ErrorCode
		want int
	}{
		{apperrors.ErrCodeBadRequest, http.StatusBadRequest},
		{apperrors.ErrCodeMissingRequired, http.StatusBadRequest},
		{apperrors.ErrCodeUnauthorized, http.StatusUnauthorized},
		{apperrors.ErrCodeForbidden, http.StatusForbidden},
		{apperrors.ErrCodeNotFound, http.StatusNotFound},
		{apperrors.ErrCodeConflict, http.StatusConflict},
		{apperrors.ErrCodeInvalidTransition, http.StatusConflict},
		{apperrors.ErrCodePayloadTooLarge, http.StatusRequestEntityTooLarge},
		{apperrors.ErrCodeRateLimitExceeded, http.StatusTooManyRequests},
		{apperrors.ErrCodeScoringParse, http.StatusBadGateway},
		{apperrors.ErrCodeScoringUnavailable, http.StatusServiceUnavailable},
		{apperrors.ErrCodeDatabase, http.StatusInternalServerError},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFromCode(tt.code))
		})
	}
}

func TestWriteError(t *testing.T) {
	t.Run("app error keeps details", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, apperrors.InvalidTransition("session", "completed", "in_progress"))

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body struct {
			Error   string            `json:"error"`
			Code    string            `json:"code"`
			Details map[string]string `json:"details"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "INVALID_TRANSITION", body.Code)
		assert.Equal(t, "completed", body.Details["current"])
		assert.Equal(t, "in_progress", body.Details["requested"])
	})

	t.Run("plain error is internal", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, errors.New("boom"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "boom")
	})
}
