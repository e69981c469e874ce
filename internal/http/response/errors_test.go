package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/buildhub/pkg/apperr"
)

func TestFromErrorMapsKinds(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", apperr.Validation("bad"), http.StatusBadRequest, CodeInvalidInput},
		{"invalid code", apperr.InvalidCode("nope"), http.StatusBadRequest, CodeInvalidCode},
		{"invalid token", apperr.InvalidToken("nope"), http.StatusUnauthorized, CodeInvalidToken},
		{"forbidden", apperr.Forbidden("no"), http.StatusForbidden, CodeForbidden},
		{"not found", apperr.NotFound("gone"), http.StatusNotFound, CodeNotFound},
		{"transition", apperr.InvalidTransition("no"), http.StatusConflict, CodeInvalidTransition},
		{"expired", apperr.Expired("late"), http.StatusGone, CodeExpiredCode},
		{"attempts", apperr.TooManyAttempts("slow down"), http.StatusTooManyRequests, CodeTooManyAttempts},
		{"wrapped", fmt.Errorf("ctx: %w", apperr.NotFound("gone")), http.StatusNotFound, CodeNotFound},
		{"custom code", apperr.Validation("taken").WithCode(CodeEmailExists), http.StatusBadRequest, CodeEmailExists},
		{"plain", errors.New("db down"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/x", nil)

			FromError(rec, req, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestFromErrorHidesInternalMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	FromError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("pq: password authentication failed"))

	assert.NotContains(t, rec.Body.String(), "password authentication")
}
