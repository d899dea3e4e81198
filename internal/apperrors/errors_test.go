package apperrors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/promptvault/promptvault/internal/apperrors"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", apperrors.Validation("name", "name is required"), http.StatusBadRequest},
		{"unauthorized", apperrors.Unauthorized("invalid admin key"), http.StatusUnauthorized},
		{"not found", apperrors.NotFound("prompt not found"), http.StatusNotFound},
		{"conflict", apperrors.Conflict("concurrent modification"), http.StatusConflict},
		{"store", apperrors.Store(errors.New("connection refused")), http.StatusInternalServerError},
		{"configuration", apperrors.Configuration("ADMIN_KEY not set"), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperrors.HTTPStatus(tt.err))
		})
	}
}

func TestClientMessageHidesInternals(t *testing.T) {
	err := apperrors.Store(errors.New("pq: relation does not exist"))
	assert.Equal(t, "internal server error", apperrors.ClientMessage(err))

	err = apperrors.Validation("limit", "limit must be an integer between 1 and %d", 100)
	assert.Equal(t, "limit must be an integer between 1 and 100", apperrors.ClientMessage(err))
}

func TestKindOfSurvivesWrapping(t *testing.T) {
	inner := apperrors.Conflict("prompt was modified concurrently")
	wrapped := fmt.Errorf("append version: %w", inner)

	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(wrapped))
	assert.True(t, apperrors.IsKind(wrapped, apperrors.KindConflict))
	assert.False(t, apperrors.IsKind(wrapped, apperrors.KindNotFound))
}

func TestStoreUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := apperrors.Store(cause)
	assert.ErrorIs(t, err, cause)
}
