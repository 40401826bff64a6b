package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError(t *testing.T) {
	t.Run("message without cause", func(t *testing.T) {
		err := NewValidationError("durationInSeconds must be positive")
		assert.Equal(t, "durationInSeconds must be positive", err.Error())
		assert.Equal(t, CodeValidation, err.Code)
		assert.Nil(t, errors.Unwrap(err))
	})

	t.Run("cause is wrapped", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := NewPersistenceError("failed to save usage record", cause)

		assert.Equal(t, "failed to save usage record: connection refused", err.Error())
		assert.ErrorIs(t, err, cause)
	})

	t.Run("errors.Is matches by code", func(t *testing.T) {
		err := fmt.Errorf("lookup agent: %w", ErrNotFound)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NotErrorIs(t, err, ErrAlreadyExists)

		other := NewDomainError(CodeNotFound, "Agent not found")
		assert.ErrorIs(t, other, ErrNotFound)
	})

	t.Run("WithCause keeps code", func(t *testing.T) {
		cause := errors.New("duplicate key")
		err := ErrAlreadyExists.WithCause(cause)
		assert.Equal(t, CodeAlreadyExist, err.Code)
		assert.ErrorIs(t, err, cause)
		assert.Nil(t, ErrAlreadyExists.Cause)
	})
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", NewValidationError("bad"), CodeValidation},
		{"auth", NewAuthError("no token"), CodeUnauthorized},
		{"upstream wrapped", fmt.Errorf("stripe: %w", NewUpstreamError("usage record failed", nil)), CodeUpstream},
		{"plain error", errors.New("boom"), ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}
