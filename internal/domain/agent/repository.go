package agent

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists agents
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Agent, error)

	// FindByIDForUser returns shared.ErrNotFound when the agent does not exist
	// or belongs to another user
	FindByIDForUser(ctx context.Context, userID string, id uuid.UUID) (*Agent, error)

	Save(ctx context.Context, agent *Agent) error
}
