package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/graham/backend/internal/domain/agent"
	"github.com/graham/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// AgentRepository implements agent.Repository on GORM
type AgentRepository struct {
	db *gorm.DB
}

// NewAgentRepository creates a new agent repository
func NewAgentRepository(db *gorm.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// FindByID retrieves an agent by its ID
func (r *AgentRepository) FindByID(ctx context.Context, id uuid.UUID) (*agent.Agent, error) {
	var model models.AgentModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, wrapDBError("find agent", err)
	}
	return model.ToDomain(), nil
}

// FindByIDForUser retrieves an agent only when userID owns it
func (r *AgentRepository) FindByIDForUser(ctx context.Context, userID string, id uuid.UUID) (*agent.Agent, error) {
	var model models.AgentModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&model).Error
	if err != nil {
		return nil, wrapDBError("find agent", err)
	}
	return model.ToDomain(), nil
}

// Save inserts or updates an agent
func (r *AgentRepository) Save(ctx context.Context, a *agent.Agent) error {
	return wrapDBError("save agent", r.db.WithContext(ctx).Save(models.AgentModelFromDomain(a)).Error)
}
