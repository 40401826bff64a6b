package agent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/graham/backend/internal/domain/agent"
	"github.com/graham/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// AgentService applies configuration changes to a user's agents
type AgentService struct {
	repo    agent.Repository
	logger  *zap.Logger
	nowFunc func() time.Time
}

// NewAgentService creates a new AgentService
func NewAgentService(repo agent.Repository, logger *zap.Logger) *AgentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentService{repo: repo, logger: logger, nowFunc: time.Now}
}

// Update applies req to the agent identified by agentID. Agents owned by
// another user are reported as not found.
func (s *AgentService) Update(ctx context.Context, userID, agentID string, req UpdateAgentRequest) (*AgentResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, shared.NewAuthError("user is not authenticated")
	}
	id, err := uuid.Parse(strings.TrimSpace(agentID))
	if err != nil {
		return nil, shared.NewValidationError("agent id must be a valid UUID")
	}

	update := req.ToUpdate()
	if err := update.Validate(); err != nil {
		return nil, err
	}

	a, err := s.repo.FindByIDForUser(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := a.Apply(update, s.nowFunc()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, a); err != nil {
		s.logger.Error("Failed to save agent",
			zap.String("agent_id", id.String()),
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Agent updated",
		zap.String("agent_id", id.String()),
		zap.String("user_id", userID))

	resp := ToAgentResponse(a)
	return &resp, nil
}
