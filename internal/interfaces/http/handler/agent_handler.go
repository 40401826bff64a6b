package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	agentapp "github.com/graham/backend/internal/application/agent"
	"github.com/graham/backend/internal/interfaces/http/middleware"
)

// AgentUpdater applies caller owned agent updates
type AgentUpdater interface {
	Update(ctx context.Context, userID, agentID string, req agentapp.UpdateAgentRequest) (*agentapp.AgentResponse, error)
}

// AgentHandler serves agent configuration updates
type AgentHandler struct {
	BaseHandler
	agents AgentUpdater
}

// NewAgentHandler creates a new AgentHandler
func NewAgentHandler(agents AgentUpdater) *AgentHandler {
	return &AgentHandler{agents: agents}
}

// UpdateAgent handles PATCH /agents/:id
func (h *AgentHandler) UpdateAgent(c *gin.Context) {
	user := userID(c)
	if user == "" {
		h.Unauthorized(c)
		return
	}

	var req agentapp.UpdateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, middleware.ValidationMessage(err))
		return
	}

	resp, err := h.agents.Update(c.Request.Context(), user, c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
