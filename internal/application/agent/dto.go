package agent

import (
	"time"

	"github.com/graham/backend/internal/domain/agent"
)

// UpdateAgentRequest is a partial update of an agent's configuration.
// Omitted fields are left untouched.
type UpdateAgentRequest struct {
	SystemPrompt *string `json:"systemPrompt"`
	VoiceID      *string `json:"voiceId"`
	VoiceName    *string `json:"voiceName"`
}

// ToUpdate converts the request into a domain update
func (r UpdateAgentRequest) ToUpdate() agent.Update {
	return agent.Update{
		SystemPrompt: r.SystemPrompt,
		VoiceID:      r.VoiceID,
		VoiceName:    r.VoiceName,
	}
}

// AgentResponse is the API view of an agent
type AgentResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SystemPrompt string    `json:"systemPrompt"`
	VoiceID      string    `json:"voiceId"`
	VoiceName    string    `json:"voiceName"`
	PhoneNumber  string    `json:"phoneNumber,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ToAgentResponse converts a domain agent to its API view
func ToAgentResponse(a *agent.Agent) AgentResponse {
	return AgentResponse{
		ID:           a.ID.String(),
		Name:         a.Name,
		SystemPrompt: a.SystemPrompt,
		VoiceID:      a.VoiceID,
		VoiceName:    a.VoiceName,
		PhoneNumber:  a.PhoneNumber,
		UpdatedAt:    a.UpdatedAt,
	}
}
