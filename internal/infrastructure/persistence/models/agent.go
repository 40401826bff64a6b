package models

import (
	"github.com/graham/backend/internal/domain/agent"
)

// AgentModel is the persistence model for a voice agent
type AgentModel struct {
	BaseModel
	UserID       string `gorm:"type:varchar(255);not null;index"`
	Name         string `gorm:"type:varchar(255);not null"`
	SystemPrompt string `gorm:"type:text"`
	VoiceID      string `gorm:"type:varchar(255)"`
	VoiceName    string `gorm:"type:varchar(255)"`
	PhoneNumber  string `gorm:"type:varchar(32)"`
}

// TableName returns the table name for GORM
func (AgentModel) TableName() string {
	return "agents"
}

// ToDomain converts the persistence model to a domain Agent
func (m *AgentModel) ToDomain() *agent.Agent {
	return &agent.Agent{
		BaseEntity:   m.BaseModel.ToDomain(),
		UserID:       m.UserID,
		Name:         m.Name,
		SystemPrompt: m.SystemPrompt,
		VoiceID:      m.VoiceID,
		VoiceName:    m.VoiceName,
		PhoneNumber:  m.PhoneNumber,
	}
}

// FromDomain populates the persistence model from a domain Agent
func (m *AgentModel) FromDomain(a *agent.Agent) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.UserID = a.UserID
	m.Name = a.Name
	m.SystemPrompt = a.SystemPrompt
	m.VoiceID = a.VoiceID
	m.VoiceName = a.VoiceName
	m.PhoneNumber = a.PhoneNumber
}

// AgentModelFromDomain creates a new persistence model from a domain Agent
func AgentModelFromDomain(a *agent.Agent) *AgentModel {
	m := &AgentModel{}
	m.FromDomain(a)
	return m
}
