// Package agent holds the AI phone agent owned by a user. The billing core
// only refers to agents by id; configuration lives here.
package agent

import (
	"strings"
	"time"

	"github.com/graham/backend/internal/domain/shared"
)

const (
	maxSystemPromptLength = 20000
	maxVoiceFieldLength   = 255
)

// Agent is an AI phone agent belonging to exactly one user
type Agent struct {
	shared.BaseEntity
	UserID       string
	Name         string
	SystemPrompt string
	VoiceID      string
	VoiceName    string
	PhoneNumber  string
}

// NewAgent creates an agent for a user
func NewAgent(userID, name string) (*Agent, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, shared.NewValidationError("userId is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewValidationError("name is required")
	}
	return &Agent{
		BaseEntity: shared.NewBaseEntity(),
		UserID:     userID,
		Name:       strings.TrimSpace(name),
	}, nil
}

// IsOwnedBy returns true if userID owns the agent
func (a *Agent) IsOwnedBy(userID string) bool {
	return a != nil && a.UserID == userID
}

// Update is an explicit partial update of an agent's configuration.
// Nil fields are left untouched.
type Update struct {
	SystemPrompt *string
	VoiceID      *string
	VoiceName    *string
}

// IsEmpty returns true if the update changes nothing
func (u Update) IsEmpty() bool {
	return u.SystemPrompt == nil && u.VoiceID == nil && u.VoiceName == nil
}

// Validate checks field bounds before persistence
func (u Update) Validate() error {
	if u.IsEmpty() {
		return shared.NewValidationError("at least one field is required")
	}
	if u.SystemPrompt != nil && len(*u.SystemPrompt) > maxSystemPromptLength {
		return shared.NewValidationError("systemPrompt is too long")
	}
	if u.VoiceID != nil {
		if strings.TrimSpace(*u.VoiceID) == "" {
			return shared.NewValidationError("voiceId cannot be blank")
		}
		if len(*u.VoiceID) > maxVoiceFieldLength {
			return shared.NewValidationError("voiceId is too long")
		}
	}
	if u.VoiceName != nil && len(*u.VoiceName) > maxVoiceFieldLength {
		return shared.NewValidationError("voiceName is too long")
	}
	return nil
}

// Apply validates u and writes it onto the agent
func (a *Agent) Apply(u Update, now time.Time) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if u.SystemPrompt != nil {
		a.SystemPrompt = *u.SystemPrompt
	}
	if u.VoiceID != nil {
		a.VoiceID = strings.TrimSpace(*u.VoiceID)
	}
	if u.VoiceName != nil {
		a.VoiceName = *u.VoiceName
	}
	a.Touch(now)
	return nil
}
