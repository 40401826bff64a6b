package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/graham/backend/internal/domain/agent"
	"github.com/graham/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAgentRepository struct {
	mock.Mock
}

func (m *MockAgentRepository) FindByID(ctx context.Context, id uuid.UUID) (*agent.Agent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*agent.Agent), args.Error(1)
}

func (m *MockAgentRepository) FindByIDForUser(ctx context.Context, userID string, id uuid.UUID) (*agent.Agent, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*agent.Agent), args.Error(1)
}

func (m *MockAgentRepository) Save(ctx context.Context, a *agent.Agent) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func strPtr(s string) *string { return &s }

func TestAgentService_Update(t *testing.T) {
	a, err := agent.NewAgent("user_1", "Front desk")
	require.NoError(t, err)
	a.VoiceID = "voice_old"

	repo := new(MockAgentRepository)
	repo.On("FindByIDForUser", mock.Anything, "user_1", a.ID).Return(a, nil)
	repo.On("Save", mock.Anything, a).Return(nil)
	svc := NewAgentService(repo, nil)
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	svc.nowFunc = func() time.Time { return now }

	resp, err := svc.Update(context.Background(), "user_1", a.ID.String(), UpdateAgentRequest{
		SystemPrompt: strPtr("You answer the phone for a bakery."),
		VoiceName:    strPtr("Ava"),
	})

	require.NoError(t, err)
	assert.Equal(t, "You answer the phone for a bakery.", resp.SystemPrompt)
	assert.Equal(t, "Ava", resp.VoiceName)
	assert.Equal(t, "voice_old", resp.VoiceID)
	assert.Equal(t, now, resp.UpdatedAt)
	repo.AssertExpectations(t)
}

func TestAgentService_Update_EmptyUpdate(t *testing.T) {
	repo := new(MockAgentRepository)
	svc := NewAgentService(repo, nil)

	_, err := svc.Update(context.Background(), "user_1", uuid.NewString(), UpdateAgentRequest{})

	assert.Equal(t, shared.CodeValidation, shared.CodeOf(err))
	repo.AssertNotCalled(t, "FindByIDForUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestAgentService_Update_NotOwned(t *testing.T) {
	id := uuid.New()
	repo := new(MockAgentRepository)
	repo.On("FindByIDForUser", mock.Anything, "user_2", id).Return(nil, shared.ErrNotFound)
	svc := NewAgentService(repo, nil)

	_, err := svc.Update(context.Background(), "user_2", id.String(), UpdateAgentRequest{VoiceID: strPtr("v1")})

	assert.ErrorIs(t, err, shared.ErrNotFound)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestAgentService_Update_InvalidInput(t *testing.T) {
	svc := NewAgentService(new(MockAgentRepository), nil)

	_, err := svc.Update(context.Background(), "", uuid.NewString(), UpdateAgentRequest{VoiceID: strPtr("v1")})
	assert.Equal(t, shared.CodeUnauthorized, shared.CodeOf(err))

	_, err = svc.Update(context.Background(), "user_1", "not-a-uuid", UpdateAgentRequest{VoiceID: strPtr("v1")})
	assert.Equal(t, shared.CodeValidation, shared.CodeOf(err))

	_, err = svc.Update(context.Background(), "user_1", uuid.NewString(), UpdateAgentRequest{VoiceID: strPtr("  ")})
	assert.Equal(t, shared.CodeValidation, shared.CodeOf(err))
}

func TestAgentService_Update_SaveFailure(t *testing.T) {
	a, err := agent.NewAgent("user_1", "Front desk")
	require.NoError(t, err)
	repo := new(MockAgentRepository)
	repo.On("FindByIDForUser", mock.Anything, "user_1", a.ID).Return(a, nil)
	repo.On("Save", mock.Anything, a).Return(shared.NewPersistenceError("save agent", errors.New("down")))

	_, err = NewAgentService(repo, nil).Update(context.Background(), "user_1", a.ID.String(), UpdateAgentRequest{VoiceID: strPtr("v2")})

	assert.Equal(t, shared.CodePersistence, shared.CodeOf(err))
}
