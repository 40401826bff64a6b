package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/graham/backend/internal/domain/agent"
	"github.com/graham/backend/internal/domain/billing"
	"github.com/graham/backend/internal/domain/shared"
	"github.com/graham/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultIdempotencyTTL = 24 * time.Hour

// RecordUsageInput is one call-end usage event
type RecordUsageInput struct {
	UserID          string
	AgentID         string
	DurationSeconds decimal.Decimal
	IdempotencyKey  string
}

// UsageRecorder writes usage records to the ledger
type UsageRecorder struct {
	usageRepo             billing.UsageRecordRepository
	agentRepo             agent.Repository
	idempotency           shared.IdempotencyStore
	metrics               *telemetry.BillingMetrics
	logger                *zap.Logger
	requireIdempotencyKey bool
	idempotencyTTL        time.Duration
	nowFunc               func() time.Time
}

// UsageRecorderConfig contains the dependencies and settings of UsageRecorder.
// AgentRepo, Idempotency and Metrics are optional.
type UsageRecorderConfig struct {
	UsageRepo             billing.UsageRecordRepository
	AgentRepo             agent.Repository
	Idempotency           shared.IdempotencyStore
	Metrics               *telemetry.BillingMetrics
	Logger                *zap.Logger
	RequireIdempotencyKey bool
	IdempotencyTTL        time.Duration
}

// NewUsageRecorder creates a new UsageRecorder
func NewUsageRecorder(cfg UsageRecorderConfig) *UsageRecorder {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &UsageRecorder{
		usageRepo:             cfg.UsageRepo,
		agentRepo:             cfg.AgentRepo,
		idempotency:           cfg.Idempotency,
		metrics:               cfg.Metrics,
		logger:                logger,
		requireIdempotencyKey: cfg.RequireIdempotencyKey,
		idempotencyTTL:        ttl,
		nowFunc:               time.Now,
	}
}

// RecordUsage validates a usage event and persists it as an unbilled record.
// When an idempotency key is replayed the existing record is returned.
func (s *UsageRecorder) RecordUsage(ctx context.Context, in RecordUsageInput) (*billing.UsageRecord, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, shared.NewAuthError("user is not authenticated")
	}
	agentID, err := parseAgentID(in.AgentID)
	if err != nil {
		return nil, err
	}

	record, err := billing.NewUsageRecord(in.UserID, agentID, in.DurationSeconds, s.nowFunc())
	if err != nil {
		return nil, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" && s.requireIdempotencyKey {
		return nil, shared.NewValidationError("idempotencyKey is required")
	}
	if key != "" {
		if err := record.WithIdempotencyKey(key); err != nil {
			return nil, err
		}
	}

	if err := s.checkAgentOwnership(ctx, in.UserID, agentID); err != nil {
		return nil, err
	}

	if key != "" {
		existing, claimed, claimErr := s.claimKey(ctx, in.UserID, key)
		if claimErr != nil {
			return nil, claimErr
		}
		if existing != nil {
			return existing, nil
		}
		if claimed {
			defer func() {
				if err != nil {
					s.releaseKey(ctx, in.UserID, key)
				}
			}()
		}
	}

	if err = s.usageRepo.Save(ctx, record); err != nil {
		if key != "" && errors.Is(err, shared.ErrAlreadyExists) {
			existing, findErr := s.usageRepo.FindByIdempotencyKey(ctx, in.UserID, key)
			if findErr == nil {
				err = nil
				return existing, nil
			}
		}
		s.logger.Error("Failed to save usage record",
			zap.String("user_id", in.UserID),
			zap.String("agent_id", agentID.String()),
			zap.Error(err))
		if shared.CodeOf(err) == "" {
			err = shared.NewPersistenceError("failed to save usage record", err)
		}
		return nil, err
	}

	s.metrics.RecordUsage(ctx, record.MinutesUsed)
	s.logger.Info("Usage recorded",
		zap.String("usage_record_id", record.ID.String()),
		zap.String("user_id", record.UserID),
		zap.String("agent_id", agentID.String()),
		zap.String("seconds_used", record.SecondsUsed.String()),
		zap.Int64("minutes_used", record.MinutesUsed))

	return record, nil
}

// claimKey reserves the idempotency key in the fast-path store. A lost claim
// resolves to the stored record, or a conflict while the winner is still writing.
func (s *UsageRecorder) claimKey(ctx context.Context, userID, key string) (*billing.UsageRecord, bool, error) {
	if s.idempotency == nil {
		return nil, false, nil
	}

	claimed, err := s.idempotency.Claim(ctx, usageClaimKey(userID, key), s.idempotencyTTL)
	if err != nil {
		// The unique index still enforces the key
		s.logger.Warn("Idempotency store unavailable, relying on database constraint",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, false, nil
	}
	if claimed {
		return nil, true, nil
	}

	existing, err := s.usageRepo.FindByIdempotencyKey(ctx, userID, key)
	if err == nil {
		s.logger.Debug("Replayed usage idempotency key",
			zap.String("user_id", userID),
			zap.String("usage_record_id", existing.ID.String()))
		return existing, false, nil
	}
	if errors.Is(err, shared.ErrNotFound) {
		return nil, false, shared.ErrConflict.WithCause(errors.New("usage with this idempotency key is being recorded"))
	}
	return nil, false, err
}

func (s *UsageRecorder) releaseKey(ctx context.Context, userID, key string) {
	if err := s.idempotency.Release(ctx, usageClaimKey(userID, key)); err != nil {
		s.logger.Warn("Failed to release usage idempotency key",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

func (s *UsageRecorder) checkAgentOwnership(ctx context.Context, userID string, agentID uuid.UUID) error {
	if s.agentRepo == nil {
		return nil
	}
	if _, err := s.agentRepo.FindByIDForUser(ctx, userID, agentID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NewValidationError("agentId does not belong to the caller")
		}
		return err
	}
	return nil
}

func parseAgentID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, shared.NewValidationError("agentId is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, shared.NewValidationError("agentId must be a valid UUID")
	}
	return id, nil
}

func usageClaimKey(userID, key string) string {
	return "usage:" + userID + ":" + key
}
