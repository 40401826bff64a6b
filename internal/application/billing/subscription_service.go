package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/graham/backend/internal/domain/billing"
	"github.com/graham/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// SubscriptionStatus is the caller facing view of a user's subscription
type SubscriptionStatus struct {
	IsSubscribed           bool          `json:"isSubscribed"`
	IsCanceled             bool          `json:"isCanceled"`
	Plan                   *billing.Plan `json:"plan,omitempty"`
	StripeCurrentPeriodEnd *time.Time    `json:"stripeCurrentPeriodEnd,omitempty"`
	StripeCustomerID       *string       `json:"stripeCustomerId,omitempty"`
	SubscriptionStatus     *string       `json:"subscriptionStatus,omitempty"`
	SubscriptionCancelAt   *time.Time    `json:"subscriptionCancelAt,omitempty"`
}

// SubscriptionService answers subscription status queries from the local mirror
type SubscriptionService struct {
	subscriptionRepo billing.SubscriptionRepository
	catalog          *billing.PlanCatalog
	stripe           StripeGateway
	logger           *zap.Logger
	nowFunc          func() time.Time
}

// NewSubscriptionService creates a new SubscriptionService. stripe may be nil,
// in which case IsCanceled is never looked up.
func NewSubscriptionService(
	subscriptionRepo billing.SubscriptionRepository,
	catalog *billing.PlanCatalog,
	stripe StripeGateway,
	logger *zap.Logger,
) *SubscriptionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionService{
		subscriptionRepo: subscriptionRepo,
		catalog:          catalog,
		stripe:           stripe,
		logger:           logger,
		nowFunc:          time.Now,
	}
}

// Status returns the subscription status of userID. Users without a mirror row
// are reported as not subscribed.
func (s *SubscriptionService) Status(ctx context.Context, userID string) (*SubscriptionStatus, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, shared.NewAuthError("user is not authenticated")
	}

	sub, err := s.subscriptionRepo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return &SubscriptionStatus{}, nil
		}
		return nil, err
	}

	status := &SubscriptionStatus{
		IsSubscribed:           sub.IsSubscribed(s.nowFunc()),
		StripeCurrentPeriodEnd: sub.StripeCurrentPeriodEnd,
		StripeCustomerID:       sub.StripeCustomerID,
		SubscriptionCancelAt:   sub.SubscriptionCancelAt,
	}
	if sub.SubscriptionStatus != nil {
		v := string(*sub.SubscriptionStatus)
		status.SubscriptionStatus = &v
	}
	if s.catalog != nil {
		if plan, ok := s.catalog.Resolve(sub); ok {
			status.Plan = &plan
		}
	}

	if status.IsSubscribed && s.stripe != nil && sub.HasStripeSubscription() {
		details, err := s.stripe.GetSubscriptionDetails(ctx, *sub.StripeSubscriptionID)
		if err != nil {
			s.logger.Warn("Failed to look up cancellation state",
				zap.String("user_id", userID),
				zap.String("subscription_id", *sub.StripeSubscriptionID),
				zap.Error(err))
		} else {
			status.IsCanceled = details.CancelAtPeriodEnd
		}
	}

	return status, nil
}
