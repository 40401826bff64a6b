package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/graham/backend/internal/domain/billing"
	"github.com/graham/backend/internal/domain/shared"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"
)

const (
	webhookEventKeyPrefix = "stripe:event:"
	defaultWebhookDedupe  = 72 * time.Hour
)

// StripeWebhookService keeps the subscription mirror current from Stripe webhook events
type StripeWebhookService struct {
	webhookSecret    string
	subscriptionRepo billing.SubscriptionRepository
	catalog          *billing.PlanCatalog
	stripe           StripeGateway
	dedupe           shared.IdempotencyStore
	dedupeTTL        time.Duration
	logger           *zap.Logger
	nowFunc          func() time.Time
}

// StripeWebhookServiceConfig contains configuration for StripeWebhookService.
// Stripe, Dedupe and Catalog are optional.
type StripeWebhookServiceConfig struct {
	WebhookSecret    string
	SubscriptionRepo billing.SubscriptionRepository
	Catalog          *billing.PlanCatalog
	Stripe           StripeGateway
	Dedupe           shared.IdempotencyStore
	DedupeTTL        time.Duration
	Logger           *zap.Logger
}

// NewStripeWebhookService creates a new StripeWebhookService
func NewStripeWebhookService(cfg StripeWebhookServiceConfig) *StripeWebhookService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.DedupeTTL
	if ttl <= 0 {
		ttl = defaultWebhookDedupe
	}
	return &StripeWebhookService{
		webhookSecret:    cfg.WebhookSecret,
		subscriptionRepo: cfg.SubscriptionRepo,
		catalog:          cfg.Catalog,
		stripe:           cfg.Stripe,
		dedupe:           cfg.Dedupe,
		dedupeTTL:        ttl,
		logger:           logger,
		nowFunc:          time.Now,
	}
}

// WebhookResult contains the result of processing a webhook
type WebhookResult struct {
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	Processed bool   `json:"processed"`
	Message   string `json:"message,omitempty"`
}

// ProcessWebhook verifies and applies a Stripe webhook event
func (s *StripeWebhookService) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		s.logger.Warn("Failed to verify webhook signature", zap.Error(err))
		return nil, shared.NewValidationError("invalid webhook signature").WithCause(err)
	}

	log := s.logger.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	result := &WebhookResult{
		EventID:   event.ID,
		EventType: string(event.Type),
		Processed: true,
	}

	if first := s.claimEvent(ctx, event.ID); !first {
		log.Info("Duplicate webhook event ignored")
		result.Processed = false
		result.Message = "Duplicate event"
		return result, nil
	}

	log.Info("Processing Stripe webhook event")

	switch event.Type {
	case "checkout.session.completed":
		err = s.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.updated":
		err = s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		err = s.handleSubscriptionDeleted(ctx, event)
	default:
		log.Debug("Unhandled webhook event type")
		result.Processed = false
		result.Message = "Event type not handled"
	}

	if err != nil {
		log.Error("Failed to process webhook event", zap.Error(err))
		s.releaseEvent(ctx, event.ID)
		result.Processed = false
		result.Message = err.Error()
		return result, err
	}

	return result, nil
}

// handleCheckoutCompleted links the checkout's customer and subscription to the user
func (s *StripeWebhookService) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return shared.NewValidationError("malformed checkout session").WithCause(err)
	}

	userID := session.ClientReferenceID
	if userID == "" {
		userID = session.Metadata["userId"]
	}
	if userID == "" {
		s.logger.Warn("Checkout session has no user reference, skipping",
			zap.String("session_id", session.ID))
		return nil
	}

	active := billing.SubscriptionStatusActive
	update := billing.SubscriptionUpdate{SubscriptionStatus: &active}
	if session.Customer != nil && session.Customer.ID != "" {
		update.StripeCustomerID = &session.Customer.ID
	}
	if session.Subscription != nil && session.Subscription.ID != "" {
		update.StripeSubscriptionID = &session.Subscription.ID
		if err := s.enrichFromStripe(ctx, session.Subscription.ID, &update); err != nil {
			return err
		}
	}

	sub, err := s.subscriptionRepo.FindByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("failed to find subscription: %w", err)
		}
		if sub, err = billing.NewSubscription(userID); err != nil {
			return err
		}
	}

	return s.apply(ctx, sub, update)
}

// handleSubscriptionUpdated mirrors price, period end, status, cancellation and plan name
func (s *StripeWebhookService) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var subscription stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return shared.NewValidationError("malformed subscription").WithCause(err)
	}

	sub, err := s.findMirror(ctx, &subscription)
	if err != nil || sub == nil {
		return err
	}

	status := billing.SubscriptionStatus(subscription.Status)
	update := billing.SubscriptionUpdate{
		StripeSubscriptionID: &subscription.ID,
		SubscriptionStatus:   &status,
	}
	if subscription.CurrentPeriodEnd > 0 {
		end := time.Unix(subscription.CurrentPeriodEnd, 0).UTC()
		update.StripeCurrentPeriodEnd = &end
	}
	if subscription.CancelAt > 0 {
		at := time.Unix(subscription.CancelAt, 0).UTC()
		update.SubscriptionCancelAt = &at
	} else {
		update.ClearCancelAt = true
	}
	if subscription.Items != nil && len(subscription.Items.Data) > 0 && subscription.Items.Data[0].Price != nil {
		price := subscription.Items.Data[0].Price
		update.StripePriceID = &price.ID
		if name := s.planName(price); name != "" {
			update.SubscriptionName = &name
		}
	}

	return s.apply(ctx, sub, update)
}

// handleSubscriptionDeleted deactivates the mirror and clears its subscription and price
func (s *StripeWebhookService) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var subscription stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return shared.NewValidationError("malformed subscription").WithCause(err)
	}

	sub, err := s.findMirror(ctx, &subscription)
	if err != nil || sub == nil {
		return err
	}

	inactive := billing.SubscriptionStatusInactive
	return s.apply(ctx, sub, billing.SubscriptionUpdate{
		SubscriptionStatus:  &inactive,
		ClearSubscriptionID: true,
		ClearPriceID:        true,
	})
}

// findMirror locates the local row by customer id, then by subscription id.
// Unknown customers are acknowledged so Stripe stops retrying.
func (s *StripeWebhookService) findMirror(ctx context.Context, subscription *stripe.Subscription) (*billing.Subscription, error) {
	var (
		sub *billing.Subscription
		err error = shared.ErrNotFound
	)
	if subscription.Customer != nil && subscription.Customer.ID != "" {
		sub, err = s.subscriptionRepo.FindByCustomerID(ctx, subscription.Customer.ID)
	}
	if errors.Is(err, shared.ErrNotFound) && subscription.ID != "" {
		sub, err = s.subscriptionRepo.FindBySubscriptionID(ctx, subscription.ID)
	}
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("No local subscription for Stripe subscription",
				zap.String("subscription_id", subscription.ID))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return sub, nil
}

// enrichFromStripe fills price and period end from the live subscription
func (s *StripeWebhookService) enrichFromStripe(ctx context.Context, subscriptionID string, update *billing.SubscriptionUpdate) error {
	if s.stripe == nil {
		return nil
	}
	details, err := s.stripe.GetSubscriptionDetails(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if details.PriceID != "" {
		update.StripePriceID = &details.PriceID
		if s.catalog != nil {
			if plan, ok := s.catalog.ByPriceID(details.PriceID); ok {
				update.SubscriptionName = &plan.Name
			}
		}
	}
	if !details.CurrentPeriodEnd.IsZero() {
		end := details.CurrentPeriodEnd
		update.StripeCurrentPeriodEnd = &end
	}
	return nil
}

func (s *StripeWebhookService) planName(price *stripe.Price) string {
	if s.catalog != nil {
		if plan, ok := s.catalog.ByPriceID(price.ID); ok {
			return plan.Name
		}
	}
	return price.Nickname
}

func (s *StripeWebhookService) apply(ctx context.Context, sub *billing.Subscription, update billing.SubscriptionUpdate) error {
	if err := sub.Apply(update, s.nowFunc()); err != nil {
		return err
	}
	if err := s.subscriptionRepo.Save(ctx, sub); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	s.logger.Info("Subscription mirror updated",
		zap.String("user_id", sub.UserID),
		zap.Bool("subscribed", sub.IsSubscribed(s.nowFunc())))
	return nil
}

// claimEvent reports whether this delivery is the first for eventID
func (s *StripeWebhookService) claimEvent(ctx context.Context, eventID string) bool {
	if s.dedupe == nil || eventID == "" {
		return true
	}
	claimed, err := s.dedupe.Claim(ctx, webhookEventKeyPrefix+eventID, s.dedupeTTL)
	if err != nil {
		s.logger.Warn("Webhook dedupe store unavailable", zap.String("event_id", eventID), zap.Error(err))
		return true
	}
	return claimed
}

func (s *StripeWebhookService) releaseEvent(ctx context.Context, eventID string) {
	if s.dedupe == nil || eventID == "" {
		return
	}
	if err := s.dedupe.Release(ctx, webhookEventKeyPrefix+eventID); err != nil {
		s.logger.Warn("Failed to release webhook event", zap.String("event_id", eventID), zap.Error(err))
	}
}
