package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	billingapp "github.com/graham/backend/internal/application/billing"
	"github.com/graham/backend/internal/domain/shared"
	"github.com/graham/backend/internal/infrastructure/logger"
	"github.com/graham/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Stripe webhooks are small; anything larger is not from Stripe
const maxWebhookPayloadSize = 64 << 10

// WebhookProcessor verifies and applies a Stripe event
type WebhookProcessor interface {
	ProcessWebhook(ctx context.Context, payload []byte, signature string) (*billingapp.WebhookResult, error)
}

// StripeWebhookHandler receives Stripe webhook deliveries. The route is not
// authenticated; the Stripe-Signature header is the credential.
type StripeWebhookHandler struct {
	BaseHandler
	processor WebhookProcessor
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler
func NewStripeWebhookHandler(processor WebhookProcessor) *StripeWebhookHandler {
	return &StripeWebhookHandler{processor: processor}
}

// HandleStripeWebhook handles POST /webhooks/stripe. Signature failures are
// 400. Processing failures are 500 so Stripe redelivers the event.
func (h *StripeWebhookHandler) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadSize+1))
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}
	if len(payload) > maxWebhookPayloadSize {
		h.Fail(c, dto.ErrCodeRequestTooLarge, "Payload too large")
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		h.BadRequest(c, "Missing Stripe-Signature header")
		return
	}

	result, err := h.processor.ProcessWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		var domainErr *shared.DomainError
		if result == nil && errors.As(err, &domainErr) && domainErr.Code == shared.CodeValidation {
			h.BadRequest(c, "Webhook signature verification failed")
			return
		}
		logger.GetGinLogger(c).Error("Stripe webhook processing failed", zap.Error(err))
		h.Fail(c, dto.ErrCodeInternal, dto.InternalErrorMessage)
		return
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(result))
}
