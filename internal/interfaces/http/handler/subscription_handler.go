package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	billingapp "github.com/graham/backend/internal/application/billing"
)

// SubscriptionReader answers subscription status queries
type SubscriptionReader interface {
	Status(ctx context.Context, userID string) (*billingapp.SubscriptionStatus, error)
}

// SubscriptionHandler serves the caller's subscription status
type SubscriptionHandler struct {
	BaseHandler
	subscriptions SubscriptionReader
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(subscriptions SubscriptionReader) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions}
}

// GetSubscription handles GET /billing/subscription
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	user := userID(c)
	if user == "" {
		h.Unauthorized(c)
		return
	}
	status, err := h.subscriptions.Status(c.Request.Context(), user)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}
