package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	billingapp "github.com/graham/backend/internal/application/billing"
	"github.com/graham/backend/internal/domain/billing"
	"github.com/graham/backend/internal/infrastructure/logger"
	"github.com/graham/backend/internal/interfaces/http/dto"
	"github.com/graham/backend/internal/interfaces/http/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader may carry the idempotency key instead of the body
const IdempotencyKeyHeader = "Idempotency-Key"

// UsageRecorder records call usage. *billingapp.UsageRecorder satisfies it.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, in billingapp.RecordUsageInput) (*billing.UsageRecord, error)
}

// UsageReader reads unbilled usage. *billingapp.UsageAggregator satisfies it.
type UsageReader interface {
	UnbilledUsage(ctx context.Context, userID string, periodEnd time.Time) (billing.UsageSummary, error)
}

// UsageHandler serves the usage endpoints
type UsageHandler struct {
	BaseHandler
	recorder UsageRecorder
	reader   UsageReader
	nowFunc  func() time.Time
}

// NewUsageHandler creates a new UsageHandler
func NewUsageHandler(recorder UsageRecorder, reader UsageReader) *UsageHandler {
	return &UsageHandler{recorder: recorder, reader: reader, nowFunc: time.Now}
}

// RecordUsageRequest is the body of POST /usage
type RecordUsageRequest struct {
	AgentID           string          `json:"agentId" binding:"required"`
	DurationInSeconds decimal.Decimal `json:"durationInSeconds"`
	IdempotencyKey    string          `json:"idempotencyKey" binding:"omitempty,max=255"`
}

// UnbilledUsageResponse is the caller's unbilled usage up to periodEnd
type UnbilledUsageResponse struct {
	PeriodEnd    time.Time       `json:"periodEnd"`
	TotalMinutes int64           `json:"totalMinutes"`
	TotalSeconds decimal.Decimal `json:"totalSeconds"`
	RecordCount  int             `json:"recordCount"`
}

// RecordUsage handles POST /usage. It answers {success:true} on success;
// any failure that is not the caller's fault is reported as a bare 500.
func (h *UsageHandler) RecordUsage(c *gin.Context) {
	user := userID(c)
	if user == "" {
		h.Unauthorized(c)
		return
	}

	var req RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, middleware.ValidationMessage(err))
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader(IdempotencyKeyHeader)
	}

	record, err := h.recorder.RecordUsage(c.Request.Context(), billingapp.RecordUsageInput{
		UserID:          user,
		AgentID:         req.AgentID,
		DurationSeconds: req.DurationInSeconds,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		status, resp := dto.ErrorFromDomain(err)
		if status >= http.StatusInternalServerError {
			logger.GetGinLogger(c).Error("Failed to record usage", zap.Error(err))
			h.Fail(c, dto.ErrCodeInternal, dto.InternalErrorMessage)
			return
		}
		c.JSON(status, resp.WithRequestID(requestID(c)))
		return
	}

	logger.GetGinLogger(c).Debug("Usage recorded",
		zap.String("usage_record_id", record.ID.String()),
		zap.Int64("minutes", record.MinutesUsed))
	c.JSON(http.StatusOK, dto.NewSuccessResponse(nil))
}

// GetUnbilled handles GET /usage/unbilled?periodEnd=RFC3339
func (h *UsageHandler) GetUnbilled(c *gin.Context) {
	user := userID(c)
	if user == "" {
		h.Unauthorized(c)
		return
	}

	periodEnd := h.nowFunc().UTC()
	if raw := c.Query("periodEnd"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.BadRequest(c, "periodEnd must be an RFC3339 timestamp")
			return
		}
		periodEnd = parsed.UTC()
	}

	summary, err := h.reader.UnbilledUsage(c.Request.Context(), user, periodEnd)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, UnbilledUsageResponse{
		PeriodEnd:    periodEnd,
		TotalMinutes: summary.TotalMinutes,
		TotalSeconds: summary.TotalSeconds,
		RecordCount:  len(summary.Records),
	})
}
