package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	billingapp "github.com/graham/backend/internal/application/billing"
	"github.com/graham/backend/internal/infrastructure/logger"
	"github.com/graham/backend/internal/infrastructure/scheduler"
	"github.com/graham/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// AdminHandler serves operator endpoints
type AdminHandler struct {
	BaseHandler
	jobs scheduler.JobSubmitter
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(jobs scheduler.JobSubmitter) *AdminHandler {
	return &AdminHandler{jobs: jobs}
}

// BillingRunResponse identifies a queued billing run
type BillingRunResponse struct {
	JobID   string `json:"jobId"`
	Job     string `json:"job"`
	Trigger string `json:"trigger"`
	Status  string `json:"status"`
}

// RunBilling handles POST /admin/billing/run. The run is queued on the
// scheduler and executes asynchronously.
func (h *AdminHandler) RunBilling(c *gin.Context) {
	job, err := h.jobs.Submit(scheduler.MonthlyBillingJobName, billingapp.TriggerManual)
	if err != nil {
		logger.GetGinLogger(c).Warn("Failed to queue billing run", zap.Error(err))
		switch {
		case errors.Is(err, scheduler.ErrJobQueueFull):
			h.Fail(c, dto.ErrCodeRateLimited, "A billing run is already queued")
		case errors.Is(err, scheduler.ErrSchedulerNotRunning):
			h.Fail(c, dto.ErrCodeUnavailable, "Scheduler is not running")
		default:
			h.Fail(c, dto.ErrCodeInternal, dto.InternalErrorMessage)
		}
		return
	}

	logger.GetGinLogger(c).Info("Billing run queued", zap.String("job_id", job.ID.String()))
	h.Accepted(c, BillingRunResponse{
		JobID:   job.ID.String(),
		Job:     job.Name,
		Trigger: job.Trigger,
		Status:  string(job.Status),
	})
}
