package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/graham/backend/internal/infrastructure/logger"
	"github.com/graham/backend/internal/interfaces/http/dto"
	"github.com/graham/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// userID returns the authenticated caller
func userID(c *gin.Context) string {
	return middleware.GetJWTUserID(c)
}

func requestID(c *gin.Context) string {
	return c.GetString(logger.GinRequestIDKey)
}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 response
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Fail sends an error response with an explicit code
func (h *BaseHandler) Fail(c *gin.Context, code, message string) {
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(code, message).WithRequestID(requestID(c)))
}

// BadRequest sends a 400 validation response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Fail(c, dto.ErrCodeValidation, message)
}

// Unauthorized sends a 401 response
func (h *BaseHandler) Unauthorized(c *gin.Context) {
	h.Fail(c, dto.ErrCodeUnauthorized, "Unauthorized")
}

// HandleError maps err to a response. Server side failures are logged with
// their cause and answered with a generic message.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	status, resp := dto.ErrorFromDomain(err)
	if status >= http.StatusInternalServerError {
		logger.GetGinLogger(c).Error("Request failed", zap.Error(err))
		_ = c.Error(err)
	}
	c.JSON(status, resp.WithRequestID(requestID(c)))
}
