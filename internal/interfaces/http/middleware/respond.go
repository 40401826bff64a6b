package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/graham/backend/internal/infrastructure/logger"
	"github.com/graham/backend/internal/interfaces/http/dto"
)

// abort stops the chain with an error envelope
func abort(c *gin.Context, code, message string) {
	resp := dto.NewErrorResponse(code, message).WithRequestID(c.GetString(logger.GinRequestIDKey))
	c.AbortWithStatusJSON(dto.GetHTTPStatus(code), resp)
}
