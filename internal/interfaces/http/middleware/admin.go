package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/graham/backend/internal/interfaces/http/dto"
)

// AdminTokenHeader carries the operator token on admin routes
const AdminTokenHeader = "X-Admin-Token"

// AdminToken guards operator routes with a static shared token. An empty
// token disables the routes entirely.
func AdminToken(token string) gin.HandlerFunc {
	expected := []byte(token)
	return func(c *gin.Context) {
		if len(expected) == 0 {
			abort(c, dto.ErrCodeForbidden, "Admin API is disabled")
			return
		}
		presented := c.GetHeader(AdminTokenHeader)
		if presented == "" {
			presented, _ = strings.CutPrefix(c.GetHeader(AuthHeaderKey), BearerPrefix)
		}
		if subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
			abort(c, dto.ErrCodeUnauthorized, "Unauthorized")
			return
		}
		c.Next()
	}
}
