package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/graham/backend/internal/infrastructure/auth"
	"github.com/graham/backend/internal/infrastructure/logger"
	"github.com/graham/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// JWT context keys
const (
	JWTClaimsKey  = "jwt_claims"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenValidator validates bearer tokens. *auth.JWTService satisfies it.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// JWTMiddlewareConfig holds configuration for JWT middleware
type JWTMiddlewareConfig struct {
	Validator TokenValidator
	Logger    *zap.Logger
}

// JWTAuth rejects requests without a valid bearer token and stores the
// caller's user id under logger.GinUserIDKey.
func JWTAuth(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		header := c.GetHeader(AuthHeaderKey)
		token, ok := strings.CutPrefix(header, BearerPrefix)
		if !ok || strings.TrimSpace(token) == "" {
			abort(c, dto.ErrCodeUnauthorized, "Unauthorized")
			return
		}

		claims, err := cfg.Validator.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			log.Debug("JWT authentication failed",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
			abort(c, dto.ErrCodeUnauthorized, authErrorMessage(err))
			return
		}

		userID := claims.User()
		c.Set(JWTClaimsKey, claims)
		c.Set(logger.GinUserIDKey, userID)

		ctx, _ := logger.WithUserID(c.Request.Context(), logger.FromContext(c.Request.Context()), userID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func authErrorMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		return "Token is not yet valid"
	default:
		return "Unauthorized"
	}
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

// GetJWTUserID returns the authenticated user id, or "" on unauthenticated routes
func GetJWTUserID(c *gin.Context) string {
	return c.GetString(logger.GinUserIDKey)
}
