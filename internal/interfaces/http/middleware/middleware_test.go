package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graham/backend/internal/infrastructure/auth"
	"github.com/graham/backend/internal/infrastructure/config"
	"github.com/graham/backend/internal/infrastructure/logger"
	"github.com/graham/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func newJWTService() *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{Secret: "middleware-test-secret-32-chars!!"})
}

func TestJWTAuth(t *testing.T) {
	svc := newJWTService()
	token, err := svc.IssueToken("user_42", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.Use(RequestID(), JWTAuth(JWTMiddlewareConfig{Validator: svc}))
	r.GET("/me", func(c *gin.Context) {
		assert.Equal(t, "user_42", logger.GetUserID(c.Request.Context()))
		require.NotNil(t, GetJWTClaims(c))
		c.String(http.StatusOK, GetJWTUserID(c))
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "user_42", w.Body.String())
				return
			}
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, dto.ErrCodeUnauthorized, resp.Code)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestAdminToken(t *testing.T) {
	newRouter := func(token string) *gin.Engine {
		r := gin.New()
		r.POST("/run", AdminToken(token), func(c *gin.Context) { c.Status(http.StatusAccepted) })
		return r
	}
	secret := strings.Repeat("a", 32)

	tests := []struct {
		name       string
		configured string
		header     string
		value      string
		wantStatus int
	}{
		{"header token", secret, AdminTokenHeader, secret, http.StatusAccepted},
		{"bearer token", secret, AuthHeaderKey, "Bearer " + secret, http.StatusAccepted},
		{"wrong token", secret, AdminTokenHeader, "nope", http.StatusUnauthorized},
		{"no token", secret, "", "", http.StatusUnauthorized},
		{"disabled", "", AdminTokenHeader, "anything", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/run", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			newRouter(tt.configured).ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(logger.GinRequestIDKey)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-id")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "client-id", w.Body.String())
	assert.Equal(t, "client-id", w.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", MaxRequestIDLength+1))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Len(t, w.Body.String(), 36)
}

func TestCORS(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://app.graham.test"}
	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.graham.test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.graham.test", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.test")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimit(16))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 17))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, dto.ErrCodeRequestTooLarge, decodeResponse(t, w).Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small")))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.nowFunc = func() time.Time { return now }

	assert.True(t, rl.Allow("user_1"))
	assert.True(t, rl.Allow("user_1"))
	assert.False(t, rl.Allow("user_1"))
	assert.True(t, rl.Allow("user_2"), "keys are independent")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("user_1"), "bucket refills")

	now = now.Add(rl.idleTTL + time.Second)
	assert.Equal(t, 2, rl.Prune())
}

func TestRateLimit_Middleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(logger.GinUserIDKey, "user_1"); c.Next() }, RateLimit(rl))
	r.POST("/usage", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/usage", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/usage", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, dto.ErrCodeRateLimited, decodeResponse(t, w).Code)
}

func TestValidationMessage(t *testing.T) {
	SetupValidator()

	type payload struct {
		AgentID  string  `json:"agentId" binding:"required,uuid"`
		Duration float64 `json:"durationInSeconds" binding:"gt=0"`
	}

	r := gin.New()
	r.POST("/", func(c *gin.Context) {
		var p payload
		if err := c.ShouldBindJSON(&p); err != nil {
			c.String(http.StatusBadRequest, ValidationMessage(err))
			return
		}
		c.Status(http.StatusOK)
	})

	tests := []struct {
		body string
		want string
	}{
		{`{"durationInSeconds":1}`, "agentId is required"},
		{`{"agentId":"x","durationInSeconds":1}`, "agentId must be a valid UUID"},
		{`{"agentId":"6f1c1a9e-4a64-4a9e-9d0b-0b7e4b1b2c3d","durationInSeconds":0}`, "durationInSeconds must be greater than 0"},
		{`{`, "Invalid request body"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, tt.want, w.Body.String())
	}
}

func TestHTTPMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	mw, err := HTTPMetrics(provider.Meter("test"))
	require.NoError(t, err)

	r := gin.New()
	r.Use(mw)
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["http_server_request_total"])
	assert.True(t, names["http_server_request_duration_seconds"])

	noop, err := HTTPMetrics(nil)
	require.NoError(t, err)
	assert.NotNil(t, noop)
}
