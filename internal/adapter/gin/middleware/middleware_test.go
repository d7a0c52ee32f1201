package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	grpcmiddleware "grpc-queue-service/internal/adapter/grpc/middleware"
	"grpc-queue-service/internal/adapter/identity"
	"grpc-queue-service/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zaptest.NewLogger(t)))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal_error")
}

func TestLogger_RequestID(t *testing.T) {
	r := gin.New()
	r.Use(Logger(zaptest.NewLogger(t)))
	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = logger.GetRequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	w := serve(r, req)
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", w.Header().Get(HeaderRequestID))

	w = serve(r, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.Equal(t, w.Header().Get(HeaderRequestID), seen)
}

func TestIdentity(t *testing.T) {
	r := gin.New()
	r.Use(Identity())
	r.GET("/me", RequireCaller(), func(c *gin.Context) {
		caller, _ := identity.FromContext(c.Request.Context())
		c.String(http.StatusOK, caller.UserID+"/"+caller.UserName)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(identity.HeaderUserID, "user-a")
	req.Header.Set(identity.HeaderUserName, "Ana")
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-a/Ana", w.Body.String())

	w = serve(r, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unauthenticated")
}

func TestRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := grpcmiddleware.NewRateLimiter(client, grpcmiddleware.RateLimiterConfig{
		RequestsPerSecond: 1,
		BurstCapacity:     2,
		Enabled:           true,
	}, zaptest.NewLogger(t))

	r := gin.New()
	r.Use(RateLimiter(limiter))
	r.POST("/v1/queues/:id/advance", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := serve(r, httptest.NewRequest(http.MethodPost, "/v1/queues/q-1/advance", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := serve(r, httptest.NewRequest(http.MethodPost, "/v1/queues/q-2/advance", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "bucket is shared per route pattern")
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(nil))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/ok", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

type recordedRequest struct {
	method, route string
	status        int
}

type stubObserver struct {
	seen []recordedRequest
}

func (s *stubObserver) ObserveHTTP(method, route string, status int) {
	s.seen = append(s.seen, recordedRequest{method, route, status})
}

func TestMetrics(t *testing.T) {
	obs := &stubObserver{}
	r := gin.New()
	r.Use(Metrics(obs))
	r.GET("/v1/queues/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, httptest.NewRequest(http.MethodGet, "/v1/queues/q-1", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Len(t, obs.seen, 2)
	assert.Equal(t, recordedRequest{"GET", "/v1/queues/:id", 200}, obs.seen[0])
	assert.Equal(t, 404, obs.seen[1].status)
}
