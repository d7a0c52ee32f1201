package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"grpc-queue-service/internal/adapter/db/memory"
	"grpc-queue-service/internal/adapter/gin/handler"
	grpcmiddleware "grpc-queue-service/internal/adapter/grpc/middleware"
	"grpc-queue-service/internal/adapter/identity"
	"grpc-queue-service/internal/adapter/metrics"
	"grpc-queue-service/internal/usecase/queue"
)

func setupRouter(t *testing.T, limiter *grpcmiddleware.RateLimiter) (http.Handler, *metrics.Recorder) {
	log := zaptest.NewLogger(t)
	rec := metrics.NewRecorder()
	uc := queue.New(memory.NewQueueRepo(), log, queue.WithMetrics(rec))
	r := SetupRouter(handler.NewQueueHandler(uc, log), Options{
		RateLimiter:    limiter,
		Metrics:        rec,
		MetricsHandler: rec.Handler(),
	}, log)
	return r, rec
}

func request(h http.Handler, method, path, body, userID string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, stringsReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		req.Header.Set(identity.HeaderUserID, userID)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _ := setupRouter(t, nil)

	w := request(r, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestRouter_QueueFlow(t *testing.T) {
	r, _ := setupRouter(t, nil)

	w := request(r, http.MethodPost, "/v1/queues", `{"organizationId":"org-1","name":"Pharmacy","averageWaitTime":3}`, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decodeField(t, w, "id")

	w = request(r, http.MethodPost, "/v1/queues/"+id+"/entries", "", "user-a")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `1`, rawField(t, w, "ticketNumber"))

	w = request(r, http.MethodPost, "/v1/queues/"+id+"/entries", "", "user-a")
	assert.Equal(t, http.StatusConflict, w.Code, "double join is rejected")

	w = request(r, http.MethodPost, "/v1/queues/"+id+"/entries", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = request(r, http.MethodGet, "/v1/me/tickets", "", "user-a")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"queueName":"Pharmacy"`)

	w = request(r, http.MethodPost, "/v1/queues/"+id+"/advance", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"userId":"user-a"`)

	w = request(r, http.MethodPost, "/v1/queues/"+id+"/advance", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"empty":true`)

	w = request(r, http.MethodGet, "/v1/queues/missing", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_Metrics(t *testing.T) {
	r, _ := setupRouter(t, nil)

	request(r, http.MethodGet, "/v1/queues", "", "")

	w := request(r, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `queue_service_http_requests_total{method="GET",route="/v1/queues",status="200"} 1`)
}

func TestRouter_RateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := grpcmiddleware.NewRateLimiter(client, grpcmiddleware.RateLimiterConfig{
		RequestsPerSecond: 1,
		BurstCapacity:     1,
		Enabled:           true,
	}, zaptest.NewLogger(t))
	r, _ := setupRouter(t, limiter)

	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/v1/queues", "", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, request(r, http.MethodGet, "/v1/queues", "", "").Code)
	assert.Equal(t, http.StatusOK, request(r, http.MethodGet, "/health", "", "").Code, "health is not limited")
}

func TestRouter_CORSPreflight(t *testing.T) {
	r, _ := setupRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/v1/queues", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
