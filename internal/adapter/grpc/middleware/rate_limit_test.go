package middleware

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	joinMethod    = "/queue.v1.QueueService/JoinQueue"
	advanceMethod = "/queue.v1.QueueService/AdvanceQueue"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

// newTestLimiter returns a limiter whose clock stands still.
func newTestLimiter(t *testing.T, client *redis.Client, rps, burst int, enabled bool) *RateLimiter {
	rl := NewRateLimiter(client, RateLimiterConfig{
		RequestsPerSecond: rps,
		BurstCapacity:     burst,
		Enabled:           enabled,
	}, zaptest.NewLogger(t))
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return fixed }
	return rl
}

func peerContext(t *testing.T, addr string) context.Context {
	tcp, err := net.ResolveTCPAddr("tcp", addr)
	require.NoError(t, err)
	return peer.NewContext(context.Background(), &peer.Peer{Addr: tcp})
}

func okHandler(context.Context, any) (any, error) {
	return "success", nil
}

// call runs the interceptor n times and returns how many calls got through.
func call(ctx context.Context, interceptor grpc.UnaryServerInterceptor, method string, n int) (passed int, last error) {
	info := &grpc.UnaryServerInfo{FullMethod: method}
	for i := 0; i < n; i++ {
		if _, err := interceptor(ctx, nil, info, okHandler); err != nil {
			last = err
			continue
		}
		passed++
	}
	return passed, last
}

func TestRateLimiter_Interceptor(t *testing.T) {
	tests := []struct {
		name    string
		burst   int
		enabled bool
		calls   int
		passed  int
	}{
		{"within burst", 10, true, 5, 5},
		{"beyond burst", 5, true, 7, 5},
		{"disabled", 1, false, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := setupTestRedis(t)
			rl := newTestLimiter(t, client, 1, tt.burst, tt.enabled)

			passed, last := call(peerContext(t, "127.0.0.1:12345"), rl.UnaryInterceptor(), joinMethod, tt.calls)
			assert.Equal(t, tt.passed, passed)
			if tt.passed < tt.calls {
				st, ok := status.FromError(last)
				require.True(t, ok)
				assert.Equal(t, codes.ResourceExhausted, st.Code())
				assert.Contains(t, st.Message(), "rate limit exceeded")
			}
		})
	}
}

func TestRateLimiter_BucketsAreScoped(t *testing.T) {
	client, _ := setupTestRedis(t)
	interceptor := newTestLimiter(t, client, 1, 2, true).UnaryInterceptor()
	first := peerContext(t, "192.168.1.1:12345")

	passed, _ := call(first, interceptor, joinMethod, 3)
	require.Equal(t, 2, passed)

	// another client has its own bucket
	passed, _ = call(peerContext(t, "192.168.1.2:12345"), interceptor, joinMethod, 1)
	assert.Equal(t, 1, passed)

	// and so has another method
	passed, _ = call(first, interceptor, advanceMethod, 1)
	assert.Equal(t, 1, passed)
}

func TestRateLimiter_ForwardedClient(t *testing.T) {
	client, mr := setupTestRedis(t)
	interceptor := newTestLimiter(t, client, 5, 10, true).UnaryInterceptor()

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-forwarded-for", "203.0.113.1"))
	passed, _ := call(ctx, interceptor, joinMethod, 3)
	assert.Equal(t, 3, passed)
	assert.True(t, mr.Exists("ratelimit:tb:"+joinMethod+":203.0.113.1"))
}

func TestRateLimiter_KeyExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	interceptor := newTestLimiter(t, client, 2, 4, true).UnaryInterceptor()

	passed, err := call(peerContext(t, "127.0.0.1:12345"), interceptor, joinMethod, 5)
	require.Equal(t, 4, passed)
	require.Error(t, err)

	ttl := mr.TTL("ratelimit:tb:" + joinMethod + ":127.0.0.1:12345")
	assert.Greater(t, ttl.Seconds(), 0.0)
	assert.LessOrEqual(t, ttl.Seconds(), 60.0)
}

func TestRateLimiter_Refill(t *testing.T) {
	client, _ := setupTestRedis(t)
	rl := newTestLimiter(t, client, 2, 2, true)
	ctx := context.Background()
	start := rl.now()
	const scope = "POST /v1/queues/:id/advance"

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, scope, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, scope, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok, "bucket is empty")

	// half a second refills one token at 2 req/s
	rl.now = func() time.Time { return start.Add(500 * time.Millisecond) }
	ok, err = rl.Allow(ctx, scope, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_RedisDownFailsOpen(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close()

	interceptor := newTestLimiter(t, client, 1, 1, true).UnaryInterceptor()
	passed, _ := call(context.Background(), interceptor, joinMethod, 3)
	assert.Equal(t, 3, passed)
}

func TestRateLimiter_NilIsDisabled(t *testing.T) {
	var rl *RateLimiter
	assert.False(t, rl.Enabled())

	ok, err := rl.Allow(context.Background(), joinMethod, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}
