package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// tokenBucket refills `rate` tokens per second up to `capacity` and takes one
// token per call. Bucket state is {last_refill, tokens}.
var tokenBucket = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local requested = tonumber(ARGV[4])

	local bucket = redis.call('HMGET', key, 'last_refill', 'tokens')
	local last_refill = tonumber(bucket[1]) or now
	local tokens = tonumber(bucket[2]) or capacity

	local elapsed = math.max(0, now - last_refill)
	tokens = math.min(capacity, tokens + elapsed * rate)

	local allowed = 0
	if tokens >= requested then
		tokens = tokens - requested
		allowed = 1
	end

	redis.call('HSET', key, 'last_refill', now, 'tokens', tokens)
	redis.call('EXPIRE', key, 60)
	return allowed
`)

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	RequestsPerSecond int
	BurstCapacity     int
	Enabled           bool
}

// RateLimiter is a Redis token bucket shared by the gRPC interceptor and the
// Gin middleware. Redis failures let the request through.
type RateLimiter struct {
	client redis.Scripter
	config RateLimiterConfig
	log    *zap.Logger
	now    func() time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client redis.Scripter, config RateLimiterConfig, log *zap.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		config: config,
		log:    log,
		now:    time.Now,
	}
}

// Enabled reports whether requests are being limited.
func (rl *RateLimiter) Enabled() bool {
	return rl != nil && rl.config.Enabled && rl.client != nil
}

// Config returns the limiter settings.
func (rl *RateLimiter) Config() RateLimiterConfig {
	return rl.config
}

// Allow takes one token from the bucket identified by scope and client.
func (rl *RateLimiter) Allow(ctx context.Context, scope, client string) (bool, error) {
	if !rl.Enabled() {
		return true, nil
	}

	key := fmt.Sprintf("ratelimit:tb:%s:%s", scope, client)
	now := float64(rl.now().UnixMilli()) / 1000

	allowed, err := tokenBucket.Run(ctx, rl.client, []string{key},
		rl.config.RequestsPerSecond,
		rl.config.BurstCapacity,
		now,
		1,
	).Int64()
	if err != nil {
		rl.log.Warn("rate limiter redis error, allowing request",
			zap.String("client", client),
			zap.String("scope", scope),
			zap.Error(err),
		)
		return true, err
	}
	return allowed == 1, nil
}

// UnaryInterceptor returns a gRPC unary interceptor for rate limiting.
func (rl *RateLimiter) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		// Skip rate limiting if disabled
		if !rl.Enabled() {
			return handler(ctx, req)
		}

		clientIP := rl.getClientIP(ctx)
		allowed, _ := rl.Allow(ctx, info.FullMethod, clientIP)
		if !allowed {
			rl.log.Warn("rate limit exceeded",
				zap.String("client_ip", clientIP),
				zap.String("method", info.FullMethod),
			)
			return nil, status.Errorf(codes.ResourceExhausted,
				"rate limit exceeded: %d requests/second (burst capacity: %d)",
				rl.config.RequestsPerSecond, rl.config.BurstCapacity)
		}

		return handler(ctx, req)
	}
}

// getClientIP extracts the client IP address from the gRPC context.
func (rl *RateLimiter) getClientIP(ctx context.Context) string {
	// Try to get IP from X-Forwarded-For header (for requests through gateway)
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if xff := md.Get("x-forwarded-for"); len(xff) > 0 {
			return xff[0]
		}
		if xri := md.Get("x-real-ip"); len(xri) > 0 {
			return xri[0]
		}
	}

	// Fallback to peer address
	if p, ok := peer.FromContext(ctx); ok {
		return p.Addr.String()
	}

	return "unknown"
}
