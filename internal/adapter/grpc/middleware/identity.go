package middleware

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"grpc-queue-service/internal/adapter/identity"
)

// IdentityInterceptor attaches the caller from x-user-id / x-user-name
// metadata when present. Methods that need a caller reject requests without one.
func IdentityInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if caller, ok := identity.New(first(md, identity.MDUserID), first(md, identity.MDUserName)); ok {
				ctx = identity.WithCaller(ctx, caller)
			}
		}
		return handler(ctx, req)
	}
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}
