// Package identity carries the caller identity supplied by the upstream auth
// proxy from HTTP headers and gRPC metadata into the request context.
package identity

import (
	"context"
	"strings"

	"grpc-queue-service/pkg/logger"
)

// Header and metadata names. gRPC metadata keys are lowercase.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
	MDUserID       = "x-user-id"
	MDUserName     = "x-user-name"
)

type contextKey struct{}

// Caller is the authenticated user behind a request.
type Caller struct {
	UserID   string
	UserName string
}

// New trims the raw values. ok is false without a user id.
func New(userID, userName string) (Caller, bool) {
	c := Caller{
		UserID:   strings.TrimSpace(userID),
		UserName: strings.TrimSpace(userName),
	}
	return c, c.UserID != ""
}

// WithCaller stores the caller and exposes its id to the context logger.
func WithCaller(ctx context.Context, c Caller) context.Context {
	ctx = context.WithValue(ctx, contextKey{}, c)
	return context.WithValue(ctx, logger.UserIDKey, c.UserID)
}

// FromContext returns the caller stored by WithCaller.
func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(contextKey{}).(Caller)
	return c, ok && c.UserID != ""
}
