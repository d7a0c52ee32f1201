package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"grpc-queue-service/pkg/logger"
)

func TestNew(t *testing.T) {
	c, ok := New("  user-a ", " Ana ")
	assert.True(t, ok)
	assert.Equal(t, Caller{UserID: "user-a", UserName: "Ana"}, c)

	_, ok = New("   ", "Ana")
	assert.False(t, ok)
}

func TestWithCaller(t *testing.T) {
	ctx := WithCaller(context.Background(), Caller{UserID: "user-a", UserName: "Ana"})

	c, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "Ana", c.UserName)
	assert.Equal(t, "user-a", logger.GetUserID(ctx))

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
