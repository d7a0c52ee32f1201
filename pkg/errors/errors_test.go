package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestRetryExhaustedError_Is(t *testing.T) {
	err := &RetryExhaustedError{Operation: "join", Attempts: 5, Err: ErrConflict}

	assert.True(t, Is(err, ErrJoinFailed))
	assert.False(t, Is(err, ErrAdvanceConflict))
	assert.True(t, Is(err, &RetryExhaustedError{}))
	assert.True(t, Is(err, ErrConflict), "last conflict should stay reachable")
	assert.Equal(t, "join failed after 5 attempts: queue was modified concurrently", err.Error())
}

func TestWrappedSentinels(t *testing.T) {
	wrapped := fmt.Errorf("get queue q-1: %w", ErrQueueNotFound)

	assert.True(t, Is(wrapped, ErrQueueNotFound))
	assert.False(t, Is(wrapped, ErrEntryNotFound))
	assert.Equal(t, codes.NotFound, Code(wrapped))
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "nil", err: nil, want: codes.OK},
		{name: "already in queue", err: ErrAlreadyInQueue, want: codes.AlreadyExists},
		{name: "join failed", err: &RetryExhaustedError{Operation: "join"}, want: codes.Aborted},
		{name: "validation", err: NewValidationError("UserID", "is required"), want: codes.InvalidArgument},
		{name: "transition", err: NewInvalidTransitionError("served", "cancelled"), want: codes.FailedPrecondition},
		{name: "unauthenticated", err: ErrUnauthenticated, want: codes.Unauthenticated},
		{name: "internal", err: NewInternalError("boom", New("disk")), want: codes.Internal},
		{name: "plain", err: New("plain"), want: codes.Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestValidationError_IsAnyValidationError(t *testing.T) {
	err := fmt.Errorf("create queue: %w", NewValidationError("Name", "is required"))
	assert.True(t, Is(err, ErrInvalidArgument))
	assert.Equal(t, "validation failed: Name - is required", NewValidationError("Name", "is required").Error())
}
