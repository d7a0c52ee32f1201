package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "grpc-queue-service/pkg/errors"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusWaiting, StatusServing, true},
		{StatusWaiting, StatusCancelled, true},
		{StatusServing, StatusServed, true},
		{StatusWaiting, StatusServed, false},
		{StatusServing, StatusCancelled, false},
		{StatusServed, StatusWaiting, false},
		{StatusCancelled, StatusWaiting, false},
		{StatusCancelled, StatusServing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatusIsValid(t *testing.T) {
	assert.True(t, StatusWaiting.IsValid())
	assert.True(t, StatusCancelled.IsValid())
	assert.False(t, Status("skipped").IsValid())
}

func TestNewEntry(t *testing.T) {
	e, err := NewEntry("e-1", "q-1", "u-1", "  ", 4, testNow)
	require.NoError(t, err)

	assert.Equal(t, "Anonymous", e.UserName)
	assert.Equal(t, StatusWaiting, e.Status)
	assert.Equal(t, int64(4), e.TicketNumber)
	assert.Equal(t, testNow, e.EntryTime)
	assert.Nil(t, e.CalledAt)
	assert.True(t, e.IsWaiting())

	_, err = NewEntry("e-2", "q-1", "", "Bob", 1, testNow)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = NewEntry("e-3", "q-1", "u-1", "Bob", 0, testNow)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestEntryTransitionTo(t *testing.T) {
	e, err := NewEntry("e-1", "q-1", "u-1", "Alice", 1, testNow)
	require.NoError(t, err)

	called := testNow.Add(2 * time.Minute)
	require.NoError(t, e.TransitionTo(StatusServing, called))
	require.NotNil(t, e.CalledAt)
	assert.Equal(t, called, *e.CalledAt)
	assert.False(t, e.IsWaiting())

	err = e.TransitionTo(StatusCancelled, called)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Equal(t, StatusServing, e.Status)

	require.NoError(t, e.TransitionTo(StatusServed, called.Add(time.Minute)))
	assert.Equal(t, called, *e.CalledAt, "calledAt kept once served")
}

func TestNewEvent(t *testing.T) {
	q := newTestQueue(t)
	q.LastTicketNumber, q.CurrentNumber, q.TotalInQueue = 3, 1, 2
	e, err := NewEntry("e-2", q.ID, "u-2", "Bob", 2, testNow)
	require.NoError(t, err)

	ev := NewEvent(EventTicketIssued, q, e, testNow)
	assert.Equal(t, EventTicketIssued, ev.Type)
	assert.Equal(t, "q-1", ev.QueueID)
	assert.Equal(t, "e-2", ev.EntryID)
	assert.Equal(t, int64(2), ev.TicketNumber)
	assert.Equal(t, int64(1), ev.CurrentNumber)
	assert.Equal(t, int64(2), ev.TotalInQueue)
}
