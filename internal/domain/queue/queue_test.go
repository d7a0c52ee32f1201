package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "grpc-queue-service/pkg/errors"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := NewQueue("q-1", "org-1", " City Hospital ", "Outpatients", "Building A", 5, testNow)
	require.NoError(t, err)
	return q
}

func TestNewQueue(t *testing.T) {
	q := newTestQueue(t)

	assert.Equal(t, "City Hospital", q.Name)
	assert.Zero(t, q.LastTicketNumber)
	assert.Zero(t, q.CurrentNumber)
	assert.Zero(t, q.TotalInQueue)
	assert.Equal(t, testNow, q.CreatedAt)

	_, err := NewQueue("q-2", "org-1", "   ", "", "", 0, testNow)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = NewQueue("q-3", "org-1", "Bank", "", "", -1, testNow)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestQueueValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(q *Queue)
		wantErr bool
	}{
		{"valid", func(q *Queue) {}, false},
		{"current equals last", func(q *Queue) { q.LastTicketNumber, q.CurrentNumber = 3, 3 }, false},
		{"current ahead of last", func(q *Queue) { q.LastTicketNumber, q.CurrentNumber = 2, 3 }, true},
		{"negative total", func(q *Queue) { q.TotalInQueue = -1 }, true},
		{"negative last", func(q *Queue) { q.LastTicketNumber = -1 }, true},
		{"missing id", func(q *Queue) { q.ID = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newTestQueue(t)
			tt.mutate(q)
			err := q.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQueueCall(t *testing.T) {
	q := newTestQueue(t)
	q.LastTicketNumber, q.TotalInQueue = 3, 3

	later := testNow.Add(time.Minute)
	require.NoError(t, q.Call(2, later))
	assert.Equal(t, int64(2), q.CurrentNumber)
	assert.Equal(t, int64(2), q.TotalInQueue)
	assert.Equal(t, later, q.UpdatedAt)

	assert.Error(t, q.Call(2, later), "pointer must move forward")
	assert.Error(t, q.Call(1, later), "pointer must move forward")
	assert.Error(t, q.Call(4, later), "ticket was never issued")
	assert.Equal(t, int64(2), q.CurrentNumber)
}

func TestQueueRelease(t *testing.T) {
	q := newTestQueue(t)
	q.LastTicketNumber, q.TotalInQueue = 1, 1

	q.Release(testNow)
	assert.Zero(t, q.TotalInQueue)

	q.Release(testNow)
	assert.Zero(t, q.TotalInQueue, "count never goes negative")
	assert.Equal(t, int64(1), q.LastTicketNumber, "numbers are not reclaimed")
}

func TestPeopleAhead(t *testing.T) {
	tests := []struct {
		ticket, current, want int64
	}{
		{ticket: 5, current: 0, want: 4},
		{ticket: 5, current: 4, want: 0},
		{ticket: 5, current: 5, want: 0},
		{ticket: 5, current: 9, want: 0},
		{ticket: 1, current: 0, want: 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PeopleAhead(tt.ticket, tt.current), "ticket %d current %d", tt.ticket, tt.current)
	}
}
