package queue

import (
	"strings"
	"time"

	apperrors "grpc-queue-service/pkg/errors"
)

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusServing   Status = "serving"
	StatusServed    Status = "served"
	StatusCancelled Status = "cancelled"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusWaiting, StatusServing, StatusServed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether an entry in status s may move to target.
func (s Status) CanTransitionTo(target Status) bool {
	validTransitions := map[Status][]Status{
		StatusWaiting:   {StatusServing, StatusCancelled},
		StatusServing:   {StatusServed},
		StatusServed:    {}, // Terminal state
		StatusCancelled: {}, // Terminal state
	}

	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Entry is one user's position in one queue. Entries are never deleted.
type Entry struct {
	ID           string     // ID is the unique identifier of the entry
	QueueID      string     // QueueID references the owning queue
	UserID       string     // UserID references the ticket holder
	UserName     string     // UserName is the holder's display name
	TicketNumber int64      // TicketNumber is unique within the queue and immutable
	Status       Status     // Status is the lifecycle state
	EntryTime    time.Time  // EntryTime is when the ticket was issued
	CalledAt     *time.Time // CalledAt is set when the queue advanced to this ticket
	UpdatedAt    time.Time  // UpdatedAt is the time of the last status change
}

// NewEntry builds a waiting entry for a freshly issued ticket.
func NewEntry(id, queueID, userID, userName string, ticket int64, now time.Time) (*Entry, error) {
	switch {
	case id == "":
		return nil, apperrors.NewValidationError("ID", "is required")
	case queueID == "":
		return nil, apperrors.NewValidationError("QueueID", "is required")
	case userID == "":
		return nil, apperrors.NewValidationError("UserID", "is required")
	case ticket <= 0:
		return nil, apperrors.NewValidationError("TicketNumber", "must be positive")
	}

	userName = strings.TrimSpace(userName)
	if userName == "" {
		userName = "Anonymous"
	}

	return &Entry{
		ID:           id,
		QueueID:      queueID,
		UserID:       userID,
		UserName:     userName,
		TicketNumber: ticket,
		Status:       StatusWaiting,
		EntryTime:    now,
		UpdatedAt:    now,
	}, nil
}

// TransitionTo moves the entry to target if the lifecycle allows it.
func (e *Entry) TransitionTo(target Status, now time.Time) error {
	if !e.Status.CanTransitionTo(target) {
		return apperrors.NewInvalidTransitionError(string(e.Status), string(target))
	}
	e.Status = target
	e.UpdatedAt = now
	if target == StatusServing {
		calledAt := now
		e.CalledAt = &calledAt
	}
	return nil
}

// IsWaiting reports whether the entry still holds a place in line.
func (e *Entry) IsWaiting() bool {
	return e.Status == StatusWaiting
}
