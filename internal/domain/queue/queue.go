package queue

import (
	"fmt"
	"strings"
	"time"

	apperrors "grpc-queue-service/pkg/errors"
)

// Queue is one service line operated by an organization. The counters are
// the serialization point for every join, advance and leave on the queue.
type Queue struct {
	ID               string    // ID is the unique identifier of the queue
	OrganizationID   string    // OrganizationID identifies the owning organization
	Name             string    // Name is shown to users browsing queues
	Description      string    // Description is free text shown next to the name
	LocationName     string    // LocationName is where the service is delivered
	LastTicketNumber int64     // LastTicketNumber is the highest ticket ever issued
	CurrentNumber    int64     // CurrentNumber is the ticket being served, 0 if none
	TotalInQueue     int64     // TotalInQueue counts waiting entries
	AverageWaitTime  int64     // AverageWaitTime is an informational estimate in minutes per person
	Version          int64     // Version is bumped by every committed counter change
	CreatedAt        time.Time // CreatedAt is when the queue was opened
	UpdatedAt        time.Time // UpdatedAt is the time of the last committed change
}

// NewQueue builds an empty queue with zeroed counters.
func NewQueue(id, organizationID, name, description, locationName string, averageWaitTime int64, now time.Time) (*Queue, error) {
	q := &Queue{
		ID:              id,
		OrganizationID:  organizationID,
		Name:            strings.TrimSpace(name),
		Description:     strings.TrimSpace(description),
		LocationName:    strings.TrimSpace(locationName),
		AverageWaitTime: averageWaitTime,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// Validate checks the counter invariants.
func (q *Queue) Validate() error {
	switch {
	case q.ID == "":
		return apperrors.NewValidationError("ID", "is required")
	case q.Name == "":
		return apperrors.NewValidationError("Name", "is required")
	case q.LastTicketNumber < 0:
		return apperrors.NewValidationError("LastTicketNumber", "must not be negative")
	case q.CurrentNumber < 0:
		return apperrors.NewValidationError("CurrentNumber", "must not be negative")
	case q.CurrentNumber > q.LastTicketNumber:
		return apperrors.NewValidationError("CurrentNumber",
			fmt.Sprintf("%d exceeds last issued ticket %d", q.CurrentNumber, q.LastTicketNumber))
	case q.TotalInQueue < 0:
		return apperrors.NewValidationError("TotalInQueue", "must not be negative")
	case q.AverageWaitTime < 0:
		return apperrors.NewValidationError("AverageWaitTime", "must not be negative")
	}
	return nil
}

// Call moves the now-serving pointer to ticket and takes the entry out of
// the waiting count. The pointer only moves forward.
func (q *Queue) Call(ticket int64, now time.Time) error {
	if ticket <= q.CurrentNumber {
		return apperrors.NewValidationError("TicketNumber",
			fmt.Sprintf("ticket %d is not after current number %d", ticket, q.CurrentNumber))
	}
	if ticket > q.LastTicketNumber {
		return apperrors.NewValidationError("TicketNumber",
			fmt.Sprintf("ticket %d was never issued (last %d)", ticket, q.LastTicketNumber))
	}
	q.CurrentNumber = ticket
	q.release()
	q.UpdatedAt = now
	return nil
}

// Release takes a cancelled entry out of the waiting count. Ticket numbers
// are not reclaimed.
func (q *Queue) Release(now time.Time) {
	q.release()
	q.UpdatedAt = now
}

func (q *Queue) release() {
	if q.TotalInQueue > 0 {
		q.TotalInQueue--
	}
}

// PeopleAhead returns how many tickets are still to be called before ticket.
func (q *Queue) PeopleAhead(ticket int64) int64 {
	return PeopleAhead(ticket, q.CurrentNumber)
}

// PeopleAhead is max(0, ticket - current - 1).
func PeopleAhead(ticket, current int64) int64 {
	ahead := ticket - current - 1
	if ahead < 0 {
		return 0
	}
	return ahead
}
