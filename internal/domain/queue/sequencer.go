package queue

import (
	"fmt"
	"time"
)

// NextTicket issues the next ticket number of q. It mutates q in memory
// only; the caller must persist the queue and the new entry in the same
// atomic unit, or throw both away.
func NextTicket(q *Queue, now time.Time) (int64, error) {
	if q == nil {
		return 0, fmt.Errorf("next ticket: nil queue")
	}
	if err := q.Validate(); err != nil {
		return 0, fmt.Errorf("next ticket for queue %s: %w", q.ID, err)
	}

	next := q.LastTicketNumber + 1
	q.LastTicketNumber = next
	q.TotalInQueue++
	q.UpdatedAt = now
	return next, nil
}
