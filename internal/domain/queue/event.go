package queue

import "time"

// EventType names a committed queue state change.
type EventType string

const (
	EventTicketIssued   EventType = "ticket_issued"
	EventTicketCalled   EventType = "ticket_called"
	EventEntryCancelled EventType = "entry_cancelled"
)

// Event is published after a queue change has been committed.
type Event struct {
	Type          EventType `json:"type"`
	QueueID       string    `json:"queueId"`
	EntryID       string    `json:"entryId"`
	UserID        string    `json:"userId"`
	TicketNumber  int64     `json:"ticketNumber"`
	CurrentNumber int64     `json:"currentNumber"`
	TotalInQueue  int64     `json:"totalInQueue"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewEvent builds an event from the committed queue and entry snapshots.
func NewEvent(t EventType, q *Queue, e *Entry, now time.Time) Event {
	return Event{
		Type:          t,
		QueueID:       q.ID,
		EntryID:       e.ID,
		UserID:        e.UserID,
		TicketNumber:  e.TicketNumber,
		CurrentNumber: q.CurrentNumber,
		TotalInQueue:  q.TotalInQueue,
		Timestamp:     now,
	}
}
