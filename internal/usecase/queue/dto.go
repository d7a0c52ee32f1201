package queue

import (
	"time"

	domain "grpc-queue-service/internal/domain/queue"
)

// CreateQueueRequest represents the request payload for opening a new queue.
type CreateQueueRequest struct {
	OrganizationID  string `validate:"required,max=128"`
	Name            string `validate:"required,min=2,max=100"`
	Description     string `validate:"max=500"`
	LocationName    string `validate:"max=200"`
	AverageWaitTime int64  `validate:"gte=0,lte=1440"`
}

// CreateQueueResponse represents the response payload after creating a queue.
type CreateQueueResponse struct {
	Queue Queue
}

// GetQueueRequest represents the request payload for retrieving a queue.
type GetQueueRequest struct {
	QueueID string `validate:"required"`
}

// GetQueueResponse represents the response payload for queue details.
type GetQueueResponse struct {
	Queue Queue
}

// ListQueuesRequest represents the request payload for listing queues.
type ListQueuesRequest struct{}

// ListQueuesResponse represents the response payload for queue listing, ordered by name.
type ListQueuesResponse struct {
	Queues []Queue
}

// JoinQueueRequest represents a caller asking for a ticket.
type JoinQueueRequest struct {
	QueueID  string `validate:"required"`
	UserID   string `validate:"required"`
	UserName string `validate:"max=100"`
}

// JoinQueueResponse carries the committed ticket.
type JoinQueueResponse struct {
	QueueID      string
	EntryID      string
	TicketNumber int64
	PeopleAhead  int64
}

// AdvanceQueueRequest represents an operator calling the next ticket.
type AdvanceQueueRequest struct {
	QueueID string `validate:"required"`
}

// AdvanceQueueResponse describes the called entry. Empty is set when no
// ticket was waiting; the queue is then left untouched.
type AdvanceQueueResponse struct {
	Empty         bool
	QueueID       string
	EntryID       string
	TicketNumber  int64
	UserID        string
	UserName      string
	CurrentNumber int64
	TotalInQueue  int64
}

// LeaveQueueRequest represents a caller cancelling their own waiting entry.
type LeaveQueueRequest struct {
	QueueID string `validate:"required"`
	EntryID string `validate:"required"`
	UserID  string `validate:"required"`
}

// LeaveQueueResponse represents the response payload after leaving a queue.
type LeaveQueueResponse struct {
	EntryID string
	Status  string
}

// ListMyTicketsRequest represents the request payload for a user's tickets.
type ListMyTicketsRequest struct {
	UserID string `validate:"required"`
}

// ListMyTicketsResponse lists the caller's waiting tickets.
type ListMyTicketsResponse struct {
	Tickets []Ticket
}

// ListWaitingRequest represents the request payload for the operator waiting list.
type ListWaitingRequest struct {
	QueueID string `validate:"required"`
}

// ListWaitingResponse lists waiting entries in ticket order.
type ListWaitingResponse struct {
	QueueID       string
	CurrentNumber int64
	Entries       []WaitingEntry
}

// Queue represents a queue DTO for API responses.
type Queue struct {
	ID               string
	OrganizationID   string
	Name             string
	Description      string
	LocationName     string
	LastTicketNumber int64
	CurrentNumber    int64
	TotalInQueue     int64
	AverageWaitTime  int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Ticket is one row of the My Tickets view.
type Ticket struct {
	EntryID              string
	QueueID              string
	QueueName            string
	LocationName         string
	TicketNumber         int64
	CurrentNumber        int64
	PeopleAhead          int64
	EstimatedWaitMinutes int64
	EntryTime            time.Time
}

// WaitingEntry is one row of the operator waiting list.
type WaitingEntry struct {
	EntryID      string
	TicketNumber int64
	UserID       string
	UserName     string
	EntryTime    time.Time
}

func toQueueDTO(q *domain.Queue) Queue {
	return Queue{
		ID:               q.ID,
		OrganizationID:   q.OrganizationID,
		Name:             q.Name,
		Description:      q.Description,
		LocationName:     q.LocationName,
		LastTicketNumber: q.LastTicketNumber,
		CurrentNumber:    q.CurrentNumber,
		TotalInQueue:     q.TotalInQueue,
		AverageWaitTime:  q.AverageWaitTime,
		CreatedAt:        q.CreatedAt,
		UpdatedAt:        q.UpdatedAt,
	}
}
