// Package presenter defines the JSON shapes shared by the REST handlers and
// the gRPC service, whose messages are google.protobuf.Struct values.
package presenter

import (
	"time"

	"grpc-queue-service/internal/usecase/queue"
)

// CreateQueueBody is the body of a create queue request.
type CreateQueueBody struct {
	OrganizationID  string `json:"organizationId" binding:"required"`
	Name            string `json:"name" binding:"required,min=2,max=100"`
	Description     string `json:"description" binding:"max=500"`
	LocationName    string `json:"locationName" binding:"max=200"`
	AverageWaitTime int64  `json:"averageWaitTime" binding:"gte=0,lte=1440"`
}

// Queue is the public view of a queue.
type Queue struct {
	ID               string    `json:"id"`
	OrganizationID   string    `json:"organizationId"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	LocationName     string    `json:"locationName"`
	LastTicketNumber int64     `json:"lastTicketNumber"`
	CurrentNumber    int64     `json:"currentNumber"`
	TotalInQueue     int64     `json:"totalInQueue"`
	AverageWaitTime  int64     `json:"averageWaitTime"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// QueueList wraps a queue listing.
type QueueList struct {
	Queues []Queue `json:"queues"`
}

// Joined is returned after a ticket has been issued.
type Joined struct {
	QueueID      string `json:"queueId"`
	EntryID      string `json:"entryId"`
	TicketNumber int64  `json:"ticketNumber"`
	PeopleAhead  int64  `json:"peopleAhead"`
}

// Advanced is returned after an advance. Empty reports that no ticket was
// waiting.
type Advanced struct {
	Empty         bool   `json:"empty"`
	QueueID       string `json:"queueId"`
	EntryID       string `json:"entryId,omitempty"`
	TicketNumber  int64  `json:"ticketNumber,omitempty"`
	UserID        string `json:"userId,omitempty"`
	UserName      string `json:"userName,omitempty"`
	CurrentNumber int64  `json:"currentNumber"`
	TotalInQueue  int64  `json:"totalInQueue"`
}

// Left is returned after a waiting entry was cancelled.
type Left struct {
	EntryID string `json:"entryId"`
	Status  string `json:"status"`
}

// Ticket is one row of the caller's ticket list.
type Ticket struct {
	EntryID              string    `json:"entryId"`
	QueueID              string    `json:"queueId"`
	QueueName            string    `json:"queueName"`
	LocationName         string    `json:"locationName"`
	TicketNumber         int64     `json:"ticketNumber"`
	CurrentNumber        int64     `json:"currentNumber"`
	PeopleAhead          int64     `json:"peopleAhead"`
	EstimatedWaitMinutes int64     `json:"estimatedWaitMinutes"`
	EntryTime            time.Time `json:"entryTime"`
}

// TicketList wraps the caller's tickets.
type TicketList struct {
	Tickets []Ticket `json:"tickets"`
}

// WaitingEntry is one row of the operator waiting list.
type WaitingEntry struct {
	EntryID      string    `json:"entryId"`
	TicketNumber int64     `json:"ticketNumber"`
	UserID       string    `json:"userId"`
	UserName     string    `json:"userName"`
	EntryTime    time.Time `json:"entryTime"`
}

// WaitingList is the operator view of a queue.
type WaitingList struct {
	QueueID       string         `json:"queueId"`
	CurrentNumber int64          `json:"currentNumber"`
	Entries       []WaitingEntry `json:"entries"`
}

// ToCreateRequest maps a create body to the usecase request.
func (b CreateQueueBody) ToCreateRequest() queue.CreateQueueRequest {
	return queue.CreateQueueRequest{
		OrganizationID:  b.OrganizationID,
		Name:            b.Name,
		Description:     b.Description,
		LocationName:    b.LocationName,
		AverageWaitTime: b.AverageWaitTime,
	}
}

// FromQueue converts a queue DTO.
func FromQueue(q queue.Queue) Queue {
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

// FromQueues converts a queue listing.
func FromQueues(resp *queue.ListQueuesResponse) QueueList {
	out := QueueList{Queues: make([]Queue, len(resp.Queues))}
	for i, q := range resp.Queues {
		out.Queues[i] = FromQueue(q)
	}
	return out
}

// FromJoin converts a join response.
func FromJoin(resp *queue.JoinQueueResponse) Joined {
	return Joined{
		QueueID:      resp.QueueID,
		EntryID:      resp.EntryID,
		TicketNumber: resp.TicketNumber,
		PeopleAhead:  resp.PeopleAhead,
	}
}

// FromAdvance converts an advance response.
func FromAdvance(resp *queue.AdvanceQueueResponse) Advanced {
	return Advanced{
		Empty:         resp.Empty,
		QueueID:       resp.QueueID,
		EntryID:       resp.EntryID,
		TicketNumber:  resp.TicketNumber,
		UserID:        resp.UserID,
		UserName:      resp.UserName,
		CurrentNumber: resp.CurrentNumber,
		TotalInQueue:  resp.TotalInQueue,
	}
}

// FromLeave converts a leave response.
func FromLeave(resp *queue.LeaveQueueResponse) Left {
	return Left{EntryID: resp.EntryID, Status: resp.Status}
}

// FromTickets converts the caller's tickets.
func FromTickets(resp *queue.ListMyTicketsResponse) TicketList {
	out := TicketList{Tickets: make([]Ticket, len(resp.Tickets))}
	for i, t := range resp.Tickets {
		out.Tickets[i] = Ticket{
			EntryID:              t.EntryID,
			QueueID:              t.QueueID,
			QueueName:            t.QueueName,
			LocationName:         t.LocationName,
			TicketNumber:         t.TicketNumber,
			CurrentNumber:        t.CurrentNumber,
			PeopleAhead:          t.PeopleAhead,
			EstimatedWaitMinutes: t.EstimatedWaitMinutes,
			EntryTime:            t.EntryTime,
		}
	}
	return out
}

// FromWaiting converts the operator waiting list.
func FromWaiting(resp *queue.ListWaitingResponse) WaitingList {
	out := WaitingList{
		QueueID:       resp.QueueID,
		CurrentNumber: resp.CurrentNumber,
		Entries:       make([]WaitingEntry, len(resp.Entries)),
	}
	for i, e := range resp.Entries {
		out.Entries[i] = WaitingEntry{
			EntryID:      e.EntryID,
			TicketNumber: e.TicketNumber,
			UserID:       e.UserID,
			UserName:     e.UserName,
			EntryTime:    e.EntryTime,
		}
	}
	return out
}
