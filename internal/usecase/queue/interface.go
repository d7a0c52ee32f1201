package queue

import "context"

// Service defines the queue operations exposed to the transports.
type Service interface {
	CreateQueue(ctx context.Context, in CreateQueueRequest) (*CreateQueueResponse, error)
	GetQueue(ctx context.Context, in GetQueueRequest) (*GetQueueResponse, error)
	ListQueues(ctx context.Context, in ListQueuesRequest) (*ListQueuesResponse, error)
	JoinQueue(ctx context.Context, in JoinQueueRequest) (*JoinQueueResponse, error)
	AdvanceQueue(ctx context.Context, in AdvanceQueueRequest) (*AdvanceQueueResponse, error)
	LeaveQueue(ctx context.Context, in LeaveQueueRequest) (*LeaveQueueResponse, error)
	ListMyTickets(ctx context.Context, in ListMyTicketsRequest) (*ListMyTicketsResponse, error)
	ListWaiting(ctx context.Context, in ListWaitingRequest) (*ListWaitingResponse, error)
}

var _ Service = (*Usecase)(nil)
