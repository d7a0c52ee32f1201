package grpc

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"grpc-queue-service/internal/adapter/grpc/queuepb"
	"grpc-queue-service/internal/adapter/identity"
	"grpc-queue-service/internal/adapter/presenter"
	"grpc-queue-service/internal/usecase/queue"
	apperrors "grpc-queue-service/pkg/errors"
	"grpc-queue-service/pkg/logger"
)

// queueRef addresses a queue.
type queueRef struct {
	QueueID string `json:"queueId"`
}

// entryRef addresses an entry of a queue.
type entryRef struct {
	QueueID string `json:"queueId"`
	EntryID string `json:"entryId"`
}

// QueueServiceServer implements the gRPC queue service
type QueueServiceServer struct {
	uc  queue.Service
	log *zap.Logger
}

var _ queuepb.QueueServiceServer = (*QueueServiceServer)(nil)

// NewQueueServiceServer creates a new gRPC queue service server
func NewQueueServiceServer(uc queue.Service, log *zap.Logger) *QueueServiceServer {
	return &QueueServiceServer{uc: uc, log: log}
}

// CreateQueue handles gRPC CreateQueue request
func (s *QueueServiceServer) CreateQueue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in presenter.CreateQueueBody
	if err := s.decode(ctx, req, &in); err != nil {
		return nil, err
	}

	resp, err := s.uc.CreateQueue(ctx, in.ToCreateRequest())
	if err != nil {
		return nil, err
	}
	return queuepb.Encode(presenter.FromQueue(resp.Queue))
}

// GetQueue handles gRPC GetQueue request
func (s *QueueServiceServer) GetQueue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in queueRef
	if err := s.decode(ctx, req, &in); err != nil {
		return nil, err
	}

	resp, err := s.uc.GetQueue(ctx, queue.GetQueueRequest{QueueID: in.QueueID})
	if err != nil {
		return nil, err
	}
	return queuepb.Encode(presenter.FromQueue(resp.Queue))
}

// ListQueues handles gRPC ListQueues request
func (s *QueueServiceServer) ListQueues(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	resp, err := s.uc.ListQueues(ctx, queue.ListQueuesRequest{})
	if err != nil {
		return nil, err
	}
	return queuepb.Encode(presenter.FromQueues(resp))
}

// JoinQueue handles gRPC JoinQueue request. The caller comes from metadata.
func (s *QueueServiceServer) JoinQueue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, ok := identity.FromContext(ctx)
	if !ok {
		return nil, apperrors.ErrUnauthenticated
	}
	var in queueRef
	if err := s.decode(ctx, req, &in); err != nil {
		return nil, err
	}

	resp, err := s.uc.JoinQueue(ctx, queue.JoinQueueRequest{
		QueueID:  in.QueueID,
		UserID:   caller.UserID,
		UserName: caller.UserName,
	})
	if err != nil {
		return nil, err
	}
	return queuepb.Encode(presenter.FromJoin(resp))
}

// AdvanceQueue handles gRPC AdvanceQueue request
func (s *QueueServiceServer) AdvanceQueue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in queueRef
	if err := s.decode(ctx, req, &in); err != nil {
		return nil, err
	}

	resp, err := s.uc.AdvanceQueue(ctx, queue.AdvanceQueueRequest{QueueID: in.QueueID})
	if err != nil {
		return nil, err
	}
	return queuepb.Encode(presenter.FromAdvance(resp))
}

// LeaveQueue handles gRPC LeaveQueue request
func (s *QueueServiceServer) LeaveQueue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, ok := identity.FromContext(ctx)
	if !ok {
		return nil, apperrors.ErrUnauthenticated
	}
	var in entryRef
	if err := s.decode(ctx, req, &in); err != nil {
		return nil, err
	}

	resp, err := s.uc.LeaveQueue(ctx, queue.LeaveQueueRequest{
		QueueID: in.QueueID,
		EntryID: in.EntryID,
		UserID:  caller.UserID,
	})
	if err != nil {
		return nil, err
	}
	return queuepb.Encode(presenter.FromLeave(resp))
}

// ListMyTickets handles gRPC ListMyTickets request
func (s *QueueServiceServer) ListMyTickets(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	caller, ok := identity.FromContext(ctx)
	if !ok {
		return nil, apperrors.ErrUnauthenticated
	}

	resp, err := s.uc.ListMyTickets(ctx, queue.ListMyTicketsRequest{UserID: caller.UserID})
	if err != nil {
		return nil, err
	}
	return queuepb.Encode(presenter.FromTickets(resp))
}

// ListWaiting handles gRPC ListWaiting request
func (s *QueueServiceServer) ListWaiting(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in queueRef
	if err := s.decode(ctx, req, &in); err != nil {
		return nil, err
	}

	resp, err := s.uc.ListWaiting(ctx, queue.ListWaitingRequest{QueueID: in.QueueID})
	if err != nil {
		return nil, err
	}
	return queuepb.Encode(presenter.FromWaiting(resp))
}

func (s *QueueServiceServer) decode(ctx context.Context, req *structpb.Struct, v any) error {
	if err := queuepb.Decode(req, v); err != nil {
		logger.WithContext(ctx, s.log).Warn("malformed request", zap.Error(err))
		return apperrors.NewValidationError("", "malformed request body")
	}
	return nil
}
