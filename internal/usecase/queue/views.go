package queue

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	domain "grpc-queue-service/internal/domain/queue"
	apperrors "grpc-queue-service/pkg/errors"
	"grpc-queue-service/pkg/logger"
)

// maxQueueLookups bounds concurrent queue reads while building My Tickets.
const maxQueueLookups = 8

// ListMyTickets returns the caller's waiting tickets across all queues,
// each with its position relative to the queue's current number. Tickets
// whose queue no longer exists are left out.
func (uc *Usecase) ListMyTickets(ctx context.Context, in ListMyTicketsRequest) (*ListMyTicketsResponse, error) {
	if err := uc.validateStruct(ctx, in); err != nil {
		return nil, err
	}
	log := logger.WithContext(ctx, uc.log).With(zap.String("user_id", in.UserID))

	entries, err := uc.repo.ListWaitingByUser(ctx, in.UserID)
	if err != nil {
		log.Error("failed to list user entries", zap.Error(err))
		return nil, err
	}

	queues, err := uc.loadQueues(ctx, entries)
	if err != nil {
		log.Error("failed to load queues for tickets", zap.Error(err))
		return nil, err
	}

	tickets := make([]Ticket, 0, len(entries))
	for _, e := range entries {
		q, ok := queues[e.QueueID]
		if !ok {
			log.Debug("dropping ticket of missing queue", zap.String("queue_id", e.QueueID), zap.String("entry_id", e.ID))
			continue
		}
		ahead := q.PeopleAhead(e.TicketNumber)
		tickets = append(tickets, Ticket{
			EntryID:              e.ID,
			QueueID:              q.ID,
			QueueName:            q.Name,
			LocationName:         q.LocationName,
			TicketNumber:         e.TicketNumber,
			CurrentNumber:        q.CurrentNumber,
			PeopleAhead:          ahead,
			EstimatedWaitMinutes: ahead * q.AverageWaitTime,
			EntryTime:            e.EntryTime,
		})
	}

	slices.SortFunc(tickets, func(a, b Ticket) int {
		if c := a.EntryTime.Compare(b.EntryTime); c != 0 {
			return c
		}
		return cmp.Compare(a.QueueID, b.QueueID)
	})

	return &ListMyTicketsResponse{Tickets: tickets}, nil
}

// loadQueues fetches the distinct queues referenced by entries concurrently.
func (uc *Usecase) loadQueues(ctx context.Context, entries []domain.Entry) (map[string]*domain.Queue, error) {
	var (
		mu     sync.Mutex
		queues = make(map[string]*domain.Queue)
		seen   = make(map[string]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxQueueLookups)
	for _, e := range entries {
		if _, ok := seen[e.QueueID]; ok {
			continue
		}
		seen[e.QueueID] = struct{}{}

		queueID := e.QueueID
		g.Go(func() error {
			q, err := uc.repo.GetQueue(gctx, queueID)
			if errors.Is(err, apperrors.ErrQueueNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("get queue %s: %w", queueID, err)
			}
			mu.Lock()
			queues[queueID] = q
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return queues, nil
}

// ListWaiting returns the operator's waiting list: exactly the candidates
// AdvanceQueue chooses from, in the order it calls them.
func (uc *Usecase) ListWaiting(ctx context.Context, in ListWaitingRequest) (*ListWaitingResponse, error) {
	if err := uc.validateStruct(ctx, in); err != nil {
		return nil, err
	}

	q, entries, err := uc.repo.ListWaiting(ctx, in.QueueID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrQueueNotFound) {
			logger.WithContext(ctx, uc.log).Error("failed to list waiting entries", zap.String("queue_id", in.QueueID), zap.Error(err))
		}
		return nil, err
	}

	out := make([]WaitingEntry, len(entries))
	for i, e := range entries {
		out[i] = WaitingEntry{
			EntryID:      e.ID,
			TicketNumber: e.TicketNumber,
			UserID:       e.UserID,
			UserName:     e.UserName,
			EntryTime:    e.EntryTime,
		}
	}

	return &ListWaitingResponse{QueueID: q.ID, CurrentNumber: q.CurrentNumber, Entries: out}, nil
}
