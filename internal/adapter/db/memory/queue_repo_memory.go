package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	domain "grpc-queue-service/internal/domain/queue"
	usecase "grpc-queue-service/internal/usecase/queue"
	apperrors "grpc-queue-service/pkg/errors"
)

// QueueRepo is a mutex-guarded in-process store. Every write holds the lock
// for its whole read-modify-write, so attempts never conflict.
type QueueRepo struct {
	mu      sync.RWMutex
	queues  map[string]*domain.Queue
	entries map[string][]*domain.Entry // by queue id, ascending ticket number
}

// NewQueueRepo creates an empty in-memory queue store.
func NewQueueRepo() *QueueRepo {
	return &QueueRepo{
		queues:  make(map[string]*domain.Queue),
		entries: make(map[string][]*domain.Entry),
	}
}

var _ usecase.Repository = (*QueueRepo)(nil)

// CreateQueue stores a copy of q.
func (r *QueueRepo) CreateQueue(_ context.Context, q *domain.Queue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.queues[q.ID]; ok {
		return apperrors.NewAlreadyExistsError("queue", fmt.Sprintf("queue %s already exists", q.ID))
	}
	cp := *q
	r.queues[q.ID] = &cp
	return nil
}

// GetQueue returns a copy of the queue.
func (r *QueueRepo) GetQueue(_ context.Context, queueID string) (*domain.Queue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.queues[queueID]
	if !ok {
		return nil, apperrors.ErrQueueNotFound
	}
	cp := *q
	return &cp, nil
}

// ListQueues returns all queues ordered by name.
func (r *QueueRepo) ListQueues(_ context.Context) ([]domain.Queue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Queue, 0, len(r.queues))
	for _, q := range r.queues {
		out = append(out, *q)
	}
	slices.SortFunc(out, func(a, b domain.Queue) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// GetEntry returns a copy of one entry.
func (r *QueueRepo) GetEntry(_ context.Context, queueID, entryID string) (*domain.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e := r.findEntry(queueID, entryID)
	if e == nil {
		return nil, apperrors.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

// FindWaitingEntry returns the user's waiting entry in the queue, or nil.
func (r *QueueRepo) FindWaitingEntry(_ context.Context, queueID, userID string) (*domain.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e := r.waitingOf(queueID, userID); e != nil {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

// IssueTicket sequences the next ticket and appends the entry.
func (r *QueueRepo) IssueTicket(_ context.Context, p usecase.IssueTicketParams) (*domain.Queue, *domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.queues[p.QueueID]
	if !ok {
		return nil, nil, apperrors.ErrQueueNotFound
	}
	if r.waitingOf(p.QueueID, p.UserID) != nil {
		return nil, nil, apperrors.ErrAlreadyInQueue
	}

	q := *stored
	ticket, err := domain.NextTicket(&q, p.Now)
	if err != nil {
		return nil, nil, err
	}
	entry, err := domain.NewEntry(p.EntryID, p.QueueID, p.UserID, p.UserName, ticket, p.Now)
	if err != nil {
		return nil, nil, err
	}
	q.Version++

	*stored = q
	r.entries[p.QueueID] = append(r.entries[p.QueueID], entry)

	cp := *entry
	return &q, &cp, nil
}

// CallNext serves the smallest waiting ticket after the current number.
func (r *QueueRepo) CallNext(_ context.Context, queueID string, now time.Time) (*domain.Queue, *domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.queues[queueID]
	if !ok {
		return nil, nil, apperrors.ErrQueueNotFound
	}

	q := *stored
	var next *domain.Entry
	for _, e := range r.entries[queueID] {
		if e.IsWaiting() && e.TicketNumber > q.CurrentNumber {
			next = e
			break
		}
	}
	if next == nil {
		return &q, nil, apperrors.ErrQueueEmpty
	}

	if err := q.Call(next.TicketNumber, now); err != nil {
		return nil, nil, err
	}
	called := *next
	if err := called.TransitionTo(domain.StatusServing, now); err != nil {
		return nil, nil, err
	}
	q.Version++

	var (
		serving []*domain.Entry
		served  []domain.Entry
	)
	for _, e := range r.entries[queueID] {
		if e.Status != domain.StatusServing {
			continue
		}
		done := *e
		if err := done.TransitionTo(domain.StatusServed, now); err != nil {
			return nil, nil, fmt.Errorf("close entry %s: %w", e.ID, err)
		}
		serving = append(serving, e)
		served = append(served, done)
	}

	for i, e := range serving {
		*e = served[i]
	}
	*next = called
	*stored = q

	return &q, &called, nil
}

// CancelEntry cancels the user's waiting entry.
func (r *QueueRepo) CancelEntry(_ context.Context, p usecase.CancelEntryParams) (*domain.Queue, *domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.queues[p.QueueID]
	if !ok {
		return nil, nil, apperrors.ErrQueueNotFound
	}
	e := r.findEntry(p.QueueID, p.EntryID)
	if e == nil || e.UserID != p.UserID {
		return nil, nil, apperrors.ErrEntryNotFound
	}

	cancelled := *e
	if err := cancelled.TransitionTo(domain.StatusCancelled, p.Now); err != nil {
		return nil, nil, err
	}
	q := *stored
	q.Release(p.Now)
	q.Version++

	*e = cancelled
	*stored = q
	return &q, &cancelled, nil
}

// ListWaiting returns waiting entries after the current number in ticket order.
func (r *QueueRepo) ListWaiting(_ context.Context, queueID string) (*domain.Queue, []domain.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.queues[queueID]
	if !ok {
		return nil, nil, apperrors.ErrQueueNotFound
	}
	q := *stored

	var out []domain.Entry
	for _, e := range r.entries[queueID] {
		if e.IsWaiting() && e.TicketNumber > q.CurrentNumber {
			out = append(out, *e)
		}
	}
	return &q, out, nil
}

// ListWaitingByUser returns the user's waiting entries across queues.
func (r *QueueRepo) ListWaitingByUser(_ context.Context, userID string) ([]domain.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Entry
	for _, entries := range r.entries {
		for _, e := range entries {
			if e.UserID == userID && e.IsWaiting() {
				out = append(out, *e)
			}
		}
	}
	slices.SortFunc(out, func(a, b domain.Entry) int {
		return a.EntryTime.Compare(b.EntryTime)
	})
	return out, nil
}

func (r *QueueRepo) findEntry(queueID, entryID string) *domain.Entry {
	for _, e := range r.entries[queueID] {
		if e.ID == entryID {
			return e
		}
	}
	return nil
}

func (r *QueueRepo) waitingOf(queueID, userID string) *domain.Entry {
	for _, e := range r.entries[queueID] {
		if e.UserID == userID && e.IsWaiting() {
			return e
		}
	}
	return nil
}
