package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	domain "grpc-queue-service/internal/domain/queue"
	apperrors "grpc-queue-service/pkg/errors"
	"grpc-queue-service/pkg/logger"
	"grpc-queue-service/pkg/security"
)

const (
	opCreate  = "create"
	opJoin    = "join"
	opAdvance = "advance"
	opLeave   = "leave"
)

// Repository defines the queue state store. IssueTicket, CallNext and
// CancelEntry each run one atomic attempt against the queue counters and
// the affected entries: either everything commits or nothing does. An
// attempt that lost against a concurrent writer returns an error matching
// apperrors.ErrConflict and may be retried from scratch.
type Repository interface {
	CreateQueue(ctx context.Context, q *domain.Queue) error                                     // Persist a new queue
	GetQueue(ctx context.Context, queueID string) (*domain.Queue, error)                        // Retrieve queue by ID
	ListQueues(ctx context.Context) ([]domain.Queue, error)                                     // List queues ordered by name
	GetEntry(ctx context.Context, queueID, entryID string) (*domain.Entry, error)               // Retrieve entry by ID
	FindWaitingEntry(ctx context.Context, queueID, userID string) (*domain.Entry, error)        // Waiting entry of a user, nil if none
	IssueTicket(ctx context.Context, p IssueTicketParams) (*domain.Queue, *domain.Entry, error) // Sequence a ticket and record the entry
	// CallNext moves the queue to its next waiting ticket. With nothing to
	// call it returns the unchanged queue and apperrors.ErrQueueEmpty.
	CallNext(ctx context.Context, queueID string, now time.Time) (*domain.Queue, *domain.Entry, error)
	CancelEntry(ctx context.Context, p CancelEntryParams) (*domain.Queue, *domain.Entry, error) // Cancel a waiting entry
	// ListWaiting returns waiting entries with a ticket after the current
	// number, ascending, read from the same snapshot as the returned queue.
	ListWaiting(ctx context.Context, queueID string) (*domain.Queue, []domain.Entry, error)
	ListWaitingByUser(ctx context.Context, userID string) ([]domain.Entry, error) // Waiting entries of a user across queues
}

// IssueTicketParams carries a join attempt to the store.
type IssueTicketParams struct {
	EntryID  string
	QueueID  string
	UserID   string
	UserName string
	Now      time.Time
}

// CancelEntryParams carries a leave attempt to the store. Entries owned by
// another user are reported as not found.
type CancelEntryParams struct {
	QueueID string
	EntryID string
	UserID  string
	Now     time.Time
}

// Notifier publishes committed queue changes. Failures never undo a commit.
type Notifier interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Metrics records coordinator outcomes.
type Metrics interface {
	ObserveOperation(operation, outcome string, elapsed time.Duration)
	IncConflict(operation string)
	SetWaiting(queueID string, waiting int64)
}

// RetryPolicy bounds the optimistic retry loops.
type RetryPolicy struct {
	JoinAttempts    int
	AdvanceAttempts int
	LeaveAttempts   int
	Backoff         time.Duration // base wait between attempts, scaled by attempt and jittered
}

// DefaultRetryPolicy returns the budgets used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		JoinAttempts:    5,
		AdvanceAttempts: 5,
		LeaveAttempts:   5,
		Backoff:         10 * time.Millisecond,
	}
}

// Usecase implements the queue coordinator and the ticket views.
type Usecase struct {
	repo     Repository          // Queue state store
	notifier Notifier            // Post-commit event sink
	metrics  Metrics             // Outcome recorder
	log      *zap.Logger         // Logger for structured logging
	validate *validator.Validate // Validator for request validation
	retry    RetryPolicy
	now      func() time.Time
	newID    func() string
}

// Option configures a Usecase.
type Option func(*Usecase)

// WithNotifier sets the event sink. Nil keeps events unpublished.
func WithNotifier(n Notifier) Option {
	return func(uc *Usecase) {
		if n != nil {
			uc.notifier = n
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(uc *Usecase) {
		if m != nil {
			uc.metrics = m
		}
	}
}

// WithRetryPolicy overrides the retry budgets. Non-positive budgets fall
// back to the defaults.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(uc *Usecase) {
		def := DefaultRetryPolicy()
		if p.JoinAttempts <= 0 {
			p.JoinAttempts = def.JoinAttempts
		}
		if p.AdvanceAttempts <= 0 {
			p.AdvanceAttempts = def.AdvanceAttempts
		}
		if p.LeaveAttempts <= 0 {
			p.LeaveAttempts = def.LeaveAttempts
		}
		if p.Backoff < 0 {
			p.Backoff = 0
		}
		uc.retry = p
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(uc *Usecase) { uc.now = now }
}

// WithIDGenerator replaces the uuid generator used for queue and entry ids.
func WithIDGenerator(newID func() string) Option {
	return func(uc *Usecase) { uc.newID = newID }
}

// New creates a new instance of Usecase with the provided repository and logger.
func New(r Repository, log *zap.Logger, opts ...Option) *Usecase {
	uc := &Usecase{
		repo:     r,
		notifier: noopNotifier{},
		metrics:  noopMetrics{},
		log:      log,
		validate: validator.New(),
		retry:    DefaultRetryPolicy(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// formatValidationError converts validator.ValidationErrors into a human-readable error.
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return apperrors.NewValidationError("", err.Error())
	}

	var messages []string
	for _, e := range validationErrors {
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", e.Field()))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s characters", e.Field(), e.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param()))
		case "gte":
			messages = append(messages, fmt.Sprintf("%s must be at least %s", e.Field(), e.Param()))
		case "lte":
			messages = append(messages, fmt.Sprintf("%s must be at most %s", e.Field(), e.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid", e.Field()))
		}
	}
	return apperrors.NewValidationError("", strings.Join(messages, ", "))
}

func (uc *Usecase) validateStruct(ctx context.Context, in any) error {
	if err := uc.validate.StructCtx(ctx, in); err != nil {
		logger.WithContext(ctx, uc.log).Warn("validate failed", zap.Error(err))
		return formatValidationError(err)
	}
	return nil
}

func validateIDs(ids map[string]string) error {
	for field, id := range ids {
		if err := security.ValidateIdentifier(id); err != nil {
			return apperrors.NewValidationError(field, err.Error())
		}
	}
	return nil
}

func sanitizeName(field, name string) (string, error) {
	clean, err := security.SanitizeDisplayName(name)
	if err != nil {
		return "", apperrors.NewValidationError(field, err.Error())
	}
	return clean, nil
}

// CreateQueue opens a new queue with zeroed counters.
func (uc *Usecase) CreateQueue(ctx context.Context, in CreateQueueRequest) (*CreateQueueResponse, error) {
	log := logger.WithContext(ctx, uc.log)
	log.Info("creating queue", zap.String("organization_id", in.OrganizationID), zap.String("name", in.Name))
	start := time.Now()

	resp, err := uc.createQueue(ctx, in)
	uc.observe(opCreate, start, err)
	if err != nil {
		log.Warn("create queue failed", zap.String("name", in.Name), zap.Error(err))
		return nil, err
	}
	return resp, nil
}

func (uc *Usecase) createQueue(ctx context.Context, in CreateQueueRequest) (*CreateQueueResponse, error) {
	if err := uc.validateStruct(ctx, in); err != nil {
		return nil, err
	}
	if err := validateIDs(map[string]string{"OrganizationID": in.OrganizationID}); err != nil {
		return nil, err
	}

	name, err := sanitizeName("Name", in.Name)
	if err != nil {
		return nil, err
	}
	location, err := sanitizeName("LocationName", in.LocationName)
	if err != nil {
		return nil, err
	}
	if strings.ContainsAny(in.Description, "<>") {
		return nil, apperrors.NewValidationError("Description", "contains invalid characters")
	}

	q, err := domain.NewQueue(uc.newID(), in.OrganizationID, name, in.Description, location, in.AverageWaitTime, uc.now())
	if err != nil {
		return nil, err
	}
	if err := uc.repo.CreateQueue(ctx, q); err != nil {
		return nil, fmt.Errorf("create queue: %w", err)
	}
	return &CreateQueueResponse{Queue: toQueueDTO(q)}, nil
}

// GetQueue retrieves a queue snapshot.
func (uc *Usecase) GetQueue(ctx context.Context, in GetQueueRequest) (*GetQueueResponse, error) {
	if err := uc.validateStruct(ctx, in); err != nil {
		return nil, err
	}

	q, err := uc.repo.GetQueue(ctx, in.QueueID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrQueueNotFound) {
			logger.WithContext(ctx, uc.log).Error("failed to get queue", zap.String("queue_id", in.QueueID), zap.Error(err))
		}
		return nil, err
	}
	return &GetQueueResponse{Queue: toQueueDTO(q)}, nil
}

// ListQueues retrieves every queue ordered by name.
func (uc *Usecase) ListQueues(ctx context.Context, _ ListQueuesRequest) (*ListQueuesResponse, error) {
	queues, err := uc.repo.ListQueues(ctx)
	if err != nil {
		logger.WithContext(ctx, uc.log).Error("failed to list queues", zap.Error(err))
		return nil, err
	}

	out := make([]Queue, len(queues))
	for i := range queues {
		out[i] = toQueueDTO(&queues[i])
	}
	return &ListQueuesResponse{Queues: out}, nil
}

// JoinQueue issues the caller a ticket. The pre-check for an existing
// waiting entry is best effort; the ticket and the entry are committed
// together or not at all.
func (uc *Usecase) JoinQueue(ctx context.Context, in JoinQueueRequest) (*JoinQueueResponse, error) {
	log := logger.WithContext(ctx, uc.log).With(zap.String("queue_id", in.QueueID), zap.String("user_id", in.UserID))
	log.Info("joining queue")
	start := time.Now()

	resp, err := uc.joinQueue(ctx, in)
	uc.observe(opJoin, start, err)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrAlreadyInQueue), errors.Is(err, apperrors.ErrQueueNotFound), errors.Is(err, apperrors.ErrInvalidArgument):
			log.Warn("join rejected", zap.Error(err))
		default:
			log.Error("failed to join queue", zap.Error(err))
		}
		return nil, err
	}

	log.Info("ticket issued", zap.Int64("ticket_number", resp.TicketNumber), zap.String("entry_id", resp.EntryID))
	return resp, nil
}

func (uc *Usecase) joinQueue(ctx context.Context, in JoinQueueRequest) (*JoinQueueResponse, error) {
	if err := uc.validateStruct(ctx, in); err != nil {
		return nil, err
	}
	if err := validateIDs(map[string]string{"QueueID": in.QueueID, "UserID": in.UserID}); err != nil {
		return nil, err
	}
	userName, err := sanitizeName("UserName", in.UserName)
	if err != nil {
		return nil, err
	}

	existing, err := uc.repo.FindWaitingEntry(ctx, in.QueueID, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("check existing entry: %w", err)
	}
	if existing != nil {
		return nil, apperrors.ErrAlreadyInQueue
	}

	params := IssueTicketParams{
		EntryID:  uc.newID(),
		QueueID:  in.QueueID,
		UserID:   in.UserID,
		UserName: userName,
	}

	var (
		q     *domain.Queue
		entry *domain.Entry
	)
	err = uc.withRetry(ctx, opJoin, uc.retry.JoinAttempts, func() error {
		var err error
		params.Now = uc.now()
		q, entry, err = uc.repo.IssueTicket(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}

	uc.afterCommit(ctx, domain.EventTicketIssued, q, entry)
	return &JoinQueueResponse{
		QueueID:      q.ID,
		EntryID:      entry.ID,
		TicketNumber: entry.TicketNumber,
		PeopleAhead:  q.PeopleAhead(entry.TicketNumber),
	}, nil
}

// AdvanceQueue calls the smallest waiting ticket after the current number.
// An empty queue is a normal result, not an error. Conflicts with
// concurrent advances are retried against a fresh read so no ticket is
// called twice or skipped.
func (uc *Usecase) AdvanceQueue(ctx context.Context, in AdvanceQueueRequest) (*AdvanceQueueResponse, error) {
	log := logger.WithContext(ctx, uc.log).With(zap.String("queue_id", in.QueueID))
	log.Info("advancing queue")
	start := time.Now()

	resp, err := uc.advanceQueue(ctx, in)
	switch {
	case err != nil:
		uc.observe(opAdvance, start, err)
		log.Error("failed to advance queue", zap.Error(err))
		return nil, err
	case resp.Empty:
		uc.metrics.ObserveOperation(opAdvance, "empty", time.Since(start))
		log.Info("queue empty", zap.Int64("current_number", resp.CurrentNumber))
	default:
		uc.observe(opAdvance, start, nil)
		log.Info("ticket called", zap.Int64("ticket_number", resp.TicketNumber), zap.String("entry_id", resp.EntryID))
	}
	return resp, nil
}

func (uc *Usecase) advanceQueue(ctx context.Context, in AdvanceQueueRequest) (*AdvanceQueueResponse, error) {
	if err := uc.validateStruct(ctx, in); err != nil {
		return nil, err
	}

	var (
		q     *domain.Queue
		entry *domain.Entry
	)
	err := uc.withRetry(ctx, opAdvance, uc.retry.AdvanceAttempts, func() error {
		var err error
		q, entry, err = uc.repo.CallNext(ctx, in.QueueID, uc.now())
		return err
	})
	if errors.Is(err, apperrors.ErrQueueEmpty) {
		resp := &AdvanceQueueResponse{Empty: true, QueueID: in.QueueID}
		if q != nil {
			resp.CurrentNumber = q.CurrentNumber
			resp.TotalInQueue = q.TotalInQueue
		}
		return resp, nil
	}
	if err != nil {
		return nil, err
	}

	uc.afterCommit(ctx, domain.EventTicketCalled, q, entry)
	return &AdvanceQueueResponse{
		QueueID:       q.ID,
		EntryID:       entry.ID,
		TicketNumber:  entry.TicketNumber,
		UserID:        entry.UserID,
		UserName:      entry.UserName,
		CurrentNumber: q.CurrentNumber,
		TotalInQueue:  q.TotalInQueue,
	}, nil
}

// LeaveQueue cancels the caller's waiting entry. Its ticket number is not reused.
func (uc *Usecase) LeaveQueue(ctx context.Context, in LeaveQueueRequest) (*LeaveQueueResponse, error) {
	log := logger.WithContext(ctx, uc.log).With(zap.String("queue_id", in.QueueID), zap.String("entry_id", in.EntryID))
	log.Info("leaving queue")
	start := time.Now()

	resp, err := uc.leaveQueue(ctx, in)
	uc.observe(opLeave, start, err)
	if err != nil {
		log.Warn("leave failed", zap.Error(err))
		return nil, err
	}
	return resp, nil
}

func (uc *Usecase) leaveQueue(ctx context.Context, in LeaveQueueRequest) (*LeaveQueueResponse, error) {
	if err := uc.validateStruct(ctx, in); err != nil {
		return nil, err
	}
	if err := validateIDs(map[string]string{"QueueID": in.QueueID, "EntryID": in.EntryID, "UserID": in.UserID}); err != nil {
		return nil, err
	}

	params := CancelEntryParams{QueueID: in.QueueID, EntryID: in.EntryID, UserID: in.UserID}
	var (
		q     *domain.Queue
		entry *domain.Entry
	)
	err := uc.withRetry(ctx, opLeave, uc.retry.LeaveAttempts, func() error {
		var err error
		params.Now = uc.now()
		q, entry, err = uc.repo.CancelEntry(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}

	uc.afterCommit(ctx, domain.EventEntryCancelled, q, entry)
	return &LeaveQueueResponse{EntryID: entry.ID, Status: string(entry.Status)}, nil
}

// afterCommit runs the side effects of a committed change.
func (uc *Usecase) afterCommit(ctx context.Context, t domain.EventType, q *domain.Queue, e *domain.Entry) {
	uc.metrics.SetWaiting(q.ID, q.TotalInQueue)

	ev := domain.NewEvent(t, q, e, uc.now())
	if err := uc.notifier.Publish(ctx, ev); err != nil {
		logger.WithContext(ctx, uc.log).Warn("failed to publish queue event",
			zap.String("type", string(t)), zap.String("queue_id", q.ID), zap.Error(err))
	}
}

func (uc *Usecase) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(apperrors.Code(err).String())
	}
	uc.metrics.ObserveOperation(op, outcome, time.Since(start))
}

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, domain.Event) error { return nil }

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, string, time.Duration) {}
func (noopMetrics) IncConflict(string)                             {}
func (noopMetrics) SetWaiting(string, int64)                       {}
