package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	domain "grpc-queue-service/internal/domain/queue"
	usecase "grpc-queue-service/internal/usecase/queue"
	apperrors "grpc-queue-service/pkg/errors"
)

// QueueRepoPG implements the queue Repository using GORM. Counter writes
// are optimistic: each attempt updates the queue row only if its version is
// still the one that was read, and reports apperrors.ErrConflict otherwise.
type QueueRepoPG struct {
	db  *gorm.DB    // GORM database connection
	log *zap.Logger // Structured logger for database operations
}

// NewQueueRepoPG creates a new instance of QueueRepoPG.
func NewQueueRepoPG(db *gorm.DB, log *zap.Logger) *QueueRepoPG {
	return &QueueRepoPG{db: db, log: log}
}

var _ usecase.Repository = (*QueueRepoPG)(nil)

// QueueSchema represents the database schema for the queues table.
type QueueSchema struct {
	ID               string    `gorm:"primaryKey;size:64"`
	OrganizationID   string    `gorm:"not null;size:128;index"`
	Name             string    `gorm:"not null;size:100;index"`
	Description      string    `gorm:"size:500"`
	LocationName     string    `gorm:"size:200"`
	LastTicketNumber int64     `gorm:"not null;default:0"`
	CurrentNumber    int64     `gorm:"not null;default:0"`
	TotalInQueue     int64     `gorm:"not null;default:0"`
	AverageWaitTime  int64     `gorm:"not null;default:0"`
	Version          int64     `gorm:"not null;default:0"` // Optimistic concurrency token
	CreatedAt        time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime:false"`
}

// TableName specifies the table name for the QueueSchema model.
func (QueueSchema) TableName() string {
	return "queues"
}

// QueueEntrySchema represents the database schema for the queue_entries table.
// Entries are never deleted.
type QueueEntrySchema struct {
	ID           string    `gorm:"primaryKey;size:64"`
	QueueID      string    `gorm:"not null;size:64;uniqueIndex:idx_entries_queue_ticket,priority:1;index:idx_entries_queue_status_ticket,priority:1"`
	UserID       string    `gorm:"not null;size:128;index"`
	UserName     string    `gorm:"not null;size:100"`
	TicketNumber int64     `gorm:"not null;uniqueIndex:idx_entries_queue_ticket,priority:2;index:idx_entries_queue_status_ticket,priority:3"`
	Status       string    `gorm:"not null;size:16;index:idx_entries_queue_status_ticket,priority:2"`
	EntryTime    time.Time `gorm:"not null"`
	CalledAt     *time.Time
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
}

// TableName specifies the table name for the QueueEntrySchema model.
func (QueueEntrySchema) TableName() string {
	return "queue_entries"
}

// Models lists the schemas to migrate.
func Models() []any {
	return []any{&QueueSchema{}, &QueueEntrySchema{}}
}

func (m QueueSchema) toDomain() *domain.Queue {
	return &domain.Queue{
		ID:               m.ID,
		OrganizationID:   m.OrganizationID,
		Name:             m.Name,
		Description:      m.Description,
		LocationName:     m.LocationName,
		LastTicketNumber: m.LastTicketNumber,
		CurrentNumber:    m.CurrentNumber,
		TotalInQueue:     m.TotalInQueue,
		AverageWaitTime:  m.AverageWaitTime,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func (m QueueEntrySchema) toDomain() *domain.Entry {
	return &domain.Entry{
		ID:           m.ID,
		QueueID:      m.QueueID,
		UserID:       m.UserID,
		UserName:     m.UserName,
		TicketNumber: m.TicketNumber,
		Status:       domain.Status(m.Status),
		EntryTime:    m.EntryTime,
		CalledAt:     m.CalledAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func entryModel(e *domain.Entry) *QueueEntrySchema {
	return &QueueEntrySchema{
		ID:           e.ID,
		QueueID:      e.QueueID,
		UserID:       e.UserID,
		UserName:     e.UserName,
		TicketNumber: e.TicketNumber,
		Status:       string(e.Status),
		EntryTime:    e.EntryTime,
		CalledAt:     e.CalledAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

// waitingAfter selects the entries Advance may call next, in the order it
// calls them. ListWaiting uses the same scope. Pair it with Take or Find:
// First would order by primary key ahead of ticket_number.
func waitingAfter(queueID string, current int64) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("queue_id = ? AND status = ? AND ticket_number > ?", queueID, string(domain.StatusWaiting), current).
			Order("ticket_number ASC")
	}
}

// CreateQueue inserts a new queue row.
func (r *QueueRepoPG) CreateQueue(ctx context.Context, q *domain.Queue) error {
	if q == nil {
		return errors.New("queue cannot be nil")
	}

	model := QueueSchema{
		ID:               q.ID,
		OrganizationID:   q.OrganizationID,
		Name:             q.Name,
		Description:      q.Description,
		LocationName:     q.LocationName,
		LastTicketNumber: q.LastTicketNumber,
		CurrentNumber:    q.CurrentNumber,
		TotalInQueue:     q.TotalInQueue,
		AverageWaitTime:  q.AverageWaitTime,
		Version:          q.Version,
		CreatedAt:        q.CreatedAt,
		UpdatedAt:        q.UpdatedAt,
	}

	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isDuplicateKey(err) {
			return apperrors.NewAlreadyExistsError("queue", fmt.Sprintf("queue %s already exists", q.ID))
		}
		r.log.Error("failed to create queue in db", zap.Error(err), zap.String("queue_id", q.ID))
		return fmt.Errorf("failed to create queue: %w", err)
	}

	r.log.Info("queue created in db", zap.String("queue_id", q.ID))
	return nil
}

// GetQueue retrieves a queue by ID.
func (r *QueueRepoPG) GetQueue(ctx context.Context, queueID string) (*domain.Queue, error) {
	model, err := loadQueue(r.db.WithContext(ctx), queueID)
	if err != nil {
		return nil, err
	}
	return model.toDomain(), nil
}

// ListQueues retrieves all queues ordered by name.
func (r *QueueRepoPG) ListQueues(ctx context.Context) ([]domain.Queue, error) {
	var models []QueueSchema
	if err := r.db.WithContext(ctx).Order("name ASC, id ASC").Find(&models).Error; err != nil {
		r.log.Error("failed to list queues from db", zap.Error(err))
		return nil, fmt.Errorf("failed to list queues: %w", err)
	}

	queues := make([]domain.Queue, len(models))
	for i, m := range models {
		queues[i] = *m.toDomain()
	}
	return queues, nil
}

// GetEntry retrieves one entry of a queue.
func (r *QueueRepoPG) GetEntry(ctx context.Context, queueID, entryID string) (*domain.Entry, error) {
	model, err := loadEntry(r.db.WithContext(ctx), queueID, entryID)
	if err != nil {
		return nil, err
	}
	return model.toDomain(), nil
}

// FindWaitingEntry returns the user's waiting entry in the queue, or nil.
func (r *QueueRepoPG) FindWaitingEntry(ctx context.Context, queueID, userID string) (*domain.Entry, error) {
	var model QueueEntrySchema
	err := r.db.WithContext(ctx).
		Where("queue_id = ? AND user_id = ? AND status = ?", queueID, userID, string(domain.StatusWaiting)).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("failed to find waiting entry", zap.Error(err), zap.String("queue_id", queueID))
		return nil, fmt.Errorf("failed to find waiting entry: %w", err)
	}
	return model.toDomain(), nil
}

// IssueTicket runs one join attempt in a transaction.
func (r *QueueRepoPG) IssueTicket(ctx context.Context, p usecase.IssueTicketParams) (*domain.Queue, *domain.Entry, error) {
	var (
		q     *domain.Queue
		entry *domain.Entry
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model, err := loadQueue(tx, p.QueueID)
		if err != nil {
			return err
		}

		var waiting int64
		if err := tx.Model(&QueueEntrySchema{}).
			Where("queue_id = ? AND user_id = ? AND status = ?", p.QueueID, p.UserID, string(domain.StatusWaiting)).
			Count(&waiting).Error; err != nil {
			return fmt.Errorf("failed to count waiting entries: %w", err)
		}
		if waiting > 0 {
			return apperrors.ErrAlreadyInQueue
		}

		q = model.toDomain()
		readVersion := q.Version
		ticket, err := domain.NextTicket(q, p.Now)
		if err != nil {
			return err
		}
		entry, err = domain.NewEntry(p.EntryID, p.QueueID, p.UserID, p.UserName, ticket, p.Now)
		if err != nil {
			return err
		}
		return commitJoin(tx, readVersion, q, entry)
	})
	if err != nil {
		return nil, nil, r.attemptError("issue ticket", p.QueueID, err)
	}

	r.log.Debug("ticket issued in db", zap.String("queue_id", q.ID), zap.Int64("ticket_number", entry.TicketNumber))
	return q, entry, nil
}

// commitJoin writes the bumped counters and the new entry.
func commitJoin(tx *gorm.DB, readVersion int64, q *domain.Queue, e *domain.Entry) error {
	if err := saveCounters(tx, readVersion, q); err != nil {
		return err
	}
	if err := tx.Create(entryModel(e)).Error; err != nil {
		switch {
		case isTicketCollision(err):
			return apperrors.ErrConflict
		case isDuplicateKey(err):
			return apperrors.NewAlreadyExistsError("queue entry", fmt.Sprintf("queue entry %s already exists", e.ID))
		}
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// CallNext runs one advance attempt in a transaction.
func (r *QueueRepoPG) CallNext(ctx context.Context, queueID string, now time.Time) (*domain.Queue, *domain.Entry, error) {
	var (
		q      *domain.Queue
		called *domain.Entry
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model, err := loadQueue(tx, queueID)
		if err != nil {
			return err
		}
		q = model.toDomain()
		readVersion := q.Version

		var next QueueEntrySchema
		err = tx.Scopes(waitingAfter(queueID, q.CurrentNumber)).Limit(1).Take(&next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrQueueEmpty
		}
		if err != nil {
			return fmt.Errorf("failed to select next entry: %w", err)
		}

		if err := q.Call(next.TicketNumber, now); err != nil {
			return err
		}
		called = next.toDomain()
		if err := called.TransitionTo(domain.StatusServing, now); err != nil {
			return err
		}
		return commitCall(tx, readVersion, q, called)
	})
	if errors.Is(err, apperrors.ErrQueueEmpty) {
		return q, nil, err
	}
	if err != nil {
		return nil, nil, r.attemptError("call next", queueID, err)
	}

	r.log.Debug("ticket called in db", zap.String("queue_id", queueID), zap.Int64("ticket_number", called.TicketNumber))
	return q, called, nil
}

// commitCall moves the pointer, closes out whoever was being served and
// marks the called entry as serving.
func commitCall(tx *gorm.DB, readVersion int64, q *domain.Queue, called *domain.Entry) error {
	if err := saveCounters(tx, readVersion, q); err != nil {
		return err
	}

	if err := tx.Model(&QueueEntrySchema{}).
		Where("queue_id = ? AND status = ?", q.ID, string(domain.StatusServing)).
		Updates(map[string]any{"status": string(domain.StatusServed), "updated_at": called.UpdatedAt}).Error; err != nil {
		return fmt.Errorf("failed to close served entries: %w", err)
	}

	return transitionEntry(tx, called, domain.StatusWaiting, map[string]any{
		"status":     string(called.Status),
		"called_at":  called.CalledAt,
		"updated_at": called.UpdatedAt,
	})
}

// CancelEntry runs one leave attempt in a transaction.
func (r *QueueRepoPG) CancelEntry(ctx context.Context, p usecase.CancelEntryParams) (*domain.Queue, *domain.Entry, error) {
	var (
		q     *domain.Queue
		entry *domain.Entry
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model, err := loadQueue(tx, p.QueueID)
		if err != nil {
			return err
		}
		em, err := loadEntry(tx, p.QueueID, p.EntryID)
		if err != nil {
			return err
		}
		if em.UserID != p.UserID {
			return apperrors.ErrEntryNotFound
		}

		entry = em.toDomain()
		if err := entry.TransitionTo(domain.StatusCancelled, p.Now); err != nil {
			return err
		}
		q = model.toDomain()
		readVersion := q.Version
		q.Release(p.Now)

		if err := saveCounters(tx, readVersion, q); err != nil {
			return err
		}
		return transitionEntry(tx, entry, domain.StatusWaiting, map[string]any{
			"status":     string(entry.Status),
			"updated_at": entry.UpdatedAt,
		})
	})
	if err != nil {
		return nil, nil, r.attemptError("cancel entry", p.QueueID, err)
	}
	return q, entry, nil
}

// ListWaiting returns the queue and its callable entries in ticket order.
func (r *QueueRepoPG) ListWaiting(ctx context.Context, queueID string) (*domain.Queue, []domain.Entry, error) {
	var (
		model  *QueueSchema
		models []QueueEntrySchema
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if model, err = loadQueue(tx, queueID); err != nil {
			return err
		}
		return tx.Scopes(waitingAfter(queueID, model.CurrentNumber)).Find(&models).Error
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrQueueNotFound) {
			return nil, nil, err
		}
		r.log.Error("failed to list waiting entries", zap.Error(err), zap.String("queue_id", queueID))
		return nil, nil, fmt.Errorf("failed to list waiting entries: %w", err)
	}

	entries := make([]domain.Entry, len(models))
	for i, m := range models {
		entries[i] = *m.toDomain()
	}
	return model.toDomain(), entries, nil
}

// ListWaitingByUser returns the user's waiting entries across queues.
func (r *QueueRepoPG) ListWaitingByUser(ctx context.Context, userID string) ([]domain.Entry, error) {
	var models []QueueEntrySchema
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, string(domain.StatusWaiting)).
		Order("entry_time ASC").
		Find(&models).Error; err != nil {
		r.log.Error("failed to list user entries", zap.Error(err), zap.String("user_id", userID))
		return nil, fmt.Errorf("failed to list user entries: %w", err)
	}

	entries := make([]domain.Entry, len(models))
	for i, m := range models {
		entries[i] = *m.toDomain()
	}
	return entries, nil
}

// saveCounters writes the queue counters if nobody committed since readVersion.
func saveCounters(tx *gorm.DB, readVersion int64, q *domain.Queue) error {
	res := tx.Model(&QueueSchema{}).
		Where("id = ? AND version = ?", q.ID, readVersion).
		Updates(map[string]any{
			"last_ticket_number": q.LastTicketNumber,
			"current_number":     q.CurrentNumber,
			"total_in_queue":     q.TotalInQueue,
			"version":            readVersion + 1,
			"updated_at":         q.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update queue counters: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrConflict
	}
	q.Version = readVersion + 1
	return nil
}

// transitionEntry applies updates to e only if it is still in status from.
func transitionEntry(tx *gorm.DB, e *domain.Entry, from domain.Status, updates map[string]any) error {
	res := tx.Model(&QueueEntrySchema{}).
		Where("id = ? AND status = ?", e.ID, string(from)).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

func loadQueue(db *gorm.DB, queueID string) (*QueueSchema, error) {
	var model QueueSchema
	if err := db.Where("id = ?", queueID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrQueueNotFound
		}
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}
	return &model, nil
}

func loadEntry(db *gorm.DB, queueID, entryID string) (*QueueEntrySchema, error) {
	var model QueueEntrySchema
	if err := db.Where("id = ? AND queue_id = ?", entryID, queueID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return &model, nil
}

// attemptError logs unexpected failures; expected outcomes pass through quietly.
func (r *QueueRepoPG) attemptError(op, queueID string, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrConflict):
		r.log.Debug("optimistic write lost", zap.String("op", op), zap.String("queue_id", queueID))
	case errors.Is(err, apperrors.ErrQueueNotFound),
		errors.Is(err, apperrors.ErrEntryNotFound),
		errors.Is(err, apperrors.ErrAlreadyInQueue),
		errors.Is(err, apperrors.ErrInvalidTransition):
	default:
		r.log.Error("queue transaction failed", zap.String("op", op), zap.String("queue_id", queueID), zap.Error(err))
	}
	return err
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

// isTicketCollision reports a clash on (queue_id, ticket_number), which means
// another join took the same number first.
func isTicketCollision(err error) bool {
	if !isDuplicateKey(err) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "idx_entries_queue_ticket") || strings.Contains(msg, "queue_entries.ticket_number")
}
