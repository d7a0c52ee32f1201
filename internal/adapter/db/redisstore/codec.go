package redisstore

import (
	"fmt"
	"strconv"
	"time"

	domain "grpc-queue-service/internal/domain/queue"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func queueFields(q *domain.Queue) map[string]any {
	return map[string]any{
		"id":                 q.ID,
		"organization_id":    q.OrganizationID,
		"name":               q.Name,
		"description":        q.Description,
		"location_name":      q.LocationName,
		"last_ticket_number": q.LastTicketNumber,
		"current_number":     q.CurrentNumber,
		"total_in_queue":     q.TotalInQueue,
		"average_wait_time":  q.AverageWaitTime,
		"version":            q.Version,
		"created_at":         formatTime(q.CreatedAt),
		"updated_at":         formatTime(q.UpdatedAt),
	}
}

func counterFields(q *domain.Queue) map[string]any {
	return map[string]any{
		"last_ticket_number": q.LastTicketNumber,
		"current_number":     q.CurrentNumber,
		"total_in_queue":     q.TotalInQueue,
		"version":            q.Version,
		"updated_at":         formatTime(q.UpdatedAt),
	}
}

func decodeQueue(m map[string]string) (*domain.Queue, error) {
	q := &domain.Queue{
		ID:             m["id"],
		OrganizationID: m["organization_id"],
		Name:           m["name"],
		Description:    m["description"],
		LocationName:   m["location_name"],
	}

	ints := []struct {
		field string
		dst   *int64
	}{
		{"last_ticket_number", &q.LastTicketNumber},
		{"current_number", &q.CurrentNumber},
		{"total_in_queue", &q.TotalInQueue},
		{"average_wait_time", &q.AverageWaitTime},
		{"version", &q.Version},
	}
	for _, f := range ints {
		v, err := strconv.ParseInt(m[f.field], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode queue %s field %s: %w", q.ID, f.field, err)
		}
		*f.dst = v
	}

	var err error
	if q.CreatedAt, err = parseTime(m["created_at"]); err != nil {
		return nil, fmt.Errorf("decode queue %s created_at: %w", q.ID, err)
	}
	if q.UpdatedAt, err = parseTime(m["updated_at"]); err != nil {
		return nil, fmt.Errorf("decode queue %s updated_at: %w", q.ID, err)
	}
	return q, nil
}

func entryFields(e *domain.Entry) map[string]any {
	calledAt := ""
	if e.CalledAt != nil {
		calledAt = formatTime(*e.CalledAt)
	}
	return map[string]any{
		"id":            e.ID,
		"queue_id":      e.QueueID,
		"user_id":       e.UserID,
		"user_name":     e.UserName,
		"ticket_number": e.TicketNumber,
		"status":        string(e.Status),
		"entry_time":    formatTime(e.EntryTime),
		"called_at":     calledAt,
		"updated_at":    formatTime(e.UpdatedAt),
	}
}

func decodeEntry(m map[string]string) (*domain.Entry, error) {
	e := &domain.Entry{
		ID:       m["id"],
		QueueID:  m["queue_id"],
		UserID:   m["user_id"],
		UserName: m["user_name"],
		Status:   domain.Status(m["status"]),
	}
	if !e.Status.IsValid() {
		return nil, fmt.Errorf("decode entry %s: unknown status %q", e.ID, m["status"])
	}

	var err error
	if e.TicketNumber, err = strconv.ParseInt(m["ticket_number"], 10, 64); err != nil {
		return nil, fmt.Errorf("decode entry %s ticket_number: %w", e.ID, err)
	}
	if e.EntryTime, err = parseTime(m["entry_time"]); err != nil {
		return nil, fmt.Errorf("decode entry %s entry_time: %w", e.ID, err)
	}
	if e.UpdatedAt, err = parseTime(m["updated_at"]); err != nil {
		return nil, fmt.Errorf("decode entry %s updated_at: %w", e.ID, err)
	}
	if s := m["called_at"]; s != "" {
		calledAt, err := parseTime(s)
		if err != nil {
			return nil, fmt.Errorf("decode entry %s called_at: %w", e.ID, err)
		}
		e.CalledAt = &calledAt
	}
	return e, nil
}
