// Package notify publishes committed queue events to external channels.
package notify

import (
	"context"
	"errors"

	domain "grpc-queue-service/internal/domain/queue"
)

// Publisher is a single event sink.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Fanout delivers every event to all of its publishers. A failing publisher
// does not stop delivery to the others.
type Fanout []Publisher

// Publish implements the usecase notifier.
func (f Fanout) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
