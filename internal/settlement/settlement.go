// Package settlement delivers completed-match events from the outbox to the
// systems that settle a match: the points ledger, activity history and the
// event stream.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/pairplay/duet/internal/match"
)

// Consumer must be idempotent per match id. Events are delivered at least
// once, so the same event can arrive again after a partial failure.
type Consumer interface {
	Name() string
	Consume(ctx context.Context, ev match.CompletionEvent) error
}

// Dispatcher fans an event out to every consumer. All consumers run even
// when an earlier one fails.
type Dispatcher struct {
	consumers []Consumer
}

func NewDispatcher(consumers ...Consumer) *Dispatcher {
	return &Dispatcher{consumers: consumers}
}

func (d *Dispatcher) Consumers() []string {
	names := make([]string, len(d.consumers))
	for i, c := range d.consumers {
		names[i] = c.Name()
	}
	return names
}

func (d *Dispatcher) Deliver(ctx context.Context, ev match.CompletionEvent) error {
	var errs []error
	for _, c := range d.consumers {
		if err := c.Consume(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}
