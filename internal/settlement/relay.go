package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pairplay/duet/internal/match"
)

// Outbox is the store side of the relay.
type Outbox interface {
	Pending(ctx context.Context, limit int) ([]match.OutboxEntry, error)
	MarkDelivered(ctx context.Context, matchID string) error
	MarkFailed(ctx context.Context, matchID string, cause error) error
}

const batchSize = 50

// Relay drains the outbox into the dispatcher. An entry is marked delivered
// only once every consumer accepted it.
type Relay struct {
	outbox     Outbox
	dispatcher *Dispatcher
	logger     *slog.Logger
	kick       chan struct{}
}

func NewRelay(outbox Outbox, dispatcher *Dispatcher, logger *slog.Logger) *Relay {
	return &Relay{
		outbox:     outbox,
		dispatcher: dispatcher,
		logger:     logger,
		kick:       make(chan struct{}, 1),
	}
}

// Notify asks the running relay for an early pass. It never blocks.
func (r *Relay) Notify() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Flush runs one pass over the pending entries and reports how many were
// delivered and how many failed.
func (r *Relay) Flush(ctx context.Context) (delivered, failed int, err error) {
	entries, err := r.outbox.Pending(ctx, batchSize)
	if err != nil {
		return 0, 0, err
	}
	for _, e := range entries {
		ev := e.Event
		if derr := r.dispatcher.Deliver(ctx, ev); derr != nil {
			failed++
			r.logger.Warn("completion delivery failed",
				"match_id", ev.MatchID,
				"attempts", e.Attempts+1,
				"error", derr,
			)
			if err := r.outbox.MarkFailed(ctx, ev.MatchID, derr); err != nil {
				return delivered, failed, err
			}
			continue
		}
		if err := r.outbox.MarkDelivered(ctx, ev.MatchID); err != nil {
			return delivered, failed, err
		}
		delivered++
		r.logger.Debug("completion delivered", "match_id", ev.MatchID)
	}
	return delivered, failed, nil
}

// Run flushes every interval and whenever Notify is called, until ctx ends.
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("outbox interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("outbox flush", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-r.kick:
		}
	}
}
