package settlement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pairplay/duet/internal/match"
)

const (
	StreamKey = "duet:match-completed"
	seenTTL   = 7 * 24 * time.Hour
)

type streamClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// StreamPublisher appends completion events to a Redis stream. A marker key
// per match keeps redeliveries from adding the event twice.
type StreamPublisher struct {
	client streamClient
}

func NewStreamPublisher(client streamClient) *StreamPublisher {
	return &StreamPublisher{client: client}
}

func (p *StreamPublisher) Name() string { return "event_stream" }

func (p *StreamPublisher) Consume(ctx context.Context, ev match.CompletionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	seen := StreamKey + ":seen:" + ev.MatchID
	fresh, err := p.client.SetNX(ctx, seen, 1, seenTTL).Result()
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		Values: map[string]any{
			"match_id":   ev.MatchID,
			"pairing_id": ev.PairingID,
			"kind":       string(ev.Kind),
			"payload":    string(payload),
		},
	}).Err()
	if err != nil {
		// Release the marker so the next attempt publishes.
		p.client.Del(context.WithoutCancel(ctx), seen)
		return err
	}
	return nil
}
