// Package syncclient keeps a device's copy of a match current by polling the
// server. The server copy is authoritative: a changed record replaces the
// cached one whole.
package syncclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pairplay/duet/internal/match"
)

// Fetcher reads the caller's view of a match.
type Fetcher interface {
	Fetch(ctx context.Context, matchID string) (*match.View, error)
}

// Cache holds the last view per match.
type Cache struct {
	mu    sync.RWMutex
	views map[string]*match.View
}

func NewCache() *Cache {
	return &Cache{views: make(map[string]*match.View)}
}

func (c *Cache) Get(matchID string) (*match.View, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.views[matchID]
	return v, ok
}

// Replace stores v if it differs from the cached view and reports whether
// it did.
func (c *Cache) Replace(v *match.View) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	old, ok := c.views[v.Match.ID]
	if ok && !changed(old.Match, v.Match) {
		return false
	}
	c.views[v.Match.ID] = v
	return true
}

func changed(a, b *match.Match) bool {
	if a.TurnNumber != b.TurnNumber || a.Status != b.Status || a.Version != b.Version {
		return true
	}
	ad, _ := a.Progress()
	bd, _ := b.Progress()
	return ad != bd
}

type Poller struct {
	fetcher  Fetcher
	cache    *Cache
	interval time.Duration
	logger   *slog.Logger
}

func NewPoller(fetcher Fetcher, cache *Cache, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{fetcher: fetcher, cache: cache, interval: interval, logger: logger}
}

// Watch fetches matchID right away and then on every tick, calling onChange
// with each view that replaced the cache. It returns once the match is
// completed or ctx is done. Failed fetches are logged and retried on the
// next tick.
func (p *Poller) Watch(ctx context.Context, matchID string, onChange func(*match.View)) error {
	if p.interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", p.interval)
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if p.poll(ctx, matchID, onChange) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context, matchID string, onChange func(*match.View)) (done bool) {
	v, err := p.fetcher.Fetch(ctx, matchID)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("fetching match", "match_id", matchID, "error", err)
		}
		return false
	}
	if p.cache.Replace(v) && onChange != nil {
		onChange(v)
	}
	return v.Match.Status == match.StatusCompleted
}
