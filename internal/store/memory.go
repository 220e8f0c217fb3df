package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pairplay/duet/internal/match"
	"github.com/pairplay/duet/internal/puzzle"
)

// Memory is a map-backed store for development and tests. State is lost on
// restart. Stored matches are cloned in and out so callers never share them.
type Memory struct {
	mu      sync.RWMutex
	matches map[string]*match.Match
	outbox  map[string]*memoryOutbox
}

type memoryOutbox struct {
	entry     match.OutboxEntry
	delivered bool
}

func NewMemory() *Memory {
	return &Memory{
		matches: make(map[string]*match.Match),
		outbox:  make(map[string]*memoryOutbox),
	}
}

func (s *Memory) Ping(context.Context) error { return nil }

func (s *Memory) Create(_ context.Context, m *match.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[m.ID]; ok {
		return match.ErrConflict
	}
	if m.Status == match.StatusActive && s.active(m.PairingID, m.Kind) != nil {
		return match.ErrConflict
	}
	s.matches[m.ID] = m.Clone()
	return nil
}

func (s *Memory) Get(_ context.Context, id string) (*match.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.matches[id]; ok {
		return m.Clone(), nil
	}
	return nil, match.ErrMatchNotFound
}

func (s *Memory) Active(_ context.Context, pairingID string, kind puzzle.Kind) (*match.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m := s.active(pairingID, kind); m != nil {
		return m.Clone(), nil
	}
	return nil, match.ErrMatchNotFound
}

func (s *Memory) active(pairingID string, kind puzzle.Kind) *match.Match {
	for _, m := range s.matches {
		if m.PairingID == pairingID && m.Kind == kind && m.Status == match.StatusActive {
			return m
		}
	}
	return nil
}

// Update holds the write lock for the whole read-modify-write, so it never
// reports a conflict.
func (s *Memory) Update(_ context.Context, id string, fn func(*match.Match) error) (*match.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.matches[id]
	if !ok {
		return nil, match.ErrMatchNotFound
	}
	m := cur.Clone()
	if err := fn(m); err != nil {
		return nil, err
	}
	m.Version = cur.Version + 1

	if cur.Status == match.StatusActive {
		if ev, ok := match.NewCompletionEvent(m); ok {
			if _, dup := s.outbox[m.ID]; !dup {
				s.outbox[m.ID] = &memoryOutbox{entry: match.OutboxEntry{Event: ev, CreatedAt: time.Now().UTC()}}
			}
		}
	}
	s.matches[id] = m
	return m.Clone(), nil
}

func (s *Memory) Completions(_ context.Context, pairingID string, kind puzzle.Kind) ([]puzzle.Completion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []puzzle.Completion
	for _, m := range s.matches {
		if m.PairingID == pairingID && m.Kind == kind && m.Status == match.StatusCompleted && m.CompletedAt != nil {
			out = append(out, puzzle.Completion{PuzzleID: m.PuzzleID, CompletedAt: *m.CompletedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out, nil
}

func (s *Memory) Pending(_ context.Context, limit int) ([]match.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []match.OutboxEntry
	for _, o := range s.outbox {
		if !o.delivered {
			out = append(out, o.entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Event.MatchID < out[j].Event.MatchID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Memory) MarkDelivered(_ context.Context, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.outbox[matchID]; ok {
		o.delivered = true
		o.entry.LastError = ""
	}
	return nil
}

func (s *Memory) MarkFailed(_ context.Context, matchID string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.outbox[matchID]; ok {
		o.entry.Attempts++
		o.entry.LastError = cause.Error()
	}
	return nil
}
