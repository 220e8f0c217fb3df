package puzzle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Completion is one finished match on a puzzle.
type Completion struct {
	PuzzleID    string
	CompletedAt time.Time
}

// History reports a pairing's finished matches of one kind.
type History interface {
	Completions(ctx context.Context, pairingID string, kind Kind) ([]Completion, error)
}

// Assignment names the puzzle a new match should use.
type Assignment struct {
	Kind     Kind
	PuzzleID string
	Branch   string
}

// CooldownPolicy limits a pairing to Batch completions per Window for each kind.
// A zero Batch disables the limit.
type CooldownPolicy struct {
	Batch  int
	Window time.Duration
}

// Catalog picks puzzles for pairings and serves parsed definitions.
type Catalog struct {
	src     Source
	history History
	branch  string
	policy  CooldownPolicy
	now     func() time.Time

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]*Definition
}

func NewCatalog(src Source, history History, branch string, policy CooldownPolicy) *Catalog {
	return &Catalog{
		src:     src,
		history: history,
		branch:  branch,
		policy:  policy,
		now:     time.Now,
		cache:   make(map[string]*Definition),
	}
}

// NextPuzzle returns the first puzzle of kind the pairing has not completed, in
// id order. When every puzzle has been played it returns the one completed
// longest ago.
func (c *Catalog) NextPuzzle(ctx context.Context, pairingID string, kind Kind) (Assignment, error) {
	done, err := c.history.Completions(ctx, pairingID, kind)
	if err != nil {
		return Assignment{}, fmt.Errorf("load completions: %w", err)
	}
	if err := c.checkCooldown(kind, done); err != nil {
		return Assignment{}, err
	}

	ids, err := c.src.List(ctx, kind, c.branch)
	if err != nil {
		return Assignment{}, err
	}
	if len(ids) == 0 {
		return Assignment{}, fmt.Errorf("%w: no %s puzzles on branch %s", ErrPuzzleNotFound, kind, c.branch)
	}

	last := make(map[string]time.Time, len(done))
	for _, d := range done {
		if d.CompletedAt.After(last[d.PuzzleID]) {
			last[d.PuzzleID] = d.CompletedAt
		}
	}

	pick := ""
	var oldest time.Time
	for _, id := range ids {
		at, played := last[id]
		if !played {
			pick = id
			break
		}
		if pick == "" || at.Before(oldest) {
			pick, oldest = id, at
		}
	}
	return Assignment{Kind: kind, PuzzleID: pick, Branch: c.branch}, nil
}

func (c *Catalog) checkCooldown(kind Kind, done []Completion) error {
	if c.policy.Batch <= 0 || c.policy.Window <= 0 {
		return nil
	}
	since := c.now().Add(-c.policy.Window)
	var recent []time.Time
	for _, d := range done {
		if d.CompletedAt.After(since) {
			recent = append(recent, d.CompletedAt)
		}
	}
	if len(recent) < c.policy.Batch {
		return nil
	}
	sort.Slice(recent, func(i, j int) bool { return recent[i].Before(recent[j]) })
	return &CooldownError{
		Kind:    kind,
		RetryAt: recent[len(recent)-c.policy.Batch].Add(c.policy.Window),
	}
}

// Load returns the parsed definition, reading it from the source once.
func (c *Catalog) Load(ctx context.Context, kind Kind, id, branch string) (*Definition, error) {
	if branch == "" {
		branch = c.branch
	}
	key := objectKey(kind, branch, id)

	c.mu.RLock()
	def, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return def, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		data, err := c.src.Read(ctx, kind, branch, id)
		if err != nil {
			return nil, err
		}
		def, err := Parse(kind, branch, data)
		if err != nil {
			return nil, err
		}
		// Matches reload their puzzle by this id, so it must name the file.
		if def.ID != id {
			return nil, fmt.Errorf("%w: file %s declares id %q", ErrInvalidDefinition, id, def.ID)
		}
		c.mu.Lock()
		c.cache[key] = def
		c.mu.Unlock()
		return def, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Definition), nil
}
