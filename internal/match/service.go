package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pairplay/duet/internal/puzzle"
)

// Store persists matches. Update must run fn against the current record and
// write the result atomically, returning ErrConflict if the record changed in
// between. When fn completes the match, the store records its
// CompletionEvent in the same write.
type Store interface {
	Create(ctx context.Context, m *Match) error
	Get(ctx context.Context, id string) (*Match, error)
	Active(ctx context.Context, pairingID string, kind puzzle.Kind) (*Match, error)
	Update(ctx context.Context, id string, fn func(*Match) error) (*Match, error)
}

// Provider selects and loads puzzles.
type Provider interface {
	NextPuzzle(ctx context.Context, pairingID string, kind puzzle.Kind) (puzzle.Assignment, error)
	Load(ctx context.Context, kind puzzle.Kind, id, branch string) (*puzzle.Definition, error)
}

// View is a match as one player may see it.
type View struct {
	Match           *Match `json:"match"`
	IsCallerTurn    bool   `json:"isCallerTurn"`
	CanAct          bool   `json:"canAct"`
	ProgressPercent int    `json:"progressPercent"`
}

// NewView copies m for caller, dropping the partner's rack. CanAct reports
// whether any mutating call is open to the caller: a move or a hint.
func NewView(m *Match, caller string) *View {
	c := m.Clone()
	if c.Crossword != nil {
		delete(c.Crossword.Racks, c.Other(caller))
	}
	active := c.Status == StatusActive
	mine := active && c.CurrentTurn == caller
	return &View{
		Match:           c,
		IsCallerTurn:    mine,
		CanAct:          mine || (active && c.Hints[caller] > 0),
		ProgressPercent: c.ProgressPercent(),
	}
}

const maxConflictRetries = 3

type Service struct {
	store    Store
	provider Provider
	engine   *Engine
	logger   *slog.Logger

	newID       func() string
	onCompleted func(CompletionEvent)
}

func NewService(store Store, provider Provider, engine *Engine, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		provider: provider,
		engine:   engine,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// OnCompleted registers fn to run after a completing write commits.
func (s *Service) OnCompleted(fn func(CompletionEvent)) {
	s.onCompleted = fn
}

// Next returns the pair's active match of kind, or starts one on the next
// puzzle from the provider with the caller holding the first turn.
func (s *Service) Next(ctx context.Context, pairingID, caller, partner string, kind puzzle.Kind) (*View, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidMove, kind)
	}
	m, err := s.store.Active(ctx, pairingID, kind)
	if err == nil {
		if !m.IsPlayer(caller) {
			return nil, ErrMatchNotFound
		}
		return NewView(m, caller), nil
	}
	if !errors.Is(err, ErrMatchNotFound) {
		return nil, fmt.Errorf("loading active match: %w", err)
	}

	a, err := s.provider.NextPuzzle(ctx, pairingID, kind)
	if err != nil {
		return nil, err
	}
	def, err := s.provider.Load(ctx, a.Kind, a.PuzzleID, a.Branch)
	if err != nil {
		return nil, fmt.Errorf("loading puzzle %s: %w", a.PuzzleID, err)
	}
	m, err = s.engine.Start(s.newID(), pairingID, [2]string{caller, partner}, caller, def)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, m); err != nil {
		if !errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("creating match: %w", err)
		}
		// The partner started one first.
		existing, err := s.store.Active(ctx, pairingID, kind)
		if err != nil {
			return nil, fmt.Errorf("loading active match: %w", err)
		}
		if !existing.IsPlayer(caller) {
			return nil, ErrMatchNotFound
		}
		return NewView(existing, caller), nil
	}

	s.logger.Info("match created",
		"match_id", m.ID,
		"pairing_id", pairingID,
		"kind", kind,
		"puzzle_id", m.PuzzleID,
	)
	return NewView(m, caller), nil
}

func (s *Service) View(ctx context.Context, matchID, caller string) (*View, error) {
	m, err := s.load(ctx, matchID, caller)
	if err != nil {
		return nil, err
	}
	return NewView(m, caller), nil
}

// Puzzle returns the client-safe rendering of the match's puzzle.
func (s *Service) Puzzle(ctx context.Context, matchID, caller string) (puzzle.View, error) {
	m, err := s.load(ctx, matchID, caller)
	if err != nil {
		return puzzle.View{}, err
	}
	def, err := s.provider.Load(ctx, m.Kind, m.PuzzleID, m.Branch)
	if err != nil {
		return puzzle.View{}, fmt.Errorf("loading puzzle %s: %w", m.PuzzleID, err)
	}
	return def.View(), nil
}

func (s *Service) SubmitTurn(ctx context.Context, matchID, caller string, mv Move) (*TurnResult, error) {
	var res *TurnResult
	m, err := s.mutate(ctx, matchID, caller, func(m *Match, def *puzzle.Definition) error {
		var err error
		res, err = s.engine.Submit(m, def, caller, mv)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.Match = NewView(m, caller)
	s.logger.Debug("turn committed",
		"match_id", m.ID,
		"user_id", caller,
		"turn", m.TurnNumber,
		"score_delta", res.ScoreDelta,
	)
	s.afterWrite(m, res.MatchCompleted)
	return res, nil
}

func (s *Service) Pass(ctx context.Context, matchID, caller string) (*TurnResult, error) {
	var res *TurnResult
	m, err := s.mutate(ctx, matchID, caller, func(m *Match, def *puzzle.Definition) error {
		var err error
		res, err = s.engine.Pass(m, def, caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.Match = NewView(m, caller)
	s.logger.Debug("turn passed", "match_id", m.ID, "user_id", caller, "turn", m.TurnNumber)
	return res, nil
}

func (s *Service) UseHint(ctx context.Context, matchID, caller string) (*HintResult, error) {
	var res *HintResult
	_, err := s.mutate(ctx, matchID, caller, func(m *Match, def *puzzle.Definition) error {
		var err error
		res, err = s.engine.Hint(m, def, caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) load(ctx context.Context, matchID, caller string) (*Match, error) {
	m, err := s.store.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.IsPlayer(caller) {
		return nil, ErrMatchNotFound
	}
	return m, nil
}

// mutate runs fn inside a store update, retrying when another write won the
// race. fn sees the freshly read record on every attempt, so turn ownership is
// always checked against committed state.
func (s *Service) mutate(ctx context.Context, matchID, caller string, fn func(*Match, *puzzle.Definition) error) (*Match, error) {
	m, err := s.load(ctx, matchID, caller)
	if err != nil {
		return nil, err
	}
	def, err := s.provider.Load(ctx, m.Kind, m.PuzzleID, m.Branch)
	if err != nil {
		return nil, fmt.Errorf("loading puzzle %s: %w", m.PuzzleID, err)
	}

	for attempt := 0; ; attempt++ {
		m, err = s.store.Update(ctx, matchID, func(m *Match) error { return fn(m, def) })
		if errors.Is(err, ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		return m, err
	}
}

func (s *Service) afterWrite(m *Match, completed bool) {
	if !completed {
		return
	}
	ev, ok := NewCompletionEvent(m)
	if !ok {
		return
	}
	winner := ""
	if ev.WinnerID != nil {
		winner = *ev.WinnerID
	}
	s.logger.Info("match completed",
		"match_id", ev.MatchID,
		"winner", winner,
		"scores", ev.Scores,
		"turns", ev.Turns,
	)
	if s.onCompleted != nil {
		s.onCompleted(ev)
	}
}
