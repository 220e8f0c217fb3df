// Package match implements the turn-based cooperative puzzle match: the Match
// aggregate, the turn and hint engine, and the service that runs every
// mutation as an atomic read-validate-write against a Store.
package match

import (
	"maps"
	"slices"
	"time"

	"github.com/pairplay/duet/internal/puzzle"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Match is one attempt at a puzzle by two paired players. Exactly one of
// Crossword or WordSearch is set, matching Kind.
type Match struct {
	ID          string           `json:"id"`
	Kind        puzzle.Kind      `json:"kind"`
	PuzzleID    string           `json:"puzzleId"`
	Branch      string           `json:"branch"`
	PairingID   string           `json:"pairingId"`
	Players     [2]string        `json:"players"`
	Status      Status           `json:"status"`
	CurrentTurn string           `json:"currentTurnUserId"`
	TurnNumber  int              `json:"turnNumber"`
	Scores      map[string]int   `json:"scores"`
	Hints       map[string]int   `json:"hintsRemaining"`
	HintsUsed   map[string]int   `json:"hintsUsed"`
	Crossword   *CrosswordState  `json:"crossword,omitempty"`
	WordSearch  *WordSearchState `json:"wordSearch,omitempty"`
	Version     int64            `json:"version"`
	CreatedAt   time.Time        `json:"createdAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
	WinnerID    *string          `json:"winnerId"`
}

// CrosswordState is the linking variant's progress: cells locked so far and
// each player's rack of letters.
type CrosswordState struct {
	Locked      map[int]string      `json:"locked"`
	LockedCount int                 `json:"lockedCount"`
	TotalCells  int                 `json:"totalCells"`
	Racks       map[string][]string `json:"racks"`
}

// WordSearchState is the word-search variant's progress. Found is append-only.
type WordSearchState struct {
	Found         []FoundWord `json:"found"`
	FoundThisTurn int         `json:"foundThisTurn"`
	TotalWords    int         `json:"totalWords"`
}

type FoundWord struct {
	Word     string       `json:"word"`
	FinderID string       `json:"finderId"`
	Turn     int          `json:"turn"`
	Path     []puzzle.Pos `json:"path"`
}

// Variant is the kind-specific payload of a match.
type Variant interface {
	Progress() (done, total int)
}

func (s *CrosswordState) Progress() (int, int) { return s.LockedCount, s.TotalCells }

func (s *WordSearchState) Progress() (int, int) { return len(s.Found), s.TotalWords }

func (s *CrosswordState) open(cell int) bool {
	_, locked := s.Locked[cell]
	return !locked
}

func (s *WordSearchState) found(word string) bool {
	for _, f := range s.Found {
		if f.Word == word {
			return true
		}
	}
	return false
}

func (m *Match) variant() Variant {
	switch {
	case m.Crossword != nil:
		return m.Crossword
	case m.WordSearch != nil:
		return m.WordSearch
	}
	return nil
}

// Progress returns locked cells or found words, and the total needed.
func (m *Match) Progress() (done, total int) {
	if v := m.variant(); v != nil {
		return v.Progress()
	}
	return 0, 0
}

// ProgressPercent is the floor of the completed share, 0 to 100.
func (m *Match) ProgressPercent() int {
	done, total := m.Progress()
	if total == 0 {
		return 0
	}
	return 100 * done / total
}

func (m *Match) IsPlayer(userID string) bool {
	return userID != "" && (m.Players[0] == userID || m.Players[1] == userID)
}

// Other returns the partner of userID.
func (m *Match) Other(userID string) string {
	if m.Players[0] == userID {
		return m.Players[1]
	}
	return m.Players[0]
}

func (m *Match) Clone() *Match {
	c := *m
	c.Scores = maps.Clone(m.Scores)
	c.Hints = maps.Clone(m.Hints)
	c.HintsUsed = maps.Clone(m.HintsUsed)
	if m.CompletedAt != nil {
		t := *m.CompletedAt
		c.CompletedAt = &t
	}
	if m.WinnerID != nil {
		w := *m.WinnerID
		c.WinnerID = &w
	}
	if m.Crossword != nil {
		cw := *m.Crossword
		cw.Locked = maps.Clone(m.Crossword.Locked)
		cw.Racks = make(map[string][]string, len(m.Crossword.Racks))
		for p, r := range m.Crossword.Racks {
			cw.Racks[p] = slices.Clone(r)
		}
		c.Crossword = &cw
	}
	if m.WordSearch != nil {
		ws := *m.WordSearch
		ws.Found = make([]FoundWord, len(m.WordSearch.Found))
		for i, f := range m.WordSearch.Found {
			f.Path = slices.Clone(f.Path)
			ws.Found[i] = f
		}
		c.WordSearch = &ws
	}
	return &c
}
