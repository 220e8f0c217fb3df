package match

import (
	"maps"
	"time"

	"github.com/pairplay/duet/internal/puzzle"
)

// CompletionEvent is emitted once per match when it completes. Consumers must
// be idempotent on MatchID since delivery is at-least-once.
type CompletionEvent struct {
	MatchID     string         `json:"matchId"`
	Kind        puzzle.Kind    `json:"kind"`
	PairingID   string         `json:"pairingId"`
	PuzzleID    string         `json:"puzzleId"`
	Players     [2]string      `json:"players"`
	Scores      map[string]int `json:"scores"`
	WinnerID    *string        `json:"winnerId"`
	HintsUsed   map[string]int `json:"hintsUsed"`
	Turns       int            `json:"turns"`
	CompletedAt time.Time      `json:"completedAt"`
}

// NewCompletionEvent reports false for a match that is still active.
func NewCompletionEvent(m *Match) (CompletionEvent, bool) {
	if m.Status != StatusCompleted || m.CompletedAt == nil {
		return CompletionEvent{}, false
	}
	ev := CompletionEvent{
		MatchID:     m.ID,
		Kind:        m.Kind,
		PairingID:   m.PairingID,
		PuzzleID:    m.PuzzleID,
		Players:     m.Players,
		Scores:      maps.Clone(m.Scores),
		HintsUsed:   maps.Clone(m.HintsUsed),
		Turns:       m.TurnNumber,
		CompletedAt: *m.CompletedAt,
	}
	if m.WinnerID != nil {
		w := *m.WinnerID
		ev.WinnerID = &w
	}
	return ev, true
}

// OutboxEntry is a recorded completion event awaiting delivery.
type OutboxEntry struct {
	Event     CompletionEvent `json:"event"`
	CreatedAt time.Time       `json:"createdAt"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"lastError,omitempty"`
}
