// Package puzzle loads immutable puzzle definitions for the two match kinds and
// keeps their solutions private to the engine. Nothing exported from this
// package carries an answer letter or a word position.
package puzzle

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	KindCrossword  Kind = "crossword"
	KindWordSearch Kind = "word_search"
)

func (k Kind) Valid() bool {
	return k == KindCrossword || k == KindWordSearch
}

var (
	ErrPuzzleNotFound    = errors.New("puzzle not found")
	ErrPuzzleOnCooldown  = errors.New("puzzle on cooldown")
	ErrInvalidDefinition = errors.New("invalid puzzle definition")
)

// CooldownError reports when the next puzzle of a kind becomes available.
type CooldownError struct {
	Kind    Kind
	RetryAt time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s on cooldown until %s", e.Kind, e.RetryAt.UTC().Format(time.RFC3339))
}

func (e *CooldownError) Unwrap() error { return ErrPuzzleOnCooldown }

// Pos identifies a grid square.
type Pos struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Definition is a parsed puzzle. Exactly one of Crossword or WordSearch is set,
// matching Kind.
type Definition struct {
	ID         string
	Kind       Kind
	Branch     string
	Crossword  *Crossword
	WordSearch *WordSearch
}

// Parse decodes a puzzle file of the given kind.
func Parse(kind Kind, branch string, data []byte) (*Definition, error) {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if head.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidDefinition)
	}

	def := &Definition{ID: head.ID, Kind: kind, Branch: branch}
	switch kind {
	case KindCrossword:
		cw, err := parseCrossword(data)
		if err != nil {
			return nil, fmt.Errorf("puzzle %s: %w", head.ID, err)
		}
		def.Crossword = cw
	case KindWordSearch:
		ws, err := parseWordSearch(data)
		if err != nil {
			return nil, fmt.Errorf("puzzle %s: %w", head.ID, err)
		}
		def.WordSearch = ws
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidDefinition, kind)
	}
	return def, nil
}

// View is the client-safe rendering of a definition.
type View struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Branch     string          `json:"branch"`
	Crossword  *CrosswordView  `json:"crossword,omitempty"`
	WordSearch *WordSearchView `json:"wordSearch,omitempty"`
}

func (d *Definition) View() View {
	v := View{ID: d.ID, Kind: d.Kind, Branch: d.Branch}
	if d.Crossword != nil {
		cv := d.Crossword.view()
		v.Crossword = &cv
	}
	if d.WordSearch != nil {
		wv := d.WordSearch.view()
		v.WordSearch = &wv
	}
	return v
}

// Total is the amount of progress needed to finish the puzzle: answer cells
// for a crossword, target words for a word search.
func (d *Definition) Total() int {
	switch {
	case d.Crossword != nil:
		return d.Crossword.AnswerCells()
	case d.WordSearch != nil:
		return len(d.WordSearch.Words)
	}
	return 0
}

func isLetter(b byte) bool { return b >= 'A' && b <= 'Z' }
