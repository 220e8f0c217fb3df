package match

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/pairplay/duet/internal/puzzle"
)

// Rules are the tunable constants of both variants.
type Rules struct {
	RackSize         int `env:"RACK_SIZE" envDefault:"5"`
	WordsPerTurn     int `env:"WORDS_PER_TURN" envDefault:"3"`
	LetterPoints     int `env:"LETTER_POINTS" envDefault:"10"`
	ClueBonus        int `env:"CLUE_BONUS" envDefault:"20"`
	WordLetterPoints int `env:"WORD_LETTER_POINTS" envDefault:"10"`
	StartingHints    int `env:"STARTING_HINTS" envDefault:"3"`
}

func DefaultRules() Rules {
	return Rules{
		RackSize:         5,
		WordsPerTurn:     3,
		LetterPoints:     10,
		ClueBonus:        20,
		WordLetterPoints: 10,
		StartingHints:    3,
	}
}

// Validate rejects rules no match could be played under.
func (r Rules) Validate() error {
	if r.RackSize <= 0 {
		return fmt.Errorf("rack size must be positive, got %d", r.RackSize)
	}
	if r.WordsPerTurn <= 0 {
		return fmt.Errorf("words per turn must be positive, got %d", r.WordsPerTurn)
	}
	if r.LetterPoints < 0 || r.ClueBonus < 0 || r.WordLetterPoints < 0 || r.StartingHints < 0 {
		return fmt.Errorf("points and hints must not be negative: %+v", r)
	}
	return nil
}

// Placement puts one rack letter on a crossword cell.
type Placement struct {
	Cell   int    `json:"cell"`
	Letter string `json:"letter"`
}

// Move is a submission for either variant: Placements for a crossword, Word and
// Path for a word search.
type Move struct {
	Placements []Placement  `json:"placements,omitempty"`
	Word       string       `json:"word,omitempty"`
	Path       []puzzle.Pos `json:"path,omitempty"`
}

type PlacementResult struct {
	Cell    int    `json:"cell"`
	Letter  string `json:"letter"`
	Correct bool   `json:"correct"`
}

type ClueBonus struct {
	ClueID string `json:"clueId"`
	Bonus  int    `json:"bonus"`
}

type TurnResult struct {
	Placements     []PlacementResult `json:"placements,omitempty"`
	Word           string            `json:"word,omitempty"`
	ScoreDelta     int               `json:"scoreDelta"`
	CompletedClues []ClueBonus       `json:"completedClues,omitempty"`
	TurnPassed     bool              `json:"turnPassed"`
	MatchCompleted bool              `json:"matchCompleted"`
	Rack           []string          `json:"rack,omitempty"`
	WinnerID       *string           `json:"winnerId"`
	Match          *View             `json:"match,omitempty"`
}

// CellHint says letter from the caller's rack belongs in cell.
type CellHint struct {
	Cell   int    `json:"cell"`
	Letter string `json:"letter"`
}

// WordHint reveals where an unfound word starts.
type WordHint struct {
	Word  string     `json:"word"`
	Start puzzle.Pos `json:"start"`
}

type HintResult struct {
	Cells          []CellHint `json:"cells,omitempty"`
	Word           *WordHint  `json:"word,omitempty"`
	HintsRemaining int        `json:"hintsRemaining"`
}

// Engine applies moves and hints to a Match in memory. Every method validates
// fully before touching the match, so a returned error means m is unchanged.
type Engine struct {
	rules  Rules
	dealer Dealer
	now    func() time.Time
}

func NewEngine(rules Rules, dealer Dealer) *Engine {
	if dealer == nil {
		dealer = SeededDealer{}
	}
	return &Engine{rules: rules, dealer: dealer, now: time.Now}
}

func (e *Engine) Rules() Rules { return e.rules }

// Start builds a fresh match on def with first holding the turn.
func (e *Engine) Start(id, pairingID string, players [2]string, first string, def *puzzle.Definition) (*Match, error) {
	if players[0] == "" || players[1] == "" || players[0] == players[1] {
		return nil, fmt.Errorf("a match needs two distinct players, got %q and %q", players[0], players[1])
	}
	if first != players[0] && first != players[1] {
		return nil, fmt.Errorf("first player %q is not in the match", first)
	}

	m := &Match{
		ID:          id,
		Kind:        def.Kind,
		PuzzleID:    def.ID,
		Branch:      def.Branch,
		PairingID:   pairingID,
		Players:     players,
		Status:      StatusActive,
		CurrentTurn: first,
		TurnNumber:  1,
		Scores:      map[string]int{players[0]: 0, players[1]: 0},
		Hints:       map[string]int{players[0]: e.rules.StartingHints, players[1]: e.rules.StartingHints},
		HintsUsed:   map[string]int{players[0]: 0, players[1]: 0},
		CreatedAt:   e.now().UTC(),
	}
	switch def.Kind {
	case puzzle.KindCrossword:
		m.Crossword = &CrosswordState{
			Locked:     map[int]string{},
			TotalCells: def.Crossword.AnswerCells(),
		}
		e.fillRacks(m, def.Crossword.Needed(m.Crossword.open))
	case puzzle.KindWordSearch:
		m.WordSearch = &WordSearchState{
			Found:      []FoundWord{},
			TotalWords: len(def.WordSearch.Words),
		}
	default:
		return nil, fmt.Errorf("unknown puzzle kind %q", def.Kind)
	}
	return m, nil
}

func checkTurn(m *Match, caller string) error {
	switch {
	case !m.IsPlayer(caller):
		return ErrMatchNotFound
	case m.Status == StatusCompleted:
		return ErrMatchCompleted
	case m.CurrentTurn != caller:
		return ErrNotYourTurn
	}
	return nil
}

func checkPuzzle(m *Match, def *puzzle.Definition) error {
	if def == nil || def.ID != m.PuzzleID || def.Kind != m.Kind {
		return fmt.Errorf("match %s is on puzzle %s/%s", m.ID, m.Kind, m.PuzzleID)
	}
	return nil
}

// Submit dispatches a move to the variant the match is playing.
func (e *Engine) Submit(m *Match, def *puzzle.Definition, caller string, mv Move) (*TurnResult, error) {
	switch m.Kind {
	case puzzle.KindCrossword:
		return e.Place(m, def, caller, mv.Placements)
	case puzzle.KindWordSearch:
		return e.FindWord(m, def, caller, mv.Word, mv.Path)
	}
	return nil, fmt.Errorf("unknown match kind %q", m.Kind)
}

// Place checks a batch of rack letters against the solution. Correct letters
// lock and score; wrong ones stay in the rack. The turn passes afterwards
// unless the board is full.
func (e *Engine) Place(m *Match, def *puzzle.Definition, caller string, moves []Placement) (*TurnResult, error) {
	if err := checkTurn(m, caller); err != nil {
		return nil, err
	}
	if err := checkPuzzle(m, def); err != nil {
		return nil, err
	}
	st, cw := m.Crossword, def.Crossword
	if st == nil || cw == nil {
		return nil, fmt.Errorf("%w: not a crossword match", ErrInvalidMove)
	}
	if len(moves) == 0 || len(moves) > e.rules.RackSize {
		return nil, fmt.Errorf("%w: place between 1 and %d letters", ErrInvalidMove, e.rules.RackSize)
	}

	rack := make(map[string]int)
	for _, l := range st.Racks[caller] {
		rack[l]++
	}
	letters := make([]string, len(moves))
	seen := make(map[int]bool, len(moves))
	for i, mv := range moves {
		l := strings.ToUpper(strings.TrimSpace(mv.Letter))
		if len(l) != 1 || l[0] < 'A' || l[0] > 'Z' {
			return nil, fmt.Errorf("%w: %q is not a letter", ErrInvalidMove, mv.Letter)
		}
		if !cw.IsAnswer(mv.Cell) {
			return nil, fmt.Errorf("%w: cell %d is not an answer cell", ErrInvalidMove, mv.Cell)
		}
		if !st.open(mv.Cell) {
			return nil, fmt.Errorf("%w: cell %d is already locked", ErrInvalidMove, mv.Cell)
		}
		if seen[mv.Cell] {
			return nil, fmt.Errorf("%w: cell %d placed twice", ErrInvalidMove, mv.Cell)
		}
		seen[mv.Cell] = true
		if rack[l] == 0 {
			return nil, fmt.Errorf("%w: %s is not in your rack", ErrInvalidMove, l)
		}
		rack[l]--
		letters[i] = l
	}

	res := &TurnResult{Placements: make([]PlacementResult, len(moves))}
	fresh := make(map[int]bool)
	for i, mv := range moves {
		ok := cw.Check(mv.Cell, letters[i][0])
		res.Placements[i] = PlacementResult{Cell: mv.Cell, Letter: letters[i], Correct: ok}
		if !ok {
			continue
		}
		st.Locked[mv.Cell] = letters[i]
		st.LockedCount++
		fresh[mv.Cell] = true
		st.Racks[caller] = removeLetter(st.Racks[caller], letters[i])
		res.ScoreDelta += e.rules.LetterPoints
	}

	for _, clue := range cw.Clues {
		touched, full := false, true
		for _, c := range clue.Cells {
			touched = touched || fresh[c]
			full = full && !st.open(c)
		}
		if touched && full {
			res.CompletedClues = append(res.CompletedClues, ClueBonus{ClueID: clue.ID, Bonus: e.rules.ClueBonus})
			res.ScoreDelta += e.rules.ClueBonus
		}
	}
	m.Scores[caller] += res.ScoreDelta

	if st.LockedCount == st.TotalCells {
		e.complete(m)
	} else {
		passTurn(m)
		e.fillRacks(m, cw.Needed(st.open))
	}
	e.finish(m, caller, res)
	return res, nil
}

// FindWord claims a target word along a straight path. A rejected claim
// costs nothing; the turn passes once the per-turn cap is reached.
func (e *Engine) FindWord(m *Match, def *puzzle.Definition, caller, word string, path []puzzle.Pos) (*TurnResult, error) {
	if err := checkTurn(m, caller); err != nil {
		return nil, err
	}
	if err := checkPuzzle(m, def); err != nil {
		return nil, err
	}
	st, ws := m.WordSearch, def.WordSearch
	if st == nil || ws == nil {
		return nil, fmt.Errorf("%w: not a word search match", ErrInvalidMove)
	}

	word = strings.ToUpper(strings.TrimSpace(word))
	switch {
	case !ws.HasWord(word):
		return nil, fmt.Errorf("%w: %q is not on the list", ErrInvalidMove, word)
	case st.found(word):
		return nil, fmt.Errorf("%w: %s was already found", ErrInvalidMove, word)
	case !ws.Spells(word, path):
		return nil, fmt.Errorf("%w: that path does not spell %s", ErrInvalidMove, word)
	}

	st.Found = append(st.Found, FoundWord{
		Word:     word,
		FinderID: caller,
		Turn:     m.TurnNumber,
		Path:     slices.Clone(path),
	})
	st.FoundThisTurn++
	res := &TurnResult{Word: word, ScoreDelta: e.rules.WordLetterPoints * len(word)}
	m.Scores[caller] += res.ScoreDelta

	if len(st.Found) == st.TotalWords {
		e.complete(m)
	} else if st.FoundThisTurn >= e.rules.WordsPerTurn {
		passTurn(m)
	}
	e.finish(m, caller, res)
	return res, nil
}

// Pass yields the turn without a move.
func (e *Engine) Pass(m *Match, def *puzzle.Definition, caller string) (*TurnResult, error) {
	if err := checkTurn(m, caller); err != nil {
		return nil, err
	}
	if err := checkPuzzle(m, def); err != nil {
		return nil, err
	}
	passTurn(m)
	if m.Crossword != nil {
		e.fillRacks(m, def.Crossword.Needed(m.Crossword.open))
	}
	res := &TurnResult{}
	e.finish(m, caller, res)
	return res, nil
}

// Hint spends one of the caller's hints. It does not need the turn and never
// changes progress, score or turn ownership.
func (e *Engine) Hint(m *Match, def *puzzle.Definition, caller string) (*HintResult, error) {
	switch {
	case !m.IsPlayer(caller):
		return nil, ErrMatchNotFound
	case m.Status == StatusCompleted:
		return nil, ErrMatchCompleted
	case m.Hints[caller] <= 0:
		return nil, ErrNoHintsRemaining
	}
	if err := checkPuzzle(m, def); err != nil {
		return nil, err
	}

	res := &HintResult{}
	switch {
	case m.Crossword != nil:
		seen := make(map[string]bool)
		for _, l := range m.Crossword.Racks[caller] {
			if seen[l] {
				continue
			}
			seen[l] = true
			for _, c := range def.Crossword.Fits(l[0], m.Crossword.open) {
				res.Cells = append(res.Cells, CellHint{Cell: c, Letter: l})
			}
		}
		slices.SortFunc(res.Cells, func(a, b CellHint) int { return a.Cell - b.Cell })
	case m.WordSearch != nil:
		for _, w := range def.WordSearch.Words {
			if m.WordSearch.found(w) {
				continue
			}
			start, _ := def.WordSearch.Start(w)
			res.Word = &WordHint{Word: w, Start: start}
			break
		}
	}

	m.Hints[caller]--
	m.HintsUsed[caller]++
	res.HintsRemaining = m.Hints[caller]
	return res, nil
}

func passTurn(m *Match) {
	m.CurrentTurn = m.Other(m.CurrentTurn)
	m.TurnNumber++
	if m.WordSearch != nil {
		m.WordSearch.FoundThisTurn = 0
	}
}

// complete ends the match. The winner is the strictly higher score; a tie
// leaves WinnerID nil.
func (e *Engine) complete(m *Match) {
	now := e.now().UTC()
	m.Status = StatusCompleted
	m.CompletedAt = &now
	m.CurrentTurn = ""
	a, b := m.Players[0], m.Players[1]
	switch {
	case m.Scores[a] > m.Scores[b]:
		m.WinnerID = &a
	case m.Scores[b] > m.Scores[a]:
		m.WinnerID = &b
	}
}

func (e *Engine) finish(m *Match, caller string, res *TurnResult) {
	res.MatchCompleted = m.Status == StatusCompleted
	res.TurnPassed = !res.MatchCompleted && m.CurrentTurn != caller
	res.WinnerID = m.WinnerID
	if m.Crossword != nil {
		res.Rack = slices.Clone(m.Crossword.Racks[caller])
	}
}

func removeLetter(rack []string, l string) []string {
	if i := slices.Index(rack, l); i >= 0 {
		return slices.Delete(rack, i, i+1)
	}
	return rack
}
