package puzzle

import (
	"encoding/json"
	"fmt"
	"strings"
)

type CellClass string

const (
	CellVoid   CellClass = "void"
	CellClue   CellClass = "clue"
	CellAnswer CellClass = "answer"
)

const (
	Across = "across"
	Down   = "down"
)

// Clue is one answer run. Cells are grid indexes (row*cols + col) in reading
// order.
type Clue struct {
	ID        string
	Text      string
	Direction string
	Cells     []int
}

// Crossword is the linking variant: answer cells grouped into clue runs.
type Crossword struct {
	Rows    int
	Cols    int
	Classes []CellClass
	Clues   []Clue

	solution    []byte
	answerCells int
}

type crosswordFile struct {
	Rows  int `json:"rows"`
	Cols  int `json:"cols"`
	Clues []struct {
		ID        string `json:"id"`
		Text      string `json:"text"`
		Row       int    `json:"row"`
		Col       int    `json:"col"`
		Direction string `json:"direction"`
		Answer    string `json:"answer"`
		ClueCell  *Pos   `json:"clueCell"`
	} `json:"clues"`
}

func parseCrossword(data []byte) (*Crossword, error) {
	var f crosswordFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if f.Rows <= 0 || f.Cols <= 0 {
		return nil, fmt.Errorf("%w: grid must be at least 1x1", ErrInvalidDefinition)
	}
	if len(f.Clues) == 0 {
		return nil, fmt.Errorf("%w: no clues", ErrInvalidDefinition)
	}

	size := f.Rows * f.Cols
	cw := &Crossword{
		Rows:     f.Rows,
		Cols:     f.Cols,
		Classes:  make([]CellClass, size),
		solution: make([]byte, size),
	}
	for i := range cw.Classes {
		cw.Classes[i] = CellVoid
	}

	seen := make(map[string]bool, len(f.Clues))
	for _, c := range f.Clues {
		if c.ID == "" || seen[c.ID] {
			return nil, fmt.Errorf("%w: clue id %q missing or repeated", ErrInvalidDefinition, c.ID)
		}
		seen[c.ID] = true

		answer := strings.ToUpper(strings.TrimSpace(c.Answer))
		if len(answer) < 2 {
			return nil, fmt.Errorf("%w: clue %s answer too short", ErrInvalidDefinition, c.ID)
		}
		dr, dc := 0, 1
		switch c.Direction {
		case Across:
		case Down:
			dr, dc = 1, 0
		default:
			return nil, fmt.Errorf("%w: clue %s direction %q", ErrInvalidDefinition, c.ID, c.Direction)
		}

		cells := make([]int, len(answer))
		for i := 0; i < len(answer); i++ {
			r, col := c.Row+dr*i, c.Col+dc*i
			if r < 0 || r >= f.Rows || col < 0 || col >= f.Cols {
				return nil, fmt.Errorf("%w: clue %s runs off the grid", ErrInvalidDefinition, c.ID)
			}
			letter := answer[i]
			if !isLetter(letter) {
				return nil, fmt.Errorf("%w: clue %s has non-letter %q", ErrInvalidDefinition, c.ID, letter)
			}
			idx := r*f.Cols + col
			if prev := cw.solution[idx]; prev != 0 && prev != letter {
				return nil, fmt.Errorf("%w: clue %s crosses %q with %q", ErrInvalidDefinition, c.ID, prev, letter)
			}
			cw.solution[idx] = letter
			cw.Classes[idx] = CellAnswer
			cells[i] = idx
		}
		cw.Clues = append(cw.Clues, Clue{ID: c.ID, Text: c.Text, Direction: c.Direction, Cells: cells})
	}

	for _, c := range f.Clues {
		if c.ClueCell == nil {
			continue
		}
		p := *c.ClueCell
		if p.Row < 0 || p.Row >= f.Rows || p.Col < 0 || p.Col >= f.Cols {
			return nil, fmt.Errorf("%w: clue %s label outside grid", ErrInvalidDefinition, c.ID)
		}
		idx := p.Row*f.Cols + p.Col
		if cw.Classes[idx] == CellAnswer {
			return nil, fmt.Errorf("%w: clue %s label sits on an answer cell", ErrInvalidDefinition, c.ID)
		}
		cw.Classes[idx] = CellClue
	}

	for _, cls := range cw.Classes {
		if cls == CellAnswer {
			cw.answerCells++
		}
	}
	return cw, nil
}

// Size is the number of grid squares.
func (c *Crossword) Size() int { return c.Rows * c.Cols }

func (c *Crossword) AnswerCells() int { return c.answerCells }

func (c *Crossword) IsAnswer(cell int) bool {
	return cell >= 0 && cell < len(c.Classes) && c.Classes[cell] == CellAnswer
}

// Check reports whether letter is the solution for an answer cell.
func (c *Crossword) Check(cell int, letter byte) bool {
	return c.IsAnswer(cell) && c.solution[cell] == letter
}

// Needed returns the solution letter of every answer cell that open reports as
// unfilled, in cell order.
func (c *Crossword) Needed(open func(cell int) bool) []byte {
	var out []byte
	for i, cls := range c.Classes {
		if cls == CellAnswer && open(i) {
			out = append(out, c.solution[i])
		}
	}
	return out
}

// Fits lists the open answer cells whose solution is letter.
func (c *Crossword) Fits(letter byte, open func(cell int) bool) []int {
	var out []int
	for i, cls := range c.Classes {
		if cls == CellAnswer && c.solution[i] == letter && open(i) {
			out = append(out, i)
		}
	}
	return out
}

type CrosswordView struct {
	Rows  int         `json:"rows"`
	Cols  int         `json:"cols"`
	Cells []CellClass `json:"cells"`
	Clues []ClueView  `json:"clues"`
}

type ClueView struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Direction string `json:"direction"`
	Cells     []int  `json:"cells"`
}

func (c *Crossword) view() CrosswordView {
	v := CrosswordView{
		Rows:  c.Rows,
		Cols:  c.Cols,
		Cells: append([]CellClass(nil), c.Classes...),
		Clues: make([]ClueView, 0, len(c.Clues)),
	}
	for _, cl := range c.Clues {
		v.Clues = append(v.Clues, ClueView{
			ID:        cl.ID,
			Text:      cl.Text,
			Direction: cl.Direction,
			Cells:     append([]int(nil), cl.Cells...),
		})
	}
	return v
}
