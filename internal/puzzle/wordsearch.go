package puzzle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// WordSearch is a letter grid with target words hidden along straight lines.
// The grid and word list are public; where each word lies is not.
type WordSearch struct {
	Rows  int
	Cols  int
	Grid  []string
	Words []string

	placements map[string][]Pos
}

type wordSearchFile struct {
	Grid  []string `json:"grid"`
	Words []string `json:"words"`
}

// directions in search order.
var directions = [8]Pos{
	{0, 1}, {1, 0}, {1, 1}, {-1, 1},
	{0, -1}, {-1, 0}, {-1, -1}, {1, -1},
}

func parseWordSearch(data []byte) (*WordSearch, error) {
	var f wordSearchFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if len(f.Grid) == 0 || len(f.Words) == 0 {
		return nil, fmt.Errorf("%w: grid and words are required", ErrInvalidDefinition)
	}

	ws := &WordSearch{
		Rows:       len(f.Grid),
		Cols:       len(f.Grid[0]),
		placements: make(map[string][]Pos, len(f.Words)),
	}
	for i, row := range f.Grid {
		row = strings.ToUpper(row)
		if len(row) != ws.Cols {
			return nil, fmt.Errorf("%w: row %d has %d letters, want %d", ErrInvalidDefinition, i, len(row), ws.Cols)
		}
		for j := 0; j < len(row); j++ {
			if !isLetter(row[j]) {
				return nil, fmt.Errorf("%w: row %d has non-letter %q", ErrInvalidDefinition, i, row[j])
			}
		}
		ws.Grid = append(ws.Grid, row)
	}

	for _, w := range f.Words {
		w = strings.ToUpper(strings.TrimSpace(w))
		if len(w) < 2 {
			return nil, fmt.Errorf("%w: word %q too short", ErrInvalidDefinition, w)
		}
		if _, dup := ws.placements[w]; dup {
			return nil, fmt.Errorf("%w: word %q listed twice", ErrInvalidDefinition, w)
		}
		path, ok := ws.search(w)
		if !ok {
			return nil, fmt.Errorf("%w: word %q is not in the grid", ErrInvalidDefinition, w)
		}
		ws.placements[w] = path
		ws.Words = append(ws.Words, w)
	}
	return ws, nil
}

func (w *WordSearch) search(word string) ([]Pos, bool) {
	for r := 0; r < w.Rows; r++ {
		for c := 0; c < w.Cols; c++ {
			if w.Grid[r][c] != word[0] {
				continue
			}
			for _, d := range directions {
				path := make([]Pos, len(word))
				ok := true
				for i := 0; i < len(word); i++ {
					p := Pos{r + d.Row*i, c + d.Col*i}
					if l, in := w.At(p); !in || l != word[i] {
						ok = false
						break
					}
					path[i] = p
				}
				if ok {
					return path, true
				}
			}
		}
	}
	return nil, false
}

// At returns the grid letter at p.
func (w *WordSearch) At(p Pos) (byte, bool) {
	if p.Row < 0 || p.Row >= w.Rows || p.Col < 0 || p.Col >= w.Cols {
		return 0, false
	}
	return w.Grid[p.Row][p.Col], true
}

func (w *WordSearch) HasWord(word string) bool {
	_, ok := w.placements[word]
	return ok
}

// Start returns where the first letter of word sits.
func (w *WordSearch) Start(word string) (Pos, bool) {
	path, ok := w.placements[word]
	if !ok {
		return Pos{}, false
	}
	return path[0], true
}

// Spells reports whether path is a straight line of len(word) squares whose
// grid letters read word forward or backward.
func (w *WordSearch) Spells(word string, path []Pos) bool {
	if len(path) != len(word) || !Straight(path) {
		return false
	}
	forward, backward := true, true
	n := len(word)
	for i, p := range path {
		l, ok := w.At(p)
		if !ok {
			return false
		}
		if l != word[i] {
			forward = false
		}
		if l != word[n-1-i] {
			backward = false
		}
	}
	return forward || backward
}

// Straight reports whether consecutive squares all advance by the same
// horizontal, vertical or diagonal unit step.
func Straight(path []Pos) bool {
	if len(path) < 2 {
		return len(path) == 1
	}
	step := Pos{path[1].Row - path[0].Row, path[1].Col - path[0].Col}
	if step.Row < -1 || step.Row > 1 || step.Col < -1 || step.Col > 1 || step == (Pos{}) {
		return false
	}
	for i := 2; i < len(path); i++ {
		if path[i].Row-path[i-1].Row != step.Row || path[i].Col-path[i-1].Col != step.Col {
			return false
		}
	}
	return true
}

type WordSearchView struct {
	Rows  int      `json:"rows"`
	Cols  int      `json:"cols"`
	Grid  []string `json:"grid"`
	Words []string `json:"words"`
}

func (w *WordSearch) view() WordSearchView {
	return WordSearchView{
		Rows:  w.Rows,
		Cols:  w.Cols,
		Grid:  append([]string(nil), w.Grid...),
		Words: append([]string(nil), w.Words...),
	}
}
