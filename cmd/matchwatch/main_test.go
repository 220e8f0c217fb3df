package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pairplay/duet/internal/match"
)

func TestRunFollowsUntilCompleted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		m := &match.Match{
			ID:          "m1",
			Players:     [2]string{"ana", "ben"},
			Status:      match.StatusActive,
			CurrentTurn: "ben",
			TurnNumber:  int(n),
			Scores:      map[string]int{"ana": 10 * int(n), "ben": 0},
			WordSearch:  &match.WordSearchState{TotalWords: 12},
		}
		if n == 3 {
			winner := "ana"
			m.Status = match.StatusCompleted
			m.CurrentTurn = ""
			m.WinnerID = &winner
		}
		json.NewEncoder(w).Encode(match.View{Match: m})
	}))
	defer srv.Close()

	var out, errOut bytes.Buffer
	err := run(context.Background(), []string{"-server", srv.URL, "-token", "t", "-match", "m1", "-interval", "1ms"}, &out, &errOut)
	if err != nil {
		t.Fatalf("run: %v (%s)", err, errOut.String())
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", out.String())
	}
	if !strings.Contains(lines[0], "waiting for ben") || !strings.Contains(lines[2], "winner ana") {
		t.Errorf("unexpected output: %q", lines)
	}
	if calls.Load() != 3 {
		t.Errorf("expected polling to stop at completion, got %d calls", calls.Load())
	}
}

func TestRunRequiresMatch(t *testing.T) {
	var out, errOut bytes.Buffer
	if err := run(context.Background(), []string{"-token", "t"}, &out, &errOut); err == nil {
		t.Error("expected error without -match")
	}
}

func TestRunRejectsZeroInterval(t *testing.T) {
	var out, errOut bytes.Buffer
	args := []string{"-token", "t", "-match", "m1", "-interval", "0s"}
	if err := run(context.Background(), args, &out, &errOut); err == nil {
		t.Error("expected error for zero interval")
	}
}
