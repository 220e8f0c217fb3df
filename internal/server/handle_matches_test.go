package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pairplay/duet/internal/match"
	"github.com/pairplay/duet/internal/puzzle"
	"github.com/pairplay/duet/internal/store"
)

var testSecret = []byte("test-secret")

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	st := store.NewMemory()
	cat := puzzle.NewCatalog(puzzle.Builtin(), st, "classic", puzzle.CooldownPolicy{Batch: 3, Window: 12 * time.Hour})
	svc := match.NewService(st, cat, match.NewEngine(match.DefaultRules(), nil), discard())
	return NewHandler(discard(), Deps{Matches: svc, Outbox: st, JWTSecret: testSecret})
}

func token(t *testing.T, user, pairing, partner string) string {
	t.Helper()
	tok, err := IssueToken(testSecret, user, pairing, partner, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func do(t *testing.T, h http.Handler, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestMatchesRequireToken(t *testing.T) {
	h := newTestAPI(t)

	other, _ := IssueToken([]byte("other"), "ana", "pair-1", "ben", time.Hour)
	noPartner, _ := IssueToken(testSecret, "ana", "pair-1", "", time.Hour)
	expired, _ := IssueToken(testSecret, "ana", "pair-1", "ben", -time.Minute)

	for name, tok := range map[string]string{
		"missing":      "",
		"garbage":      "not-a-jwt",
		"wrong secret": other,
		"no partner":   noPartner,
		"expired":      expired,
	} {
		t.Run(name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/matches/next", tok, NextMatchRequest{Kind: puzzle.KindCrossword})
			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestCrosswordOverHTTP(t *testing.T) {
	h := newTestAPI(t)
	ana := token(t, "ana", "pair-1", "ben")
	ben := token(t, "ben", "pair-1", "ana")

	w := do(t, h, http.MethodPost, "/api/matches/next", ana, NextMatchRequest{Kind: puzzle.KindCrossword})
	if w.Code != http.StatusOK {
		t.Fatalf("next: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	v := decode[match.View](t, w)
	if !v.IsCallerTurn || v.Match.CurrentTurn != "ana" || v.Match.Crossword == nil {
		t.Fatalf("unexpected view: %+v", v)
	}
	id := v.Match.ID

	w = do(t, h, http.MethodGet, "/api/matches/"+id, ben, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", w.Code)
	}
	bv := decode[match.View](t, w)
	if bv.IsCallerTurn || !bv.CanAct {
		t.Errorf("ben should be waiting with hints: %+v", bv)
	}
	if _, ok := bv.Match.Crossword.Racks["ana"]; ok {
		t.Error("ben can see ana's rack")
	}

	w = do(t, h, http.MethodGet, "/api/matches/"+id+"/puzzle", ben, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("puzzle: expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); !strings.Contains(body, `"crossword"`) || strings.Contains(body, "solution") {
		t.Errorf("unexpected puzzle body: %s", body)
	}

	w = do(t, h, http.MethodPost, "/api/matches/"+id+"/turn", ben, TurnRequest{
		Placements: []match.Placement{{Cell: 0, Letter: "L"}},
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("out of turn: expected 409, got %d", w.Code)
	}
	if e := decode[ErrorResponse](t, w); e.Code != "not_your_turn" {
		t.Errorf("expected not_your_turn, got %+v", e)
	}

	w = do(t, h, http.MethodPost, "/api/matches/"+id+"/pass", ana, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pass: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if res := decode[match.TurnResult](t, w); !res.TurnPassed || res.Match == nil || res.Match.IsCallerTurn {
		t.Errorf("unexpected pass result: %+v", res)
	}

	w = do(t, h, http.MethodPost, "/api/matches/"+id+"/hint", ana, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("hint: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if res := decode[match.HintResult](t, w); res.HintsRemaining != 2 || len(res.Cells) == 0 {
		t.Errorf("unexpected hint result: %+v", res)
	}

	cy := token(t, "cy", "pair-2", "dee")
	w = do(t, h, http.MethodGet, "/api/matches/"+id, cy, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("stranger: expected 404, got %d", w.Code)
	}
	if e := decode[ErrorResponse](t, w); e.Code != "match_not_found" {
		t.Errorf("expected match_not_found, got %+v", e)
	}
}

func TestWordSearchOverHTTP(t *testing.T) {
	h := newTestAPI(t)
	ana := token(t, "ana", "pair-1", "ben")

	w := do(t, h, http.MethodPost, "/api/matches/next", ana, NextMatchRequest{Kind: puzzle.KindWordSearch})
	id := decode[match.View](t, w).Match.ID

	love := []puzzle.Pos{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 2}, {Row: 0, Col: 3}}
	w = do(t, h, http.MethodPost, "/api/matches/"+id+"/turn", ana, TurnRequest{Word: "love", Path: love})
	if w.Code != http.StatusOK {
		t.Fatalf("turn: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decode[match.TurnResult](t, w)
	if res.ScoreDelta != 40 || res.TurnPassed || res.Match.ProgressPercent != 8 {
		t.Errorf("unexpected result: %+v", res)
	}

	w = do(t, h, http.MethodPost, "/api/matches/"+id+"/turn", ana, TurnRequest{Word: "LOVE", Path: love})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("repeat word: expected 422, got %d", w.Code)
	}
	if e := decode[ErrorResponse](t, w); e.Code != "invalid_move" {
		t.Errorf("expected invalid_move, got %+v", e)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/matches/"+id+"/turn", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+ana)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: expected 400, got %d", rec.Code)
	}

	w = do(t, h, http.MethodPost, "/api/matches/next", ana, NextMatchRequest{Kind: "chess"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown kind: expected 422, got %d", w.Code)
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	h := newTestAPI(t)
	ana := token(t, "ana", "pair-1", "ben")

	big := NextMatchRequest{Kind: puzzle.Kind(strings.Repeat("x", maxBodyBytes+1))}
	w := do(t, h, http.MethodPost, "/api/matches/next", ana, big)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodPost, "/api/matches/next", ana, NextMatchRequest{Kind: puzzle.KindCrossword})
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for a normal body, got %d", w.Code)
	}
}

type stubMatches struct {
	Matches
	err error
}

func (s stubMatches) Next(context.Context, string, string, string, puzzle.Kind) (*match.View, error) {
	return nil, s.err
}

func TestServiceErrorMapping(t *testing.T) {
	retryAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"cooldown", &puzzle.CooldownError{Kind: puzzle.KindCrossword, RetryAt: retryAt}, http.StatusTooManyRequests, "puzzle_on_cooldown"},
		{"completed", match.ErrMatchCompleted, http.StatusConflict, "match_completed"},
		{"no hints", match.ErrNoHintsRemaining, http.StatusConflict, "no_hints_remaining"},
		{"wrapped", errors.Join(errors.New("ctx"), match.ErrNotYourTurn), http.StatusConflict, "not_your_turn"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(discard(), Deps{Matches: stubMatches{err: tt.err}, JWTSecret: testSecret})
			w := do(t, h, http.MethodPost, "/api/matches/next", token(t, "ana", "pair-1", "ben"), NextMatchRequest{Kind: puzzle.KindCrossword})
			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, w.Code)
			}
			e := decode[ErrorResponse](t, w)
			if e.Code != tt.wantCode {
				t.Errorf("expected code %q, got %+v", tt.wantCode, e)
			}
			if tt.wantCode == "puzzle_on_cooldown" && (e.RetryAt == nil || !e.RetryAt.Equal(retryAt)) {
				t.Errorf("expected retryAt %s, got %v", retryAt, e.RetryAt)
			}
			if tt.wantCode == "" && e.Error != "internal error" {
				t.Errorf("internal detail leaked: %q", e.Error)
			}
		})
	}
}
