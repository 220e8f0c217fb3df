package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/pairplay/duet/internal/match"
)

type stubOutbox []match.OutboxEntry

func (s stubOutbox) Pending(context.Context, int) ([]match.OutboxEntry, error) { return s, nil }

type stubRelay struct{ calls int }

func (s *stubRelay) Flush(context.Context) (int, int, error) {
	s.calls++
	return 2, 1, nil
}

func TestAdminOutbox(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	outbox := stubOutbox{{
		Event:    match.CompletionEvent{MatchID: "m1", PairingID: "pair-1"},
		Attempts: 2,
	}}
	relay := &stubRelay{}
	h := NewHandler(discard(), Deps{
		Outbox:            outbox,
		Relay:             relay,
		AdminPasswordHash: string(hash),
	})

	send := func(method, path, password string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if password != "" {
			req.SetBasicAuth("ops", password)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	if w := send(http.MethodGet, "/api/admin/outbox", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no auth: expected 401, got %d", w.Code)
	}
	if w := send(http.MethodGet, "/api/admin/outbox", "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: expected 401, got %d", w.Code)
	}

	w := send(http.MethodGet, "/api/admin/outbox", "hunter2")
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	list := decode[OutboxResponse](t, w)
	if len(list.Pending) != 1 || list.Pending[0].Event.MatchID != "m1" || list.Pending[0].Attempts != 2 {
		t.Errorf("unexpected outbox: %+v", list)
	}

	w = send(http.MethodPost, "/api/admin/outbox/flush", "hunter2")
	if w.Code != http.StatusOK {
		t.Fatalf("flush: expected 200, got %d", w.Code)
	}
	if res := decode[FlushResponse](t, w); res.Delivered != 2 || res.Failed != 1 || relay.calls != 1 {
		t.Errorf("unexpected flush: %+v after %d calls", res, relay.calls)
	}
}

func TestAdminOutboxDisabledWithoutPassword(t *testing.T) {
	h := NewHandler(discard(), Deps{Outbox: stubOutbox{}, Relay: &stubRelay{}})
	req := httptest.NewRequest(http.MethodGet, "/api/admin/outbox", nil)
	req.SetBasicAuth("ops", "")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
