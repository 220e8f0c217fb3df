package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pairplay/duet/internal/match"
	"github.com/pairplay/duet/internal/puzzle"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error   string     `json:"error"`
	Code    string     `json:"code,omitempty"`
	RetryAt *time.Time `json:"retryAt,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// maxBodyBytes bounds request bodies; a full crossword batch is well under it.
const maxBodyBytes = 64 << 10

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid request body")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{match.ErrNotYourTurn, http.StatusConflict, "not_your_turn"},
	{match.ErrInvalidMove, http.StatusUnprocessableEntity, "invalid_move"},
	{match.ErrMatchCompleted, http.StatusConflict, "match_completed"},
	{match.ErrMatchNotFound, http.StatusNotFound, "match_not_found"},
	{match.ErrNoHintsRemaining, http.StatusConflict, "no_hints_remaining"},
	{match.ErrConflict, http.StatusConflict, "conflict"},
}

// writeServiceError maps domain errors to a status and a stable code.
// Anything unrecognised is logged and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var cooldown *puzzle.CooldownError
	if errors.As(err, &cooldown) {
		retryAt := cooldown.RetryAt.UTC()
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Error:   "puzzle on cooldown",
			Code:    "puzzle_on_cooldown",
			RetryAt: &retryAt,
		})
		return
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			writeJSON(w, ec.status, ErrorResponse{Error: err.Error(), Code: ec.code})
			return
		}
	}
	logger.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
