package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pairplay/duet/internal/match"
	"github.com/pairplay/duet/internal/puzzle"
)

type NextMatchRequest struct {
	Kind puzzle.Kind `json:"kind"`
}

// TurnRequest carries either letter placements (crossword) or a word and
// its path (word search).
type TurnRequest struct {
	Placements []match.Placement `json:"placements,omitempty"`
	Word       string            `json:"word,omitempty"`
	Path       []puzzle.Pos      `json:"path,omitempty"`
}

func handleNextMatch(logger *slog.Logger, matches Matches) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := playerFrom(r)

		var req NextMatchRequest
		if err := readJSON(w, r, &req); err != nil {
			writeBodyError(w, err)
			return
		}

		v, err := matches.Next(r.Context(), p.PairingID, p.ID, p.PartnerID, req.Kind)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleGetMatch(logger *slog.Logger, matches Matches) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := matches.View(r.Context(), chi.URLParam(r, "id"), playerFrom(r).ID)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleGetPuzzle(logger *slog.Logger, matches Matches) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := matches.Puzzle(r.Context(), chi.URLParam(r, "id"), playerFrom(r).ID)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleSubmitTurn(logger *slog.Logger, matches Matches) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TurnRequest
		if err := readJSON(w, r, &req); err != nil {
			writeBodyError(w, err)
			return
		}

		mv := match.Move{Placements: req.Placements, Word: req.Word, Path: req.Path}
		res, err := matches.SubmitTurn(r.Context(), chi.URLParam(r, "id"), playerFrom(r).ID, mv)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handlePass(logger *slog.Logger, matches Matches) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := matches.Pass(r.Context(), chi.URLParam(r, "id"), playerFrom(r).ID)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleHint(logger *slog.Logger, matches Matches) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := matches.UseHint(r.Context(), chi.URLParam(r, "id"), playerFrom(r).ID)
		if err != nil {
			writeServiceError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
