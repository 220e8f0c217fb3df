package server

import (
	"log/slog"
	"net/http"

	"github.com/pairplay/duet/internal/match"
)

type OutboxResponse struct {
	Pending []match.OutboxEntry `json:"pending"`
}

type FlushResponse struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

func handleListOutbox(logger *slog.Logger, outbox Outbox) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := outbox.Pending(r.Context(), 0)
		if err != nil {
			logger.Error("listing outbox", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if entries == nil {
			entries = []match.OutboxEntry{}
		}
		writeJSON(w, http.StatusOK, OutboxResponse{Pending: entries})
	}
}

func handleFlushOutbox(logger *slog.Logger, relay Flusher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		delivered, failed, err := relay.Flush(r.Context())
		if err != nil {
			logger.Error("flushing outbox", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		logger.Info("outbox flushed", "delivered", delivered, "failed", failed)
		writeJSON(w, http.StatusOK, FlushResponse{Delivered: delivered, Failed: failed})
	}
}
