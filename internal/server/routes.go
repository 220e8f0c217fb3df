package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/swaggest/swgui/v5emb"

	"github.com/pairplay/duet/internal/handler/health"
	"github.com/pairplay/duet/internal/match"
	"github.com/pairplay/duet/internal/puzzle"
)

// Matches is the match service as seen by the HTTP layer.
type Matches interface {
	Next(ctx context.Context, pairingID, caller, partner string, kind puzzle.Kind) (*match.View, error)
	View(ctx context.Context, matchID, caller string) (*match.View, error)
	Puzzle(ctx context.Context, matchID, caller string) (puzzle.View, error)
	SubmitTurn(ctx context.Context, matchID, caller string, mv match.Move) (*match.TurnResult, error)
	Pass(ctx context.Context, matchID, caller string) (*match.TurnResult, error)
	UseHint(ctx context.Context, matchID, caller string) (*match.HintResult, error)
}

type Outbox interface {
	Pending(ctx context.Context, limit int) ([]match.OutboxEntry, error)
}

type Flusher interface {
	Flush(ctx context.Context) (delivered, failed int, err error)
}

type Deps struct {
	Matches Matches
	Outbox  Outbox
	Relay   Flusher
	Health  map[string]health.Checker

	JWTSecret         []byte
	AdminPasswordHash string
	CORSOrigins       []string
}

// NewHandler builds the full router: middleware, API routes, docs and health.
func NewHandler(logger *slog.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newStructuredLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: deps.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler)

	addRoutes(r, logger, deps)
	return r
}

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Duet API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, deps.Health).Routes())

	r.Route("/api/matches", func(r chi.Router) {
		r.Use(playerAuthMiddleware(deps.JWTSecret))
		r.Post("/next", handleNextMatch(logger, deps.Matches))
		r.Get("/{id}", handleGetMatch(logger, deps.Matches))
		r.Get("/{id}/puzzle", handleGetPuzzle(logger, deps.Matches))
		r.Post("/{id}/turn", handleSubmitTurn(logger, deps.Matches))
		r.Post("/{id}/pass", handlePass(logger, deps.Matches))
		r.Post("/{id}/hint", handleHint(logger, deps.Matches))
	})

	// Ops routes stay unmounted without a configured password.
	if deps.AdminPasswordHash != "" {
		r.Route("/api/admin/outbox", func(r chi.Router) {
			r.Use(adminAuthMiddleware(deps.AdminPasswordHash))
			r.Get("/", handleListOutbox(logger, deps.Outbox))
			r.Post("/flush", handleFlushOutbox(logger, deps.Relay))
		})
	}
}
