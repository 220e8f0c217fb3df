package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/pairplay/duet/internal/match"
	"github.com/pairplay/duet/internal/puzzle"
)

// HealthResponse maps each dependency to "ok" or "error".
type HealthResponse map[string]struct {
	Status string `json:"status"`
}

type matchPath struct {
	ID string `path:"id"`
}

type turnInput struct {
	ID string `path:"id"`
	TurnRequest
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Duet API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Turn-based puzzle matches for paired players. Match routes require a Bearer token.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// POST /api/matches/next
	postNext, _ := r.NewOperationContext(http.MethodPost, "/api/matches/next")
	postNext.SetSummary("Next match")
	postNext.SetDescription("Returns the pair's active match of the kind, or starts one on the next puzzle in rotation.")
	postNext.AddReqStructure(NextMatchRequest{})
	postNext.AddRespStructure(match.View{}, openapi.WithHTTPStatus(http.StatusOK))
	postNext.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	postNext.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusTooManyRequests))
	postNext.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(postNext)

	// GET /api/matches/{id}
	getMatch, _ := r.NewOperationContext(http.MethodGet, "/api/matches/{id}")
	getMatch.SetSummary("Get match")
	getMatch.SetDescription("Returns the caller's view of the match. Polled by clients to stay in sync.")
	getMatch.AddReqStructure(matchPath{})
	getMatch.AddRespStructure(match.View{}, openapi.WithHTTPStatus(http.StatusOK))
	getMatch.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getMatch)

	// GET /api/matches/{id}/puzzle
	getPuzzle, _ := r.NewOperationContext(http.MethodGet, "/api/matches/{id}/puzzle")
	getPuzzle.SetSummary("Get puzzle")
	getPuzzle.SetDescription("Returns the public puzzle layout. Answers are never included.")
	getPuzzle.AddReqStructure(matchPath{})
	getPuzzle.AddRespStructure(puzzle.View{}, openapi.WithHTTPStatus(http.StatusOK))
	getPuzzle.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getPuzzle)

	// POST /api/matches/{id}/turn
	postTurn, _ := r.NewOperationContext(http.MethodPost, "/api/matches/{id}/turn")
	postTurn.SetSummary("Submit turn")
	postTurn.SetDescription("Places letters (crossword) or claims a word (word search).")
	postTurn.AddReqStructure(turnInput{})
	postTurn.AddRespStructure(match.TurnResult{}, openapi.WithHTTPStatus(http.StatusOK))
	postTurn.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	postTurn.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	postTurn.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postTurn)

	// POST /api/matches/{id}/pass
	postPass, _ := r.NewOperationContext(http.MethodPost, "/api/matches/{id}/pass")
	postPass.SetSummary("Pass turn")
	postPass.SetDescription("Hands the turn to the partner without a move.")
	postPass.AddReqStructure(matchPath{})
	postPass.AddRespStructure(match.TurnResult{}, openapi.WithHTTPStatus(http.StatusOK))
	postPass.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	postPass.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postPass)

	// POST /api/matches/{id}/hint
	postHint, _ := r.NewOperationContext(http.MethodPost, "/api/matches/{id}/hint")
	postHint.SetSummary("Use hint")
	postHint.SetDescription("Spends one hint token. Allowed outside the caller's turn.")
	postHint.AddReqStructure(matchPath{})
	postHint.AddRespStructure(match.HintResult{}, openapi.WithHTTPStatus(http.StatusOK))
	postHint.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	postHint.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postHint)

	// GET /api/admin/outbox
	getOutbox, _ := r.NewOperationContext(http.MethodGet, "/api/admin/outbox")
	getOutbox.SetSummary("List undelivered completions")
	getOutbox.SetDescription("Completion events not yet accepted by every consumer. Requires basic auth.")
	getOutbox.AddRespStructure(OutboxResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getOutbox.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(getOutbox)

	// POST /api/admin/outbox/flush
	postFlush, _ := r.NewOperationContext(http.MethodPost, "/api/admin/outbox/flush")
	postFlush.SetSummary("Flush outbox")
	postFlush.SetDescription("Runs one delivery pass. Requires basic auth.")
	postFlush.AddRespStructure(FlushResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postFlush.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(postFlush)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
