// Command matchwatch follows one match from the command line, printing a
// line each time the server copy changes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pairplay/duet/internal/match"
	"github.com/pairplay/duet/internal/syncclient"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("matchwatch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	serverURL := fs.String("server", "http://localhost:8080", "API base URL")
	token := fs.String("token", os.Getenv("DUET_TOKEN"), "player bearer token")
	matchID := fs.String("match", "", "match id to follow")
	interval := fs.Duration("interval", 3*time.Second, "poll interval")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *matchID == "" || *token == "" {
		return errors.New("-match and -token are required")
	}
	if *interval <= 0 {
		return fmt.Errorf("-interval must be positive, got %s", *interval)
	}

	logger := slog.New(slog.NewTextHandler(stderr, nil))
	fetcher := syncclient.NewHTTPFetcher(*serverURL, *token, &http.Client{Timeout: 10 * time.Second})
	poller := syncclient.NewPoller(fetcher, syncclient.NewCache(), *interval, logger)

	err := poller.Watch(ctx, *matchID, func(v *match.View) {
		fmt.Fprintln(stdout, summary(v))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func summary(v *match.View) string {
	m := v.Match
	a, b := m.Players[0], m.Players[1]
	line := fmt.Sprintf("turn %d  %s %d - %d %s  progress %d%%",
		m.TurnNumber, a, m.Scores[a], m.Scores[b], b, v.ProgressPercent)
	switch {
	case m.Status == match.StatusCompleted && m.WinnerID != nil:
		return line + "  completed, winner " + *m.WinnerID
	case m.Status == match.StatusCompleted:
		return line + "  completed, tie"
	case v.IsCallerTurn:
		return line + "  your turn"
	}
	return line + "  waiting for " + m.CurrentTurn
}
