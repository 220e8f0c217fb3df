package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/pairplay/duet/internal/config"
	"github.com/pairplay/duet/internal/database"
	"github.com/pairplay/duet/internal/handler/health"
	"github.com/pairplay/duet/internal/match"
	"github.com/pairplay/duet/internal/migrations"
	"github.com/pairplay/duet/internal/puzzle"
	"github.com/pairplay/duet/internal/server"
	"github.com/pairplay/duet/internal/settlement"
	"github.com/pairplay/duet/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// backend is what every store driver provides.
type backend interface {
	match.Store
	puzzle.History
	settlement.Outbox
	Ping(ctx context.Context) error
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- Match store and points ledger ---
	var (
		st        backend
		consumers []settlement.Consumer
	)
	switch cfg.StoreDriver {
	case "sqlite":
		db, err := database.Open(ctx, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("connecting to sqlite: %w", err)
		}
		defer db.Close()
		if err := migrations.Run(ctx, db); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		st = store.NewSQLite(db)
		consumers = append(consumers, settlement.NewSQLLedger(db))
		logger.Info("connected to sqlite", "path", cfg.DBPath)

	case "postgres":
		gdb, err := store.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		if sqlDB, err := gdb.DB(); err == nil {
			defer sqlDB.Close()
		}
		ledger, err := settlement.NewGormLedger(gdb)
		if err != nil {
			return fmt.Errorf("migrating ledger: %w", err)
		}
		st = store.NewPostgres(gdb)
		consumers = append(consumers, ledger)
		logger.Info("connected to postgres")

	case "memory":
		st = store.NewMemory()
		logger.Warn("using in-memory store; matches are lost on restart and no points are credited")
	}

	checks := map[string]health.Checker{cfg.StoreDriver: storeChecker{st}}

	// --- AWS (optional) ---
	var awsCfg aws.Config
	if cfg.PuzzleBucket != "" || cfg.HistoryTable != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return fmt.Errorf("loading aws config: %w", err)
		}
	}

	// --- Puzzle content ---
	var src puzzle.Source
	switch {
	case cfg.PuzzleBucket != "":
		src = puzzle.NewS3Source(s3.NewFromConfig(awsCfg), cfg.PuzzleBucket)
		logger.Info("reading puzzles from s3", "bucket", cfg.PuzzleBucket)
	case cfg.PuzzleDir != "":
		src = puzzle.NewFSSource(os.DirFS(cfg.PuzzleDir))
		logger.Info("reading puzzles from disk", "dir", cfg.PuzzleDir)
	default:
		src = puzzle.Builtin()
	}

	// --- Settlement consumers ---
	if cfg.HistoryTable != "" {
		consumers = append(consumers, settlement.NewDynamoHistory(dynamodb.NewFromConfig(awsCfg), cfg.HistoryTable))
	} else {
		consumers = append(consumers, settlement.NewLogHistory(logger))
	}

	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis")
		consumers = append(consumers, settlement.NewStreamPublisher(rdb))
		checks["redis"] = redisChecker{rdb}
	}

	// --- Match service ---
	catalog := puzzle.NewCatalog(src, st, cfg.ContentBranch, puzzle.CooldownPolicy{
		Batch:  cfg.Cooldown.Batch,
		Window: cfg.Cooldown.Duration,
	})
	svc := match.NewService(st, catalog, match.NewEngine(cfg.Rules, nil), logger)

	dispatcher := settlement.NewDispatcher(consumers...)
	relay := settlement.NewRelay(st, dispatcher, logger)
	svc.OnCompleted(func(match.CompletionEvent) { relay.Notify() })
	logger.Info("settlement consumers", "consumers", dispatcher.Consumers())

	// --- HTTP Server ---
	handler := server.NewHandler(logger, server.Deps{
		Matches:           svc,
		Outbox:            st,
		Relay:             relay,
		Health:            checks,
		JWTSecret:         []byte(cfg.JWTSecret),
		AdminPasswordHash: cfg.AdminPasswordHash,
		CORSOrigins:       cfg.CORSOrigins,
	})
	srv := server.New(cfg.HTTPAddr, logger, handler)

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	g.Go(func() error {
		logger.Info("starting outbox relay", "interval", cfg.OutboxInterval)
		return relay.Run(gctx, cfg.OutboxInterval)
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// redisChecker adapts *redis.Client to health.Checker.
type redisChecker struct{ client *redis.Client }

func (r redisChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }

// storeChecker adapts the match store to health.Checker.
type storeChecker struct{ st backend }

func (s storeChecker) Check(ctx context.Context) error { return s.st.Ping(ctx) }
