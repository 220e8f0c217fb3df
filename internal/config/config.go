package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/pairplay/duet/internal/match"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	// StoreDriver is one of sqlite, memory or postgres.
	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	DBPath      string `env:"DB_PATH" envDefault:"data/duet.db"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	RedisURL    string `env:"REDIS_URL"`

	JWTSecret         string   `env:"JWT_SECRET,required,notEmpty"`
	CORSOrigins       []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
	AdminPasswordHash string   `env:"ADMIN_PASSWORD_HASH"`

	PuzzleDir     string `env:"PUZZLE_DIR"`
	PuzzleBucket  string `env:"PUZZLE_BUCKET"`
	AWSRegion     string `env:"AWS_REGION" envDefault:"eu-west-1"`
	HistoryTable  string `env:"HISTORY_TABLE"`
	ContentBranch string `env:"CONTENT_BRANCH" envDefault:"classic"`

	OutboxInterval time.Duration `env:"OUTBOX_INTERVAL" envDefault:"5s"`

	Rules    match.Rules `envPrefix:"RULES_"`
	Cooldown Cooldown    `envPrefix:"COOLDOWN_"`
}

type Cooldown struct {
	Batch    int           `env:"BATCH" envDefault:"3"`
	Duration time.Duration `env:"DURATION" envDefault:"12h"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	switch cfg.StoreDriver {
	case "sqlite", "memory":
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("STORE_DRIVER=postgres requires POSTGRES_DSN")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.OutboxInterval <= 0 {
		return nil, fmt.Errorf("OUTBOX_INTERVAL must be positive, got %s", cfg.OutboxInterval)
	}
	if cfg.Cooldown.Batch < 0 || cfg.Cooldown.Duration < 0 {
		return nil, fmt.Errorf("COOLDOWN_BATCH and COOLDOWN_DURATION must not be negative")
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("RULES: %w", err)
	}
	return &cfg, nil
}
