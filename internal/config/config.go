package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MemoryDBPath selects the in-process store instead of SQLite.
const MemoryDBPath = ":memory:"

type Config struct {
	DBPath               string        `env:"DB_PATH"                envDefault:"feedshelf.sqlite"`
	StorageQuotaBytes    int           `env:"STORAGE_QUOTA_BYTES"    envDefault:"5242880"`
	RefreshSpec          string        `env:"REFRESH_SPEC"           envDefault:"*/30 * * * *"`
	MockLatencyMin       time.Duration `env:"MOCK_LATENCY_MIN"       envDefault:"200ms"`
	MockLatencyMax       time.Duration `env:"MOCK_LATENCY_MAX"       envDefault:"800ms"`
	MaxConcurrentFetches int           `env:"MAX_CONCURRENT_FETCHES" envDefault:"4"`
	OpenAIAPIKey         string        `env:"OPENAI_API_KEY"`
	LogLevel             slog.Level    `env:"LOG_LEVEL"              envDefault:"info"`
}

// Load reads the configuration from the environment. Variables in a .env
// file of the working directory are used when not already set.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.MockLatencyMax < cfg.MockLatencyMin {
		return Config{}, fmt.Errorf("MOCK_LATENCY_MAX (%s) is less than MOCK_LATENCY_MIN (%s)",
			cfg.MockLatencyMax, cfg.MockLatencyMin)
	}

	return cfg, nil
}
