package params

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	"github.com/uhyunpark/mbobook/pkg/orderbook"
	"github.com/uhyunpark/mbobook/pkg/replay"
)

type Replay struct {
	SourcePath string
	// RecordLimit caps processed events. <= 0 replays the whole source.
	RecordLimit int
	// WarnLimit caps unknown-action warnings in the log.
	WarnLimit int
}

type Book struct {
	CrossPolicy     string // "first" or "sweep"
	SyntheticIDBase uint64
}

type Log struct {
	Level string
	File  string // empty logs to the console only
}

type Store struct {
	// Path of the pebble run archive. Empty disables archiving.
	Path string
}

type API struct {
	// Addr to serve on after the replay. Empty skips the server.
	Addr            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type Config struct {
	Replay Replay
	Book   Book
	Log    Log
	Store  Store
	API    API
}

func Default() Config {
	return Config{
		Replay: Replay{
			SourcePath:  "./xnas-itch-20241224.mbo.dbn.zst",
			RecordLimit: replay.DefaultRecordLimit,
			WarnLimit:   replay.DefaultWarnLimit,
		},
		Book: Book{
			CrossPolicy:     orderbook.CrossFirst.String(),
			SyntheticIDBase: orderbook.DefaultSyntheticIDBase,
		},
		Log: Log{Level: "info"},
		API: API{ShutdownTimeout: 5 * time.Second},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Replay.SourcePath = getEnv("MBO_SOURCE", cfg.Replay.SourcePath)
	if limit := os.Getenv("REPLAY_RECORD_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			cfg.Replay.RecordLimit = n
		}
	}
	if limit := os.Getenv("REPLAY_WARN_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			cfg.Replay.WarnLimit = n
		}
	}

	cfg.Book.CrossPolicy = getEnv("BOOK_CROSS_POLICY", cfg.Book.CrossPolicy)
	if base := os.Getenv("BOOK_SYNTHETIC_ID_BASE"); base != "" {
		if n, err := strconv.ParseUint(base, 0, 64); err == nil {
			cfg.Book.SyntheticIDBase = n
		}
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Store.Path = getEnv("STORE_PATH", cfg.Store.Path)
	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)

	// Origins from comma-separated list
	if origins := os.Getenv("API_ALLOWED_ORIGINS"); origins != "" {
		// Example: "http://localhost:3000,http://localhost:3001"
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.API.AllowedOrigins = append(cfg.API.AllowedOrigins, o)
			}
		}
	}
	if ms := os.Getenv("API_SHUTDOWN_TIMEOUT_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil {
			cfg.API.ShutdownTimeout = time.Duration(n) * time.Millisecond
		}
	}

	return cfg
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Replay.SourcePath == "" {
		errs = append(errs, errors.New("MBO_SOURCE: empty source path"))
	}
	if c.Replay.WarnLimit < 0 {
		errs = append(errs, fmt.Errorf("REPLAY_WARN_LIMIT: %d is negative", c.Replay.WarnLimit))
	}
	if _, err := orderbook.ParseCrossPolicy(c.Book.CrossPolicy); err != nil {
		errs = append(errs, fmt.Errorf("BOOK_CROSS_POLICY: %w", err))
	}
	if c.Book.SyntheticIDBase == 0 {
		errs = append(errs, errors.New("BOOK_SYNTHETIC_ID_BASE: must be non-zero"))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.API.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("API_SHUTDOWN_TIMEOUT_MS: must be positive"))
	}
	return errors.Join(errs...)
}

// CrossPolicy returns the parsed book cross policy. Call Validate first.
func (c Config) CrossPolicy() orderbook.CrossPolicy {
	p, _ := orderbook.ParseCrossPolicy(c.Book.CrossPolicy)
	return p
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
