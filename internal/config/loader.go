package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load builds the configuration. path names an optional TOML file; an
// empty path or a missing file keeps the defaults. A .env file in the
// working directory is loaded if present, then LEDGER_* variables are
// applied. The returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads LEDGER_* environment variables and overwrites the
// corresponding fields when a variable is set. PORT, DATABASE_URL and
// REDIS_URL are accepted as aliases for platform deployments.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "PORT")
	setInt(&cfg.Server.Port, "LEDGER_SERVER_PORT")
	setDuration(&cfg.Server.ReadTimeout, "LEDGER_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "LEDGER_SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.RequestTimeout, "LEDGER_SERVER_REQUEST_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "LEDGER_SERVER_SHUTDOWN_TIMEOUT")
	setStringSlice(&cfg.Server.CORSOrigins, "LEDGER_SERVER_CORS_ORIGINS")

	// ── Database ──
	setStr(&cfg.Database.URL, "DATABASE_URL")
	setStr(&cfg.Database.URL, "LEDGER_DATABASE_URL")
	setInt32(&cfg.Database.MaxConns, "LEDGER_DATABASE_MAX_CONNS")
	setInt32(&cfg.Database.MinConns, "LEDGER_DATABASE_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "LEDGER_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setStr(&cfg.Redis.URL, "LEDGER_REDIS_URL")
	setDuration(&cfg.Redis.CacheTTL, "LEDGER_REDIS_CACHE_TTL")
	setStr(&cfg.Redis.Channel, "LEDGER_REDIS_CHANNEL")
	setStr(&cfg.Redis.Stream, "LEDGER_REDIS_STREAM")

	// ── Kafka ──
	setStringSlice(&cfg.Kafka.Brokers, "LEDGER_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "LEDGER_KAFKA_TOPIC")

	// ── Auth ──
	setStr(&cfg.Auth.Mode, "LEDGER_AUTH_MODE")
	setStr(&cfg.Auth.APIKey, "LEDGER_AUTH_API_KEY")
	setDuration(&cfg.Auth.MaxSkew, "LEDGER_AUTH_MAX_SKEW")

	// ── Ledger ──
	setStr(&cfg.Ledger.BootstrapAuthority, "LEDGER_BOOTSTRAP_AUTHORITY")

	// ── Payments ──
	setStr(&cfg.Payments.Backend, "LEDGER_PAYMENTS_BACKEND")
	setUint64(&cfg.Payments.FaucetBalance, "LEDGER_PAYMENTS_FAUCET_BALANCE")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "LEDGER_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present, non-empty and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		*dst = cleaned
	}
}
