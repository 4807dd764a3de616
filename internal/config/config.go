// Package config defines the paper ledger service configuration. Values
// start from Defaults, are overlaid by an optional TOML file and then by
// LEDGER_* environment variables, and are checked with Validate.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Kafka    KafkaConfig    `toml:"kafka"`
	Auth     AuthConfig     `toml:"auth"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Payments PaymentsConfig `toml:"payments"`
	LogLevel string         `toml:"log_level" validate:"oneof=debug info warn error"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port" validate:"min=1,max=65535"`
	ReadTimeout     duration `toml:"read_timeout"`
	WriteTimeout    duration `toml:"write_timeout"`
	IdleTimeout     duration `toml:"idle_timeout"`
	RequestTimeout  duration `toml:"request_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
	CORSOrigins     []string `toml:"cors_origins"`
}

// DatabaseConfig holds PostgreSQL parameters. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL           string `toml:"url" validate:"omitempty,url"`
	MaxConns      int32  `toml:"max_conns" validate:"min=0"`
	MinConns      int32  `toml:"min_conns" validate:"min=0,ltefield=MaxConns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis parameters. An empty URL disables the read cache,
// the Redis event sink and Redis wallets.
type RedisConfig struct {
	URL      string   `toml:"url" validate:"omitempty,url"`
	CacheTTL duration `toml:"cache_ttl"`
	Channel  string   `toml:"channel" validate:"required"`
	Stream   string   `toml:"stream"`
}

// KafkaConfig holds the event log producer parameters. No brokers disables
// the Kafka sink.
type KafkaConfig struct {
	Brokers []string `toml:"brokers" validate:"dive,hostname_port"`
	Topic   string   `toml:"topic" validate:"required_with=Brokers"`
}

// AuthConfig selects how callers prove their identity.
type AuthConfig struct {
	// Mode is "signature" (EIP-191 signed requests) or "header" (trusted
	// gateway with an API key).
	Mode    string   `toml:"mode" validate:"oneof=signature header"`
	APIKey  string   `toml:"api_key" validate:"required_if=Mode header"`
	MaxSkew duration `toml:"max_skew"`
}

// LedgerConfig holds ledger-level settings.
type LedgerConfig struct {
	// BootstrapAuthority, when set, is the only identity allowed to
	// initialize the config.
	BootstrapAuthority string `toml:"bootstrap_authority"`
}

// PaymentsConfig selects the entry-fee wallet backend.
type PaymentsConfig struct {
	Backend string `toml:"backend" validate:"oneof=memory redis"`
	// FaucetBalance seeds wallets that have never been seen, in payment
	// units.
	FaucetBalance uint64 `toml:"faucet_balance"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config suitable for local development: in-memory store
// and wallets, gateway auth off in favour of signatures.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     duration{10 * time.Second},
			WriteTimeout:    duration{10 * time.Second},
			IdleTimeout:     duration{60 * time.Second},
			RequestTimeout:  duration{30 * time.Second},
			ShutdownTimeout: duration{5 * time.Second},
			CORSOrigins:     []string{"*"},
		},
		Database: DatabaseConfig{
			MaxConns:      10,
			MinConns:      1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			CacheTTL: duration{30 * time.Second},
			Channel:  "ledger:events",
			Stream:   "ledger:events:stream",
		},
		Kafka: KafkaConfig{
			Topic: "ledger.events",
		},
		Auth: AuthConfig{
			Mode:    "signature",
			MaxSkew: duration{5 * time.Minute},
		},
		Payments: PaymentsConfig{
			Backend:       "memory",
			FaucetBalance: 10_000_000_000,
		},
		LogLevel: "info",
	}
}

var validate = validator.New()

// Validate checks field constraints and cross-section requirements.
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}

	if c.Payments.Backend == "redis" && c.Redis.URL == "" {
		errs = append(errs, "payments.backend redis requires redis.url")
	}
	if c.Auth.Mode == "signature" && c.Auth.MaxSkew.Duration <= 0 {
		errs = append(errs, "auth.max_skew must be positive in signature mode")
	}
	if c.Server.ShutdownTimeout.Duration <= 0 {
		errs = append(errs, "server.shutdown_timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level name understood by
// slog.Level.UnmarshalText.
func (c *Config) SlogLevel() string {
	return strings.ToUpper(c.LogLevel)
}
