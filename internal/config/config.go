// Package config defines the top-level configuration for the pilotdesk
// workflow engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PILOTDESK_* environment variables.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Fees     FeesConfig     `toml:"fees"`
	Sweep    SweepConfig    `toml:"sweep"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds external notification delivery parameters. The webhook
// URL targets a Slack-compatible receiver; Events filters which notification
// types are delivered externally (empty allows everything).
type NotifyConfig struct {
	WebhookURL   string   `toml:"webhook_url"`
	WebhookField string   `toml:"webhook_field"`
	Events       []string `toml:"events"`
}

// FeesConfig holds the platform fee schedule. Percentages are decimal
// strings ("5" or "2.5") so amounts never pass through binary floats; they
// are snapshotted onto each bid at submission.
type FeesConfig struct {
	BuyerPct  string `toml:"buyer_pct"`
	SellerPct string `toml:"seller_pct"`
}

// BuyerPctDecimal parses the buyer-side fee percentage.
func (f FeesConfig) BuyerPctDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(f.BuyerPct)
}

// SellerPctDecimal parses the seller-side fee percentage.
func (f FeesConfig) SellerPctDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(f.SellerPct)
}

// SweepConfig holds the stale-workflow sweeper parameters.
type SweepConfig struct {
	Enabled    bool     `toml:"enabled"`
	Interval   duration `toml:"interval"`
	StaleAfter duration `toml:"stale_after"`
	BatchSize  int      `toml:"batch_size"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "pilotdesk",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			WebhookField: "text",
			Events: []string{
				"bid_approved",
				"payment_received",
				"release_ready",
				"payment_released",
				"holding_cancelled",
			},
		},
		Fees: FeesConfig{
			BuyerPct:  "5",
			SellerPct: "5",
		},
		Sweep: SweepConfig{
			Enabled:    true,
			Interval:   duration{time.Hour},
			StaleAfter: duration{48 * time.Hour},
			BatchSize:  100,
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"sweep":   true,
	"migrate": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, sweep, migrate)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Fees
	if buyer, err := c.Fees.BuyerPctDecimal(); err != nil {
		errs = append(errs, fmt.Sprintf("fees: buyer_pct %q is not a decimal", c.Fees.BuyerPct))
	} else if buyer.IsNegative() {
		errs = append(errs, "fees: buyer_pct must be >= 0")
	}
	if seller, err := c.Fees.SellerPctDecimal(); err != nil {
		errs = append(errs, fmt.Sprintf("fees: seller_pct %q is not a decimal", c.Fees.SellerPct))
	} else if seller.IsNegative() {
		errs = append(errs, "fees: seller_pct must be >= 0")
	} else if seller.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		errs = append(errs, "fees: seller_pct must be < 100")
	}

	// Sweep
	if c.Sweep.Enabled {
		if c.Sweep.Interval.Duration <= 0 {
			errs = append(errs, "sweep: interval must be > 0")
		}
		if c.Sweep.StaleAfter.Duration <= 0 {
			errs = append(errs, "sweep: stale_after must be > 0")
		}
		if c.Sweep.BatchSize < 1 {
			errs = append(errs, "sweep: batch_size must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
