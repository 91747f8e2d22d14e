package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PILOTDESK_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PILOTDESK_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "PILOTDESK_DATABASE_DSN")
	setStr(&cfg.Database.Host, "PILOTDESK_DATABASE_HOST")
	setInt(&cfg.Database.Port, "PILOTDESK_DATABASE_PORT")
	setStr(&cfg.Database.Database, "PILOTDESK_DATABASE_NAME")
	setStr(&cfg.Database.User, "PILOTDESK_DATABASE_USER")
	setStr(&cfg.Database.Password, "PILOTDESK_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "PILOTDESK_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "PILOTDESK_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "PILOTDESK_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "PILOTDESK_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PILOTDESK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PILOTDESK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PILOTDESK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PILOTDESK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PILOTDESK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PILOTDESK_REDIS_TLS_ENABLED")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PILOTDESK_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PILOTDESK_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PILOTDESK_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "PILOTDESK_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PILOTDESK_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.WebhookURL, "PILOTDESK_NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookField, "PILOTDESK_NOTIFY_WEBHOOK_FIELD")
	setStringSlice(&cfg.Notify.Events, "PILOTDESK_NOTIFY_EVENTS")

	// ── Fees ──
	setStr(&cfg.Fees.BuyerPct, "PILOTDESK_FEES_BUYER_PCT")
	setStr(&cfg.Fees.SellerPct, "PILOTDESK_FEES_SELLER_PCT")

	// ── Sweep ──
	setBool(&cfg.Sweep.Enabled, "PILOTDESK_SWEEP_ENABLED")
	setDuration(&cfg.Sweep.Interval, "PILOTDESK_SWEEP_INTERVAL")
	setDuration(&cfg.Sweep.StaleAfter, "PILOTDESK_SWEEP_STALE_AFTER")
	setInt(&cfg.Sweep.BatchSize, "PILOTDESK_SWEEP_BATCH_SIZE")

	// ── Top-level ──
	setStr(&cfg.Mode, "PILOTDESK_MODE")
	setStr(&cfg.LogLevel, "PILOTDESK_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
