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
// built-in defaults, applies DEPTHLAB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DEPTHLAB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setStr(&cfg.Feed.Venue, "DEPTHLAB_FEED_VENUE")
	setStr(&cfg.Feed.Symbol, "DEPTHLAB_FEED_SYMBOL")
	setDuration(&cfg.Feed.ReconnectDelay, "DEPTHLAB_FEED_RECONNECT_DELAY")
	setInt(&cfg.Feed.MaxReconnectAttempts, "DEPTHLAB_FEED_MAX_RECONNECT_ATTEMPTS")

	// ── Book ──
	setDuration(&cfg.Book.UpdateInterval, "DEPTHLAB_BOOK_UPDATE_INTERVAL")
	setInt(&cfg.Book.MaxDepth, "DEPTHLAB_BOOK_MAX_DEPTH")
	setInt(&cfg.Book.HistoryCap, "DEPTHLAB_BOOK_HISTORY_CAP")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "DEPTHLAB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "DEPTHLAB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DEPTHLAB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DEPTHLAB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DEPTHLAB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DEPTHLAB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DEPTHLAB_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "DEPTHLAB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "DEPTHLAB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DEPTHLAB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DEPTHLAB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DEPTHLAB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DEPTHLAB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DEPTHLAB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DEPTHLAB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DEPTHLAB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DEPTHLAB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DEPTHLAB_POSTGRES_RUN_MIGRATIONS")

	// ── Server ──
	setInt(&cfg.Server.Port, "DEPTHLAB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DEPTHLAB_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "DEPTHLAB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DEPTHLAB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DEPTHLAB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DEPTHLAB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "DEPTHLAB_LOG_LEVEL")
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
