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
// built-in defaults, applies CLAWD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load. An empty path skips the
// file and loads defaults plus environment overrides only.
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

// applyEnvOverrides reads well-known CLAWD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Curve / fees ──
	setUint64(&cfg.Curve.K, "CLAWD_CURVE_K")
	setInt(&cfg.Curve.UnitDecimals, "CLAWD_CURVE_UNIT_DECIMALS")
	setUint64(&cfg.Fees.ProtocolBps, "CLAWD_FEES_PROTOCOL_BPS")
	setUint64(&cfg.Fees.OriginatorBps, "CLAWD_FEES_ORIGINATOR_BPS")

	// ── Attest ──
	setStr(&cfg.Attest.Authority, "CLAWD_ATTEST_AUTHORITY")
	setInt64(&cfg.Attest.ChainID, "CLAWD_ATTEST_CHAIN_ID")
	setDuration(&cfg.Attest.FreshnessWindow, "CLAWD_ATTEST_FRESHNESS_WINDOW")
	setStr(&cfg.Attest.PrivateKey, "CLAWD_ATTEST_PRIVATE_KEY")
	setStr(&cfg.Attest.EncryptedKeyPath, "CLAWD_ATTEST_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Attest.KeyPassword, "CLAWD_ATTEST_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CLAWD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CLAWD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CLAWD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CLAWD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CLAWD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CLAWD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CLAWD_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "CLAWD_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "CLAWD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CLAWD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CLAWD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CLAWD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CLAWD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CLAWD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CLAWD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CLAWD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CLAWD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CLAWD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CLAWD_S3_REGION")
	setStr(&cfg.S3.Bucket, "CLAWD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CLAWD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CLAWD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CLAWD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CLAWD_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "CLAWD_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Retention, "CLAWD_ARCHIVE_RETENTION")
	setDuration(&cfg.Archive.Interval, "CLAWD_ARCHIVE_INTERVAL")
	setBool(&cfg.Archive.Prune, "CLAWD_ARCHIVE_PRUNE")

	// ── Server ──
	setInt(&cfg.Server.Port, "CLAWD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CLAWD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CLAWD_SERVER_API_KEY")
	setInt(&cfg.Server.TradeRateLimit, "CLAWD_SERVER_TRADE_RATE_LIMIT")
	setDuration(&cfg.Server.TradeRateWindow, "CLAWD_SERVER_TRADE_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CLAWD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CLAWD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CLAWD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CLAWD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CLAWD_MODE")
	setStr(&cfg.LogLevel, "CLAWD_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
