// Package config defines the top-level configuration for the claw market
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CLAWD_* environment variables.
type Config struct {
	Curve    CurveConfig    `toml:"curve"`
	Fees     FeesConfig     `toml:"fees"`
	Attest   AttestConfig   `toml:"attest"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// CurveConfig fixes the bonding curve. Every deployment that shares these
// values prices trades identically, so changing them on a live database
// corrupts every open position.
type CurveConfig struct {
	// K is the curve divisor. Larger K means a flatter curve.
	K uint64 `toml:"k"`

	// UnitDecimals is the number of decimals of the settlement currency
	// (18 for an ETH-style token).
	UnitDecimals int `toml:"unit_decimals"`
}

// FeesConfig holds the protocol and originator fee rates in basis points of
// gross trade value.
type FeesConfig struct {
	ProtocolBps   uint64 `toml:"protocol_bps"`
	OriginatorBps uint64 `toml:"originator_bps"`
}

// AttestConfig holds ownership attestation parameters. Either Authority or a
// key source must be set; when only a key is given the authority address is
// derived from it.
type AttestConfig struct {
	// Authority is the hex address of the trusted attestation signer.
	Authority string `toml:"authority"`

	// ChainID scopes the signing domain.
	ChainID int64 `toml:"chain_id"`

	// FreshnessWindow is the maximum accepted age of an attestation.
	FreshnessWindow duration `toml:"freshness_window"`

	// PrivateKey is the hex-encoded authority key. Only needed when this
	// process also signs attestations (dev mode).
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds trade cold-storage parameters.
type ArchiveConfig struct {
	Enabled bool `toml:"enabled"`

	// Retention is how long trades stay in the primary store before export.
	Retention duration `toml:"retention"`

	// Interval is how often the archiver runs.
	Interval duration `toml:"interval"`

	// Prune deletes exported trades from the primary store after a
	// successful upload.
	Prune bool `toml:"prune"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`

	// APIKey guards mutating endpoints when non-empty. Reads stay open.
	APIKey string `toml:"api_key"`

	// TradeRateLimit caps mutating requests per client IP per window.
	// Zero disables rate limiting.
	TradeRateLimit  int      `toml:"trade_rate_limit"`
	TradeRateWindow duration `toml:"trade_rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
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
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Curve: CurveConfig{
			K:            16000,
			UnitDecimals: 18,
		},
		Fees: FeesConfig{
			ProtocolBps:   500,
			OriginatorBps: 500,
		},
		Attest: AttestConfig{
			ChainID:         8453,
			FreshnessWindow: duration{10 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "clawd",
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
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "clawd-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:   false,
			Retention: duration{90 * 24 * time.Hour},
			Interval:  duration{time.Hour},
			Prune:     true,
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			TradeRateLimit:  0,
			TradeRateWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"claim", "verified", "error"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"migrate": true,
	"dev":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, migrate, dev)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Curve
	if c.Curve.K == 0 {
		errs = append(errs, "curve: k must be positive")
	}
	if c.Curve.UnitDecimals < 0 || c.Curve.UnitDecimals > 30 {
		errs = append(errs, fmt.Sprintf("curve: unit_decimals must be 0-30, got %d", c.Curve.UnitDecimals))
	}

	// Fees
	if c.Fees.ProtocolBps+c.Fees.OriginatorBps >= 10000 {
		errs = append(errs, fmt.Sprintf("fees: protocol_bps + originator_bps must be below 10000, got %d",
			c.Fees.ProtocolBps+c.Fees.OriginatorBps))
	}

	// Attest. Serving requires a trust anchor: either an explicit authority
	// address or a key to derive one from.
	if mode == "serve" || mode == "dev" {
		hasKey := c.Attest.PrivateKey != "" || c.Attest.EncryptedKeyPath != ""
		if c.Attest.Authority == "" && !hasKey {
			errs = append(errs, "attest: authority (or a key source) must be set for mode "+mode)
		}
	}
	if c.Attest.Authority != "" && !common.IsHexAddress(c.Attest.Authority) {
		errs = append(errs, fmt.Sprintf("attest: authority %q is not a valid hex address", c.Attest.Authority))
	}
	if c.Attest.ChainID <= 0 {
		errs = append(errs, "attest: chain_id must be positive")
	}
	if c.Attest.EncryptedKeyPath != "" && c.Attest.KeyPassword == "" {
		errs = append(errs, "attest: key_password is required when encrypted_key_path is set")
	}

	// Postgres and Redis. Dev mode runs on in-memory stores and skips both.
	if mode != "dev" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}

		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.Retention.Duration <= 0 {
			errs = append(errs, "archive: retention must be positive")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.TradeRateLimit < 0 {
		errs = append(errs, "server: trade_rate_limit must be >= 0")
	}
	if c.Server.TradeRateLimit > 0 && c.Server.TradeRateWindow.Duration <= 0 {
		errs = append(errs, "server: trade_rate_window must be positive when trade_rate_limit is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
