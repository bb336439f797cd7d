package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidateForServe(t *testing.T) {
	cfg := Defaults()
	cfg.Attest.Authority = "0x1111111111111111111111111111111111111111"

	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint64(16000), cfg.Curve.K)
	assert.Equal(t, uint64(500), cfg.Fees.ProtocolBps)
	assert.Equal(t, 10*time.Minute, cfg.Attest.FreshnessWindow.Duration)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "banana"
	cfg.Curve.K = 0
	cfg.Fees.ProtocolBps = 9000
	cfg.Fees.OriginatorBps = 2000
	cfg.Attest.Authority = "not-an-address"
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "curve: k must be positive")
	assert.Contains(t, err.Error(), "fees:")
	assert.Contains(t, err.Error(), "not a valid hex address")
	assert.Contains(t, err.Error(), "server: port")
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clawd.toml")
	data := `
mode = "dev"

[curve]
k = 32000

[attest]
authority = "0x2222222222222222222222222222222222222222"
freshness_window = "5m"

[server]
port = 9000
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	t.Setenv("CLAWD_SERVER_PORT", "9100")
	t.Setenv("CLAWD_REDIS_ADDR", "redis.internal:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Mode)
	assert.Equal(t, uint64(32000), cfg.Curve.K)
	assert.Equal(t, 5*time.Minute, cfg.Attest.FreshnessWindow.Duration)
	// Env beats file.
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	// Untouched values keep defaults.
	assert.Equal(t, uint64(500), cfg.Fees.OriginatorBps)

	require.NoError(t, cfg.Validate())
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Attest.PrivateKey = "deadbeef"
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "sekrit"
	cfg.S3.SecretKey = "aws-secret"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Attest.PrivateKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.S3.SecretKey)
	// Originals untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	// Non-secrets survive.
	assert.Equal(t, cfg.Redis.Addr, red.Redis.Addr)
}
