package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/clawstreet/clawd/internal/attest"
	s3blob "github.com/clawstreet/clawd/internal/blob/s3"
	"github.com/clawstreet/clawd/internal/cache/redis"
	"github.com/clawstreet/clawd/internal/config"
	"github.com/clawstreet/clawd/internal/domain"
	"github.com/clawstreet/clawd/internal/notify"
	"github.com/clawstreet/clawd/internal/store/memory"
	"github.com/clawstreet/clawd/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	Markets  domain.MarketStore
	Balances domain.BalanceStore
	Trades   domain.TradeStore
	Nonces   domain.NonceStore

	// Caches and coordination
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Cold storage
	Archiver *s3blob.Archiver

	// Attestation trust anchor.
	Authority common.Address

	// Notifications
	Notifier *notify.Notifier

	// PG is set outside dev mode so migrate mode can run migrations on
	// demand.
	PG *postgres.Client
}

// resolveAuthority determines the trusted attestation signer address: an
// explicit config address wins, otherwise the address is derived from the
// configured key.
func resolveAuthority(cfg *config.Config) (common.Address, error) {
	if cfg.Attest.Authority != "" {
		if !common.IsHexAddress(cfg.Attest.Authority) {
			return common.Address{}, fmt.Errorf("attest: authority %q is not a valid hex address", cfg.Attest.Authority)
		}
		return common.HexToAddress(cfg.Attest.Authority), nil
	}

	keyHex, err := attest.LoadKey(attest.KeyConfig{
		RawPrivateKey:    cfg.Attest.PrivateKey,
		EncryptedKeyPath: cfg.Attest.EncryptedKeyPath,
		KeyPassword:      cfg.Attest.KeyPassword,
	})
	if err != nil {
		return common.Address{}, err
	}
	signer, err := attest.NewSigner(keyHex, cfg.Attest.ChainID)
	if err != nil {
		return common.Address{}, err
	}
	return signer.Address(), nil
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources. Dev mode runs entirely on
// in-process implementations; every other mode connects Postgres and Redis.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	authority, err := resolveAuthority(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	deps.Authority = authority

	if strings.ToLower(cfg.Mode) == "dev" {
		store := memory.NewStore()
		deps.Markets = store
		deps.Balances = store.Balances()
		deps.Trades = store.Trades()
		deps.Nonces = memory.NewNonceStore()
		deps.LockManager = memory.NewLockManager()
		deps.Notifier = notify.NewNotifier(nil, cfg.Notify.Events, slog.Default())
		return deps, cleanup, nil
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.PG = pgClient

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Markets = postgres.NewMarketStore(pool)
	deps.Balances = postgres.NewBalanceStore(pool)
	deps.Trades = postgres.NewTradeStore(pool)
	deps.Nonces = postgres.NewNonceStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 cold storage (only when archiving is enabled) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.Trades,
			cfg.Archive.Retention.Duration,
			cfg.Archive.Prune,
			slog.Default(),
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, slog.Default())

	return deps, cleanup, nil
}
