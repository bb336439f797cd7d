package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/clawstreet/clawd/internal/domain"
)

const marketTTL = 30 * time.Second

// MarketCache implements domain.MarketCache with JSON market snapshots under
// a short TTL. The engine invalidates an entry after every mutation, so the
// TTL only bounds staleness when an invalidation is lost.
//
// Key schema:
//
//	claw:market:{id} - JSON snapshot
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying()}
}

func marketKey(id string) string { return "claw:market:" + id }

// cachedMarket is the wire form of a market snapshot. Monetary fields are
// decimal strings so they survive JSON without precision loss.
type cachedMarket struct {
	ID             string    `json:"id"`
	Supply         uint64    `json:"supply"`
	PendingFees    string    `json:"pending_fees"`
	LifetimeFees   string    `json:"lifetime_fees"`
	LifetimeVolume string    `json:"lifetime_volume"`
	Verified       bool      `json:"verified"`
	VerifiedOwner  string    `json:"verified_owner,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toCached(m domain.Market) cachedMarket {
	c := cachedMarket{
		ID:             m.ID,
		Supply:         m.Supply,
		PendingFees:    m.PendingFees.String(),
		LifetimeFees:   m.LifetimeFees.String(),
		LifetimeVolume: m.LifetimeVolume.String(),
		Verified:       m.Verified,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.VerifiedOwner != nil {
		c.VerifiedOwner = m.VerifiedOwner.Hex()
	}
	return c
}

func fromCached(c cachedMarket) (domain.Market, error) {
	m := domain.Market{
		ID:        c.ID,
		Supply:    c.Supply,
		Verified:  c.Verified,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}

	var ok bool
	if m.PendingFees, ok = new(big.Int).SetString(c.PendingFees, 10); !ok {
		return domain.Market{}, fmt.Errorf("redis: malformed pending_fees %q", c.PendingFees)
	}
	if m.LifetimeFees, ok = new(big.Int).SetString(c.LifetimeFees, 10); !ok {
		return domain.Market{}, fmt.Errorf("redis: malformed lifetime_fees %q", c.LifetimeFees)
	}
	if m.LifetimeVolume, ok = new(big.Int).SetString(c.LifetimeVolume, 10); !ok {
		return domain.Market{}, fmt.Errorf("redis: malformed lifetime_volume %q", c.LifetimeVolume)
	}
	if c.VerifiedOwner != "" {
		addr := common.HexToAddress(c.VerifiedOwner)
		m.VerifiedOwner = &addr
	}
	return m, nil
}

// Set stores a market snapshot with the cache TTL.
func (mc *MarketCache) Set(ctx context.Context, market domain.Market) error {
	data, err := json.Marshal(toCached(market))
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", market.ID, err)
	}
	if err := mc.rdb.Set(ctx, marketKey(market.ID), data, marketTTL).Err(); err != nil {
		return fmt.Errorf("redis: set market %s: %w", market.ID, err)
	}
	return nil
}

// Get retrieves a market snapshot. It returns domain.ErrNotFound when the
// key does not exist.
func (mc *MarketCache) Get(ctx context.Context, id string) (domain.Market, error) {
	data, err := mc.rdb.Get(ctx, marketKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %s: %w", id, err)
	}

	var c cachedMarket
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", id, err)
	}
	return fromCached(c)
}

// Invalidate removes a market snapshot.
func (mc *MarketCache) Invalidate(ctx context.Context, id string) error {
	if err := mc.rdb.Del(ctx, marketKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
