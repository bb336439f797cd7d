// Package service holds the read-side query services behind the HTTP
// handlers. Writes always go through the engine; these services only
// assemble views over the stores, with a cache in front of hot reads.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/clawstreet/clawd/internal/domain"
)

// MarketService serves market, holder, and trade queries. The cache is
// optional; without it every read goes straight to the store.
type MarketService struct {
	markets  domain.MarketStore
	balances domain.BalanceStore
	trades   domain.TradeStore
	cache    domain.MarketCache
	logger   *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(
	markets domain.MarketStore,
	balances domain.BalanceStore,
	trades domain.TradeStore,
	cache domain.MarketCache,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:  markets,
		balances: balances,
		trades:   trades,
		cache:    cache,
		logger:   logger.With(slog.String("component", "market_service")),
	}
}

// GetMarket retrieves one market by handle, checking the cache first and
// back-filling it on a miss. An unborn market comes back as a zero-state
// record, never an error.
func (s *MarketService) GetMarket(ctx context.Context, handle string) (domain.Market, error) {
	id, err := domain.NormalizeHandle(handle)
	if err != nil {
		return domain.Market{}, err
	}

	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		}
	}

	m, err := s.markets.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewMarket(id), nil
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %q: %w", id, err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "cache set failed",
				slog.String("market", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

// ListMarkets returns markets ordered by lifetime volume, busiest first.
func (s *MarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// Count returns the number of born markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	count, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return count, nil
}

// ListHolders returns the holders of one market, largest first.
func (s *MarketService) ListHolders(ctx context.Context, handle string, opts domain.ListOpts) ([]domain.Holding, error) {
	id, err := domain.NormalizeHandle(handle)
	if err != nil {
		return nil, err
	}
	holders, err := s.balances.ListHolders(ctx, id, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: holders %q: %w", id, err)
	}
	return holders, nil
}

// ListTrades returns a market's trade history, newest first.
func (s *MarketService) ListTrades(ctx context.Context, handle string, opts domain.ListOpts) ([]domain.Trade, error) {
	id, err := domain.NormalizeHandle(handle)
	if err != nil {
		return nil, err
	}
	trades, err := s.trades.ListByMarket(ctx, id, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: trades %q: %w", id, err)
	}
	return trades, nil
}

// Portfolio returns one wallet's holdings across every market, together with
// its recent trades.
func (s *MarketService) Portfolio(ctx context.Context, wallet common.Address, opts domain.ListOpts) ([]domain.Holding, []domain.Trade, error) {
	holdings, err := s.balances.ListByWallet(ctx, wallet)
	if err != nil {
		return nil, nil, fmt.Errorf("market_service: portfolio holdings %s: %w", wallet.Hex(), err)
	}
	trades, err := s.trades.ListByWallet(ctx, wallet, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("market_service: portfolio trades %s: %w", wallet.Hex(), err)
	}
	return holdings, trades, nil
}
