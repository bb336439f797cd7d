package memory

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/clawstreet/clawd/internal/domain"
)

// Balances returns the Store's domain.BalanceStore view.
func (s *Store) Balances() domain.BalanceStore { return balanceView{s} }

// Trades returns the Store's domain.TradeStore view.
func (s *Store) Trades() domain.TradeStore { return tradeView{s} }

type balanceView struct{ s *Store }

func (v balanceView) Get(ctx context.Context, marketID string, wallet common.Address) (uint64, error) {
	return v.s.GetBalance(ctx, marketID, wallet)
}

func (v balanceView) ListHolders(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Holding, error) {
	return v.s.ListHolders(ctx, marketID, opts)
}

func (v balanceView) ListByWallet(ctx context.Context, wallet common.Address) ([]domain.Holding, error) {
	return v.s.ListByWallet(ctx, wallet)
}

type tradeView struct{ s *Store }

func (v tradeView) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	return v.s.ListByMarket(ctx, marketID, opts)
}

func (v tradeView) ListByWallet(ctx context.Context, wallet common.Address, opts domain.ListOpts) ([]domain.Trade, error) {
	return v.s.ListByWalletTrades(ctx, wallet, opts)
}

func (v tradeView) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Trade, error) {
	return v.s.ListBefore(ctx, cutoff, limit)
}

func (v tradeView) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return v.s.DeleteBefore(ctx, cutoff)
}

// Compile-time interface checks.
var (
	_ domain.MarketStore  = (*Store)(nil)
	_ domain.BalanceStore = balanceView{}
	_ domain.TradeStore   = tradeView{}
)
