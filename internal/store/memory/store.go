// Package memory implements the domain store interfaces in process memory.
// It backs unit tests and the dev mode, which runs the full API without
// Postgres or Redis. Semantics mirror the postgres package exactly,
// including error taxonomy and atomicity per market.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/clawstreet/clawd/internal/domain"
)

// Store holds all market, balance, and trade state. One mutex serializes
// mutations; reads copy records out so callers can never alias live big.Int
// values.
type Store struct {
	mu      sync.Mutex
	markets map[string]*domain.Market
	trades  []domain.Trade
	nextID  int64

	// holdings is keyed market|wallet. Reads are lock-free.
	holdings *xsync.Map[string, uint64]
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		markets:  make(map[string]*domain.Market),
		holdings: xsync.NewMap[string, uint64](),
		nextID:   1,
	}
}

func holdingKey(marketID string, wallet common.Address) string {
	return marketID + "|" + wallet.Hex()
}

func copyMarket(m *domain.Market) domain.Market {
	out := *m
	out.PendingFees = new(big.Int).Set(m.PendingFees)
	out.LifetimeFees = new(big.Int).Set(m.LifetimeFees)
	out.LifetimeVolume = new(big.Int).Set(m.LifetimeVolume)
	if m.VerifiedOwner != nil {
		owner := *m.VerifiedOwner
		out.VerifiedOwner = &owner
	}
	return out
}

func copyTrade(t domain.Trade) domain.Trade {
	out := t
	out.Gross = new(big.Int).Set(t.Gross)
	out.ProtocolFee = new(big.Int).Set(t.ProtocolFee)
	out.OriginatorFee = new(big.Int).Set(t.OriginatorFee)
	return out
}

// Get implements domain.MarketStore.
func (s *Store) Get(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return copyMarket(m), nil
}

// List implements domain.MarketStore, ordering by lifetime volume descending.
func (s *Store) List(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, copyMarket(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].LifetimeVolume.Cmp(out[j].LifetimeVolume); c != 0 {
			return c > 0
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, opts), nil
}

// Count implements domain.MarketStore.
func (s *Store) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

// ApplyBuy implements domain.MarketStore.
func (s *Store) ApplyBuy(_ context.Context, id string, wallet common.Address, delta domain.TradeDelta) (domain.Market, domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		created := domain.NewMarket(id)
		created.CreatedAt = delta.At
		m = &created
		s.markets[id] = m
	}

	m.Supply += delta.Amount
	m.PendingFees.Add(m.PendingFees, delta.OriginatorFee)
	m.LifetimeFees.Add(m.LifetimeFees, delta.OriginatorFee)
	m.LifetimeVolume.Add(m.LifetimeVolume, delta.Gross)
	m.UpdatedAt = delta.At

	key := holdingKey(id, wallet)
	held, _ := s.holdings.Load(key)
	s.holdings.Store(key, held+delta.Amount)

	trade := s.appendTrade(id, wallet, domain.DirectionBuy, delta, m.Supply)
	return copyMarket(m), trade, nil
}

// ApplySell implements domain.MarketStore.
func (s *Store) ApplySell(_ context.Context, id string, wallet common.Address, delta domain.TradeDelta) (domain.Market, domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.Trade{}, domain.ErrNotFound
	}
	if delta.Amount >= m.Supply {
		return domain.Market{}, domain.Trade{}, fmt.Errorf("%w: cannot sell %d of %d units", domain.ErrInsufficientSupply, delta.Amount, m.Supply)
	}

	key := holdingKey(id, wallet)
	held, _ := s.holdings.Load(key)
	if held < delta.Amount {
		return domain.Market{}, domain.Trade{}, fmt.Errorf("%w: hold %d, selling %d", domain.ErrInsufficientBalance, held, delta.Amount)
	}

	m.Supply -= delta.Amount
	m.PendingFees.Add(m.PendingFees, delta.OriginatorFee)
	m.LifetimeFees.Add(m.LifetimeFees, delta.OriginatorFee)
	m.LifetimeVolume.Add(m.LifetimeVolume, delta.Gross)
	m.UpdatedAt = delta.At

	if held == delta.Amount {
		s.holdings.Delete(key)
	} else {
		s.holdings.Store(key, held-delta.Amount)
	}

	trade := s.appendTrade(id, wallet, domain.DirectionSell, delta, m.Supply)
	return copyMarket(m), trade, nil
}

// appendTrade records a trade. Caller holds s.mu.
func (s *Store) appendTrade(id string, wallet common.Address, dir domain.TradeDirection, delta domain.TradeDelta, supplyAfter uint64) domain.Trade {
	trade := domain.Trade{
		ID:            s.nextID,
		MarketID:      id,
		Wallet:        wallet,
		Direction:     dir,
		Amount:        delta.Amount,
		Gross:         new(big.Int).Set(delta.Gross),
		ProtocolFee:   new(big.Int).Set(delta.ProtocolFee),
		OriginatorFee: new(big.Int).Set(delta.OriginatorFee),
		SupplyAfter:   supplyAfter,
		CreatedAt:     delta.At,
	}
	s.nextID++
	s.trades = append(s.trades, copyTrade(trade))
	return trade
}

// SetVerified implements domain.MarketStore.
func (s *Store) SetVerified(_ context.Context, id string, owner common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Verified {
		return domain.ErrAlreadyVerified
	}
	m.Verified = true
	m.VerifiedOwner = &owner
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// DrainPendingFees implements domain.MarketStore.
func (s *Store) DrainPendingFees(_ context.Context, id string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	drained := new(big.Int).Set(m.PendingFees)
	m.PendingFees.SetInt64(0)
	m.UpdatedAt = time.Now().UTC()
	return drained, nil
}

// Get implements domain.BalanceStore.
func (s *Store) GetBalance(_ context.Context, marketID string, wallet common.Address) (uint64, error) {
	held, _ := s.holdings.Load(holdingKey(marketID, wallet))
	return held, nil
}

// ListHolders implements domain.BalanceStore.
func (s *Store) ListHolders(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.Holding, error) {
	prefix := marketID + "|"
	var out []domain.Holding
	s.holdings.Range(func(key string, amount uint64) bool {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix && amount > 0 {
			out = append(out, domain.Holding{
				MarketID: marketID,
				Wallet:   common.HexToAddress(key[len(prefix):]),
				Amount:   amount,
			})
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Wallet.Hex() < out[j].Wallet.Hex()
	})
	return paginate(out, opts), nil
}

// ListByWallet implements domain.BalanceStore.
func (s *Store) ListByWallet(_ context.Context, wallet common.Address) ([]domain.Holding, error) {
	suffix := "|" + wallet.Hex()
	var out []domain.Holding
	s.holdings.Range(func(key string, amount uint64) bool {
		if len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix && amount > 0 {
			out = append(out, domain.Holding{
				MarketID: key[:len(key)-len(suffix)],
				Wallet:   wallet,
				Amount:   amount,
			})
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

// ListByMarket implements domain.TradeStore, newest first.
func (s *Store) ListByMarket(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Trade
	for i := len(s.trades) - 1; i >= 0; i-- {
		if s.trades[i].MarketID == marketID {
			out = append(out, copyTrade(s.trades[i]))
		}
	}
	return paginate(out, opts), nil
}

// ListByWalletTrades implements domain.TradeStore, newest first.
func (s *Store) ListByWalletTrades(_ context.Context, wallet common.Address, opts domain.ListOpts) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Trade
	for i := len(s.trades) - 1; i >= 0; i-- {
		if s.trades[i].Wallet == wallet {
			out = append(out, copyTrade(s.trades[i]))
		}
	}
	return paginate(out, opts), nil
}

// ListBefore implements domain.TradeStore, oldest first.
func (s *Store) ListBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Trade
	for _, t := range s.trades {
		if t.CreatedAt.Before(cutoff) {
			out = append(out, copyTrade(t))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// DeleteBefore implements domain.TradeStore.
func (s *Store) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.trades[:0]
	var deleted int64
	for _, t := range s.trades {
		if t.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, t)
	}
	s.trades = kept
	return deleted, nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}
