package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// TradeDelta carries the engine-computed numbers a single trade applies to a
// market: the unit amount, the gross curve value, and the originator fee to
// accrue. The protocol fee never touches market state; it is reported to the
// payment collaborator through the trade record.
type TradeDelta struct {
	Amount        uint64
	Gross         *big.Int
	ProtocolFee   *big.Int
	OriginatorFee *big.Int
	At            time.Time
}

// MarketStore owns all market mutation. Every mutating method is atomic: the
// market row, the caller's balance, and the appended trade record move
// together or not at all. Callers are expected to serialize mutations per
// market id (the engine holds a per-id lock); the store additionally guards
// with row-level locking so an interleaved writer can never corrupt supply.
type MarketStore interface {
	// Get returns the market for id, or ErrNotFound if it is unborn.
	Get(ctx context.Context, id string) (Market, error)

	// List returns markets ordered by lifetime volume descending.
	List(ctx context.Context, opts ListOpts) ([]Market, error)

	// Count returns the number of created markets.
	Count(ctx context.Context) (int64, error)

	// ApplyBuy creates the market on first trade, increments supply, credits
	// the wallet's balance, accrues pending/lifetime fees and volume, and
	// appends the trade record. Returns the post-trade market and the record.
	ApplyBuy(ctx context.Context, id string, wallet common.Address, delta TradeDelta) (Market, Trade, error)

	// ApplySell is the mirror of ApplyBuy. It fails with
	// ErrInsufficientBalance or ErrInsufficientSupply if the debit would go
	// negative or supply would drop below one; these are backstops for checks
	// the engine already performed under its lock.
	ApplySell(ctx context.Context, id string, wallet common.Address, delta TradeDelta) (Market, Trade, error)

	// SetVerified marks the market verified with the given owner. Fails with
	// ErrAlreadyVerified if verification already happened and ErrNotFound if
	// the market is unborn.
	SetVerified(ctx context.Context, id string, owner common.Address) error

	// DrainPendingFees atomically reads and zeroes pendingFees, returning the
	// drained amount. Draining an unborn market returns ErrNotFound.
	DrainPendingFees(ctx context.Context, id string) (*big.Int, error)
}

// BalanceStore reads per-wallet holdings. Balances are mutated only through
// MarketStore.ApplyBuy/ApplySell.
type BalanceStore interface {
	// Get returns the wallet's balance in the market; zero (not ErrNotFound)
	// when the wallet holds nothing.
	Get(ctx context.Context, marketID string, wallet common.Address) (uint64, error)

	// ListHolders returns non-zero holdings for a market, largest first.
	ListHolders(ctx context.Context, marketID string, opts ListOpts) ([]Holding, error)

	// ListByWallet returns all non-zero holdings of one wallet.
	ListByWallet(ctx context.Context, wallet common.Address) ([]Holding, error)
}

// TradeStore reads the append-only trade log written by MarketStore.
type TradeStore interface {
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Trade, error)
	ListByWallet(ctx context.Context, wallet common.Address, opts ListOpts) ([]Trade, error)

	// ListBefore returns trades older than cutoff, oldest first, up to limit.
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Trade, error)

	// DeleteBefore removes trades older than cutoff after archival and
	// returns the number deleted.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NonceStore is the persisted used-nonce set for attestation replay
// protection, scoped per market id.
type NonceStore interface {
	// Consume records (marketID, nonce) as used. It fails with
	// ErrAttestationReplayed if the pair was consumed before.
	Consume(ctx context.Context, marketID string, nonce uint64) error
}
