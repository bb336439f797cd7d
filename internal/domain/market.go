// Package domain defines the core entities, error taxonomy, and persistence
// ports of the claw market engine. Monetary amounts are *big.Int values in
// the smallest currency unit; they are never represented as floats.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Market is the bonding-curve state for one normalized handle. A market with
// Supply == 0 and no stored record is "unborn"; it is created by the first
// successful buy and stays active forever after (supply can never return
// to zero).
type Market struct {
	// ID is the normalized handle (see NormalizeHandle).
	ID string

	// Supply is the number of outstanding claw units.
	Supply uint64

	// PendingFees is the originator fee accrued and not yet claimed.
	PendingFees *big.Int

	// LifetimeFees is the total originator fee ever accrued. Never decreases.
	LifetimeFees *big.Int

	// LifetimeVolume is the total gross (pre-fee) value ever traded.
	// Never decreases.
	LifetimeVolume *big.Int

	// VerifiedOwner is set exactly once, together with Verified.
	VerifiedOwner *common.Address
	Verified      bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewMarket returns the zero-value state for an unborn market. Stores and the
// engine use it so that money fields are never nil.
func NewMarket(id string) Market {
	return Market{
		ID:             id,
		PendingFees:    new(big.Int),
		LifetimeFees:   new(big.Int),
		LifetimeVolume: new(big.Int),
	}
}

// Holding is one wallet's claw balance in one market. The sum of all holding
// amounts for a market always equals that market's supply.
type Holding struct {
	MarketID string
	Wallet   common.Address
	Amount   uint64
}

// TradeDirection is the side of a trade.
type TradeDirection string

const (
	DirectionBuy  TradeDirection = "buy"
	DirectionSell TradeDirection = "sell"
)

// Valid reports whether the direction is one of the two known values.
func (d TradeDirection) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// Quote is the engine's price breakdown for a prospective trade. Total is the
// amount the buyer must send (gross + fees) on buys, and the net proceeds
// (gross - fees) on sells. Quotes are advisory: supply may move between quote
// and execution, which is what the slippage bounds on buy/sell are for.
type Quote struct {
	Direction     TradeDirection
	Amount        uint64
	Gross         *big.Int
	ProtocolFee   *big.Int
	OriginatorFee *big.Int
	Total         *big.Int
}

// TradeReceipt is the result of an executed buy or sell.
type TradeReceipt struct {
	Quote
	MarketID  string
	Wallet    common.Address
	NewSupply uint64
	Timestamp time.Time
}
