package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Trade is an append-only record of one executed buy or sell. It exists for
// external indexing and holder discovery; the engine never reads trades back
// to compute state.
type Trade struct {
	ID            int64
	MarketID      string
	Wallet        common.Address
	Direction     TradeDirection
	Amount        uint64
	Gross         *big.Int
	ProtocolFee   *big.Int
	OriginatorFee *big.Int
	SupplyAfter   uint64
	CreatedAt     time.Time
}

// FeeClaim records a drain of a market's pending originator fees to its
// verified owner.
type FeeClaim struct {
	MarketID  string
	Wallet    common.Address
	Amount    *big.Int
	ClaimedAt time.Time
}
