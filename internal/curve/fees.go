package curve

import (
	"fmt"
	"math/big"
)

const bpsDenominator = 10000

// FeeSplit holds the fixed protocol and originator fee rates in basis points
// of the gross trade value. Rates are applied on both buys and sells.
type FeeSplit struct {
	ProtocolBps   uint64
	OriginatorBps uint64
}

// DefaultFeeSplit is the deployed 5% + 5% split.
func DefaultFeeSplit() FeeSplit {
	return FeeSplit{ProtocolBps: 500, OriginatorBps: 500}
}

// Validate rejects splits that would extract the whole gross value or more.
func (f FeeSplit) Validate() error {
	if f.ProtocolBps+f.OriginatorBps >= bpsDenominator {
		return fmt.Errorf("curve: total fee %d bps must be below %d", f.ProtocolBps+f.OriginatorBps, bpsDenominator)
	}
	return nil
}

// Split computes the protocol and originator shares of a gross amount. Each
// share is floored independently rather than derived from the other, so the
// total extracted fee can undershoot the nominal rate by at most rounding
// dust; buy totals and sell nets both depend on exactly this formula.
func (f FeeSplit) Split(gross *big.Int) (protocol, originator *big.Int) {
	return feeShare(gross, f.ProtocolBps), feeShare(gross, f.OriginatorBps)
}

func feeShare(gross *big.Int, bps uint64) *big.Int {
	share := new(big.Int).Mul(gross, new(big.Int).SetUint64(bps))
	return share.Quo(share, big.NewInt(bpsDenominator))
}
