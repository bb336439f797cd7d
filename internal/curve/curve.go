// Package curve implements the quadratic bonding curve that prices claws.
// All arithmetic is exact big-integer math with a single floor division at
// the end of each computation, so any external party can recompute a trade
// bit-for-bit from the supply alone.
package curve

import (
	"fmt"
	"math/big"

	"github.com/clawstreet/clawd/internal/domain"
)

// Params fixes the curve at deployment. The marginal price of the unit at
// supply s is s² × UnitScale / K smallest currency units; price at supply 0
// is 0, so the first unit of every market is free.
type Params struct {
	// K is the curve divisor. Larger K means a flatter curve.
	K uint64

	// UnitScale converts whole currency units into smallest units
	// (1e18 for an 18-decimal currency).
	UnitScale *big.Int
}

// DefaultParams matches the deployed configuration: K=16000 with an
// 18-decimal currency.
func DefaultParams() Params {
	return Params{
		K:         16000,
		UnitScale: new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil),
	}
}

// Validate rejects parameter combinations the curve math cannot support.
func (p Params) Validate() error {
	if p.K == 0 {
		return fmt.Errorf("curve: K must be positive")
	}
	if p.UnitScale == nil || p.UnitScale.Sign() <= 0 {
		return fmt.Errorf("curve: unit scale must be positive")
	}
	return nil
}

// PriceAt returns the price of the next unit when current supply is supply.
func (p Params) PriceAt(supply uint64) *big.Int {
	s := new(big.Int).SetUint64(supply)
	price := new(big.Int).Mul(s, s)
	price.Mul(price, p.UnitScale)
	return price.Quo(price, new(big.Int).SetUint64(p.K))
}

// CostToBuy returns the exact gross cost of buying amount units starting at
// the given supply: the sum of PriceAt over [supply, supply+amount), computed
// in closed form with the division deferred to the very end.
func (p Params) CostToBuy(supply, amount uint64) *big.Int {
	if amount == 0 {
		return new(big.Int)
	}
	sum := new(big.Int).Sub(sumOfSquares(supply+amount-1), sumOfSquaresBelow(supply))
	sum.Mul(sum, p.UnitScale)
	return sum.Quo(sum, new(big.Int).SetUint64(p.K))
}

// ProceedsFromSell returns the exact gross proceeds of selling amount units
// from the given supply: the sum of PriceAt over [supply-amount, supply).
// The last outstanding unit can never be sold, so amount must be strictly
// less than supply.
func (p Params) ProceedsFromSell(supply, amount uint64) (*big.Int, error) {
	if amount == 0 {
		return new(big.Int), nil
	}
	if amount >= supply {
		return nil, fmt.Errorf("%w: cannot sell %d of %d units", domain.ErrInsufficientSupply, amount, supply)
	}
	return p.CostToBuy(supply-amount, amount), nil
}

// sumOfSquares returns Σ k² for k in [0, n] via n(n+1)(2n+1)/6. The division
// by 6 is exact for every n.
func sumOfSquares(n uint64) *big.Int {
	bn := new(big.Int).SetUint64(n)
	sum := new(big.Int).Add(bn, big.NewInt(1))
	sum.Mul(sum, bn)
	twoN := new(big.Int).Lsh(bn, 1)
	sum.Mul(sum, twoN.Add(twoN, big.NewInt(1)))
	return sum.Quo(sum, big.NewInt(6))
}

// sumOfSquaresBelow returns Σ k² for k in [0, n), treating n == 0 as 0.
func sumOfSquaresBelow(n uint64) *big.Int {
	if n == 0 {
		return new(big.Int)
	}
	return sumOfSquares(n - 1)
}
