package curve

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawstreet/clawd/internal/domain"
)

func TestPriceAtMonotonic(t *testing.T) {
	p := DefaultParams()

	prev := p.PriceAt(0)
	require.Zero(t, prev.Sign(), "first unit must be free")

	for s := uint64(1); s <= 2000; s++ {
		price := p.PriceAt(s)
		assert.True(t, price.Cmp(prev) >= 0, "price must not decrease at supply %d", s)
		prev = price
	}
}

func TestCostToBuyMatchesUnitSum(t *testing.T) {
	p := DefaultParams()

	for _, tc := range []struct{ supply, amount uint64 }{
		{0, 1}, {0, 2}, {0, 10}, {1, 1}, {5, 3}, {100, 50}, {9999, 7},
	} {
		want := new(big.Int)
		for i := uint64(0); i < tc.amount; i++ {
			want.Add(want, p.PriceAt(tc.supply+i))
		}
		got := p.CostToBuy(tc.supply, tc.amount)
		assert.Zero(t, got.Cmp(want), "cost(%d,%d) = %s, want %s", tc.supply, tc.amount, got, want)
	}
}

func TestCostToBuyWorkedExample(t *testing.T) {
	// K=16000, 18-decimal currency: buying 2 units from supply 0 sums the
	// squares 0²+1² = 1, so gross = 1e18/16000 = 62_500_000_000_000.
	p := DefaultParams()
	got := p.CostToBuy(0, 2)
	assert.Equal(t, "62500000000000", got.String())

	// First unit alone is exactly free.
	assert.Zero(t, p.CostToBuy(0, 1).Sign())
}

func TestCostToBuyAdditivity(t *testing.T) {
	p := DefaultParams()

	for _, tc := range []struct{ supply, a, b uint64 }{
		{0, 1, 1}, {0, 3, 7}, {10, 5, 5}, {123, 17, 29}, {5000, 250, 1},
	} {
		whole := p.CostToBuy(tc.supply, tc.a+tc.b)
		split := new(big.Int).Add(p.CostToBuy(tc.supply, tc.a), p.CostToBuy(tc.supply+tc.a, tc.b))
		assert.Zero(t, whole.Cmp(split), "additivity broken at supply=%d a=%d b=%d", tc.supply, tc.a, tc.b)
	}
}

func TestBuySellSymmetry(t *testing.T) {
	p := DefaultParams()

	for _, tc := range []struct{ supply, amount uint64 }{
		{2, 1}, {10, 5}, {100, 99}, {5000, 1234},
	} {
		proceeds, err := p.ProceedsFromSell(tc.supply, tc.amount)
		require.NoError(t, err)
		cost := p.CostToBuy(tc.supply-tc.amount, tc.amount)
		assert.Zero(t, proceeds.Cmp(cost), "symmetry broken at supply=%d amount=%d", tc.supply, tc.amount)
	}
}

func TestProceedsFromSellFloor(t *testing.T) {
	p := DefaultParams()

	// Selling the whole supply, or more than it, must fail: the last unit
	// stays locked in forever.
	_, err := p.ProceedsFromSell(5, 5)
	assert.ErrorIs(t, err, domain.ErrInsufficientSupply)

	_, err = p.ProceedsFromSell(5, 6)
	assert.ErrorIs(t, err, domain.ErrInsufficientSupply)

	proceeds, err := p.ProceedsFromSell(5, 4)
	require.NoError(t, err)
	assert.Positive(t, proceeds.Sign())
}

func TestZeroAmountIsFree(t *testing.T) {
	p := DefaultParams()
	assert.Zero(t, p.CostToBuy(42, 0).Sign())

	proceeds, err := p.ProceedsFromSell(42, 0)
	require.NoError(t, err)
	assert.Zero(t, proceeds.Sign())
}

func TestLargeSupplyNoOverflow(t *testing.T) {
	// Supply x amount products far past uint64 range must stay exact.
	p := DefaultParams()
	got := p.CostToBuy(1_000_000_000, 1_000_000)

	want := new(big.Int).Sub(sumOfSquares(1_000_000_000+1_000_000-1), sumOfSquares(1_000_000_000-1))
	want.Mul(want, p.UnitScale)
	want.Quo(want, new(big.Int).SetUint64(p.K))
	assert.Zero(t, got.Cmp(want))
	assert.Greater(t, len(got.String()), 30, "expected an amount beyond uint64 range")
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())
	assert.Error(t, Params{K: 0, UnitScale: big.NewInt(1)}.Validate())
	assert.Error(t, Params{K: 16000}.Validate())
	assert.Error(t, Params{K: 16000, UnitScale: new(big.Int)}.Validate())
}
