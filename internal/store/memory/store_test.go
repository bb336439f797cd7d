package memory

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawstreet/clawd/internal/domain"
)

var (
	alice = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func buyDelta(amount uint64, gross int64, at time.Time) domain.TradeDelta {
	return domain.TradeDelta{
		Amount:        amount,
		Gross:         big.NewInt(gross),
		ProtocolFee:   big.NewInt(gross / 20),
		OriginatorFee: big.NewInt(gross / 20),
		At:            at,
	}
}

func TestApplyBuyCreatesMarket(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	m, trade, err := s.ApplyBuy(ctx, "molty", alice, buyDelta(3, 1000, now))
	require.NoError(t, err)

	assert.Equal(t, uint64(3), m.Supply)
	assert.Equal(t, "50", m.PendingFees.String())
	assert.Equal(t, "1000", m.LifetimeVolume.String())
	assert.Equal(t, int64(1), trade.ID)
	assert.Equal(t, uint64(3), trade.SupplyAfter)

	held, err := s.GetBalance(ctx, "molty", alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), held)
}

func TestApplySellChecksSupplyAndBalance(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_, _, err := s.ApplySell(ctx, "ghost", alice, buyDelta(1, 100, now))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = s.ApplyBuy(ctx, "molty", alice, buyDelta(2, 1000, now))
	require.NoError(t, err)

	// The last outstanding unit is never sellable.
	_, _, err = s.ApplySell(ctx, "molty", alice, buyDelta(2, 500, now))
	assert.ErrorIs(t, err, domain.ErrInsufficientSupply)

	// Bob holds nothing.
	_, _, err = s.ApplySell(ctx, "molty", bob, buyDelta(1, 500, now))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	m, _, err := s.ApplySell(ctx, "molty", alice, buyDelta(1, 500, now))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.Supply)

	held, err := s.GetBalance(ctx, "molty", alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), held)
}

func TestReadsReturnCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, _, err := s.ApplyBuy(ctx, "molty", alice, buyDelta(1, 1000, time.Now().UTC()))
	require.NoError(t, err)

	m, err := s.Get(ctx, "molty")
	require.NoError(t, err)
	m.PendingFees.SetInt64(999999)

	again, err := s.Get(ctx, "molty")
	require.NoError(t, err)
	assert.Equal(t, "50", again.PendingFees.String())
}

func TestSetVerifiedExactlyOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	assert.ErrorIs(t, s.SetVerified(ctx, "ghost", alice), domain.ErrNotFound)

	_, _, err := s.ApplyBuy(ctx, "molty", alice, buyDelta(1, 1000, time.Now().UTC()))
	require.NoError(t, err)

	require.NoError(t, s.SetVerified(ctx, "molty", alice))
	assert.ErrorIs(t, s.SetVerified(ctx, "molty", bob), domain.ErrAlreadyVerified)

	m, err := s.Get(ctx, "molty")
	require.NoError(t, err)
	require.NotNil(t, m.VerifiedOwner)
	assert.Equal(t, alice, *m.VerifiedOwner)
}

func TestDrainPendingFees(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, _, err := s.ApplyBuy(ctx, "molty", alice, buyDelta(1, 1000, time.Now().UTC()))
	require.NoError(t, err)

	drained, err := s.DrainPendingFees(ctx, "molty")
	require.NoError(t, err)
	assert.Equal(t, "50", drained.String())

	again, err := s.DrainPendingFees(ctx, "molty")
	require.NoError(t, err)
	assert.Zero(t, again.Sign())

	m, err := s.Get(ctx, "molty")
	require.NoError(t, err)
	// Lifetime totals survive the drain.
	assert.Equal(t, "50", m.LifetimeFees.String())
}

func TestListOrdersByLifetimeVolume(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_, _, err := s.ApplyBuy(ctx, "small", alice, buyDelta(1, 100, now))
	require.NoError(t, err)
	_, _, err = s.ApplyBuy(ctx, "big", alice, buyDelta(1, 9000, now))
	require.NoError(t, err)

	markets, err := s.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, "big", markets[0].ID)

	page, err := s.List(ctx, domain.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "small", page[0].ID)
}

func TestHoldersSortedByAmount(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_, _, err := s.ApplyBuy(ctx, "molty", alice, buyDelta(1, 100, now))
	require.NoError(t, err)
	_, _, err = s.ApplyBuy(ctx, "molty", bob, buyDelta(5, 100, now))
	require.NoError(t, err)

	holders, err := s.ListHolders(ctx, "molty", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, holders, 2)
	assert.Equal(t, bob, holders[0].Wallet)
	assert.Equal(t, uint64(5), holders[0].Amount)
}

func TestTradeRetention(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour)

	_, _, err := s.ApplyBuy(ctx, "molty", alice, buyDelta(1, 100, old))
	require.NoError(t, err)
	_, _, err = s.ApplyBuy(ctx, "molty", alice, buyDelta(1, 200, now))
	require.NoError(t, err)

	cutoff := now.Add(-time.Hour)
	aged, err := s.ListBefore(ctx, cutoff, 0)
	require.NoError(t, err)
	require.Len(t, aged, 1)
	assert.Equal(t, "100", aged[0].Gross.String())

	deleted, err := s.DeleteBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := s.ListByMarket(ctx, "molty", domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestNonceConsumeOncePerMarket(t *testing.T) {
	ns := NewNonceStore()
	ctx := context.Background()

	require.NoError(t, ns.Consume(ctx, "molty", 7))
	assert.ErrorIs(t, ns.Consume(ctx, "molty", 7), domain.ErrAttestationReplayed)
	// Same nonce under a different market is fresh.
	require.NoError(t, ns.Consume(ctx, "crab", 7))
}
