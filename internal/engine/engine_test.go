package engine

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawstreet/clawd/internal/attest"
	"github.com/clawstreet/clawd/internal/curve"
	"github.com/clawstreet/clawd/internal/domain"
	"github.com/clawstreet/clawd/internal/store/memory"
)

const testChainID = 8453

var (
	alice = common.HexToAddress("0xA11CE00000000000000000000000000000000001")
	bob   = common.HexToAddress("0xB0B0000000000000000000000000000000000002")
)

// fakeBus records every published event for assertions.
type fakeBus struct {
	mu     sync.Mutex
	events []Event
}

func (b *fakeBus) Publish(_ context.Context, _ string, payload []byte) error {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }
func (b *fakeBus) StreamAppend(context.Context, string, []byte) error       { return nil }
func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *fakeBus) byType(typ string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	for _, ev := range b.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	engine *Engine
	store  *memory.Store
	signer *attest.Signer
	bus    *fakeBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	pk, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	signer := attest.NewSignerFromKey(pk, testChainID)
	verifier := attest.NewVerifier(attest.VerifierConfig{
		Authority: signer.Address(),
		ChainID:   testChainID,
	}, memory.NewNonceStore())

	store := memory.NewStore()
	bus := &fakeBus{}
	eng, err := New(Config{
		Markets:  store,
		Balances: store.Balances(),
		Verifier: verifier,
		Curve:    curve.DefaultParams(),
		Fees:     curve.DefaultFeeSplit(),
		Bus:      bus,
	})
	require.NoError(t, err)
	return &fixture{engine: eng, store: store, signer: signer, bus: bus}
}

func (f *fixture) mustBuy(t *testing.T, handle string, wallet common.Address, amount uint64) domain.TradeReceipt {
	t.Helper()
	r, err := f.engine.CreateOrBuy(context.Background(), handle, wallet, amount, nil)
	require.NoError(t, err)
	return r
}

func (f *fixture) verifyOwner(t *testing.T, handle string, wallet common.Address, nonce uint64) {
	t.Helper()
	att, err := f.signer.Sign(handle, wallet, time.Now(), nonce)
	require.NoError(t, err)
	require.NoError(t, f.engine.VerifyAndClaim(context.Background(), handle, wallet, att))
}

func TestFirstBuyCreatesMarket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.mustBuy(t, "@Molty", alice, 1)
	assert.Equal(t, "molty", r.MarketID)
	assert.Equal(t, uint64(1), r.NewSupply)

	// The unit at supply 0 is free, so the very first buy costs nothing.
	assert.Zero(t, r.Gross.Sign())
	assert.Zero(t, r.Total.Sign())

	m, err := f.engine.GetMarket(ctx, "molty")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.Supply)
	assert.False(t, m.Verified)

	held, err := f.store.GetBalance(ctx, "molty", alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), held)
}

func TestBuyChargesCurvePlusFees(t *testing.T) {
	f := newFixture(t)

	f.mustBuy(t, "molty", alice, 1)
	r := f.mustBuy(t, "molty", bob, 1)

	// Second unit: 1² × 1e18 / 16000.
	assert.Equal(t, "62500000000000", r.Gross.String())
	assert.Equal(t, "3125000000000", r.ProtocolFee.String())
	assert.Equal(t, "3125000000000", r.OriginatorFee.String())
	assert.Equal(t, "68750000000000", r.Total.String())
	assert.Equal(t, uint64(2), r.NewSupply)
}

func TestQuoteMatchesExecution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustBuy(t, "molty", alice, 5)

	q, err := f.engine.Quote(ctx, "molty", 3, domain.DirectionBuy)
	require.NoError(t, err)

	r := f.mustBuy(t, "molty", bob, 3)
	assert.Zero(t, q.Gross.Cmp(r.Gross))
	assert.Zero(t, q.Total.Cmp(r.Total))

	qs, err := f.engine.Quote(ctx, "molty", 3, domain.DirectionSell)
	require.NoError(t, err)
	rs, err := f.engine.Sell(ctx, "molty", bob, 3, nil)
	require.NoError(t, err)
	assert.Zero(t, qs.Gross.Cmp(rs.Gross))
	assert.Zero(t, qs.Total.Cmp(rs.Total))
}

func TestSellProceedsMirrorBuyCost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mustBuy(t, "molty", alice, 1)
	buy := f.mustBuy(t, "molty", bob, 4)

	sell, err := f.engine.Sell(ctx, "molty", bob, 4, nil)
	require.NoError(t, err)

	// Selling the same units back yields the same gross the buy cost.
	assert.Zero(t, buy.Gross.Cmp(sell.Gross))
	assert.Equal(t, uint64(1), sell.NewSupply)
}

func TestSupplyConservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mustBuy(t, "molty", alice, 10)
	f.mustBuy(t, "molty", bob, 7)
	_, err := f.engine.Sell(ctx, "molty", alice, 4, nil)
	require.NoError(t, err)
	_, err = f.engine.Sell(ctx, "molty", bob, 7, nil)
	require.NoError(t, err)
	f.mustBuy(t, "molty", bob, 2)

	m, err := f.engine.GetMarket(ctx, "molty")
	require.NoError(t, err)

	holders, err := f.store.ListHolders(ctx, "molty", domain.ListOpts{})
	require.NoError(t, err)
	var total uint64
	for _, h := range holders {
		total += h.Amount
	}
	assert.Equal(t, m.Supply, total)
	assert.Equal(t, uint64(8), m.Supply)
}

func TestFeeAccrual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expected := new(big.Int)
	r1 := f.mustBuy(t, "molty", alice, 10)
	expected.Add(expected, r1.OriginatorFee)
	r2, err := f.engine.Sell(ctx, "molty", alice, 5, nil)
	require.NoError(t, err)
	expected.Add(expected, r2.OriginatorFee)

	m, err := f.engine.GetMarket(ctx, "molty")
	require.NoError(t, err)
	assert.Zero(t, m.PendingFees.Cmp(expected))
	assert.Zero(t, m.LifetimeFees.Cmp(expected))

	wantVolume := new(big.Int).Add(r1.Gross, r2.Gross)
	assert.Zero(t, m.LifetimeVolume.Cmp(wantVolume))
}

func TestBuySlippageRejectedWithoutStateChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustBuy(t, "molty", alice, 10)

	before, err := f.engine.GetMarket(ctx, "molty")
	require.NoError(t, err)

	_, err = f.engine.CreateOrBuy(ctx, "molty", bob, 5, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)

	after, err := f.engine.GetMarket(ctx, "molty")
	require.NoError(t, err)
	assert.Equal(t, before.Supply, after.Supply)
	assert.Zero(t, before.PendingFees.Cmp(after.PendingFees))
	assert.Zero(t, before.LifetimeVolume.Cmp(after.LifetimeVolume))

	held, err := f.store.GetBalance(ctx, "molty", bob)
	require.NoError(t, err)
	assert.Zero(t, held)
}

func TestSellSlippageRejectedWithoutStateChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustBuy(t, "molty", alice, 10)

	floor := new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
	_, err := f.engine.Sell(ctx, "molty", alice, 5, floor)
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)

	m, err := f.engine.GetMarket(ctx, "molty")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), m.Supply)
	held, err := f.store.GetBalance(ctx, "molty", alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), held)
}

func TestLastUnitNeverSellable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustBuy(t, "molty", alice, 3)

	_, err := f.engine.Sell(ctx, "molty", alice, 3, nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientSupply)

	_, err = f.engine.Sell(ctx, "molty", alice, 2, nil)
	assert.NoError(t, err)
	_, err = f.engine.Sell(ctx, "molty", alice, 1, nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientSupply)
}

func TestSellRequiresBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustBuy(t, "molty", alice, 5)

	_, err := f.engine.Sell(ctx, "molty", bob, 1, nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestSellUnbornMarket(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Sell(context.Background(), "ghost", alice, 1, nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientSupply)
}

func TestInvalidInputs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateOrBuy(ctx, "no spaces!", alice, 1, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidHandle)

	_, err = f.engine.CreateOrBuy(ctx, "molty", alice, 0, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.engine.Quote(ctx, "molty", 1, domain.TradeDirection("hold"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestVerifyAndClaimFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mustBuy(t, "molty", alice, 10)
	f.mustBuy(t, "molty", bob, 5)

	// Claiming before verification is unauthorized for everyone.
	_, err := f.engine.ClaimFees(ctx, "molty", alice)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	f.verifyOwner(t, "molty", alice, 1)

	m, err := f.engine.GetMarket(ctx, "molty")
	require.NoError(t, err)
	require.True(t, m.Verified)
	require.NotNil(t, m.VerifiedOwner)
	assert.Equal(t, alice, *m.VerifiedOwner)

	// Only the verified owner can claim.
	_, err = f.engine.ClaimFees(ctx, "molty", bob)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	pending := new(big.Int).Set(m.PendingFees)
	require.Positive(t, pending.Sign())

	claimed, err := f.engine.ClaimFees(ctx, "molty", alice)
	require.NoError(t, err)
	assert.Zero(t, claimed.Cmp(pending))

	// Drained to zero; a second claim is a successful no-op.
	again, err := f.engine.ClaimFees(ctx, "molty", alice)
	require.NoError(t, err)
	assert.Zero(t, again.Sign())

	m, err = f.engine.GetMarket(ctx, "molty")
	require.NoError(t, err)
	assert.Zero(t, m.PendingFees.Sign())
	assert.Zero(t, m.LifetimeFees.Cmp(pending))
}

func TestVerifyExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustBuy(t, "molty", alice, 2)
	f.verifyOwner(t, "molty", alice, 1)

	att, err := f.signer.Sign("molty", bob, time.Now(), 2)
	require.NoError(t, err)
	err = f.engine.VerifyAndClaim(ctx, "molty", bob, att)
	assert.ErrorIs(t, err, domain.ErrAlreadyVerified)

	// Ownership did not move.
	m, err := f.engine.GetMarket(ctx, "molty")
	require.NoError(t, err)
	assert.Equal(t, alice, *m.VerifiedOwner)
}

func TestVerifyRejectsMismatchedAttestation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustBuy(t, "molty", alice, 2)

	// Attestation binds bob, request claims alice.
	att, err := f.signer.Sign("molty", bob, time.Now(), 1)
	require.NoError(t, err)
	err = f.engine.VerifyAndClaim(ctx, "molty", alice, att)
	assert.ErrorIs(t, err, domain.ErrInvalidAttestation)

	m, err := f.engine.GetMarket(ctx, "molty")
	require.NoError(t, err)
	assert.False(t, m.Verified)
}

func TestVerifyUnbornMarket(t *testing.T) {
	f := newFixture(t)

	att, err := f.signer.Sign("ghost", alice, time.Now(), 1)
	require.NoError(t, err)
	err = f.engine.VerifyAndClaim(context.Background(), "ghost", alice, att)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetMarketUnbornIsZeroState(t *testing.T) {
	f := newFixture(t)

	m, err := f.engine.GetMarket(context.Background(), "@Ghost")
	require.NoError(t, err)
	assert.Equal(t, "ghost", m.ID)
	assert.Zero(t, m.Supply)
	assert.Zero(t, m.PendingFees.Sign())
	assert.False(t, m.Verified)
}

func TestConcurrentBuysSerialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	receipts := make([]domain.TradeReceipt, 2)
	for i := range receipts {
		wg.Add(1)
		go func(i int, wallet common.Address) {
			defer wg.Done()
			r, err := f.engine.CreateOrBuy(ctx, "molty", wallet, 1, nil)
			require.NoError(t, err)
			receipts[i] = r
		}(i, []common.Address{alice, bob}[i])
	}
	wg.Wait()

	m, err := f.engine.GetMarket(ctx, "molty")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), m.Supply)

	// One trade filled at supply 0 (free unit), the other at supply 1.
	grosses := []string{receipts[0].Gross.String(), receipts[1].Gross.String()}
	assert.ElementsMatch(t, []string{"0", "62500000000000"}, grosses)
}

func TestEventsEmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mustBuy(t, "molty", alice, 10)
	_, err := f.engine.Sell(ctx, "molty", alice, 2, nil)
	require.NoError(t, err)
	f.verifyOwner(t, "molty", alice, 1)
	_, err = f.engine.ClaimFees(ctx, "molty", alice)
	require.NoError(t, err)

	trades := f.bus.byType("trade")
	// Each trade publishes on the global and the per-market channel.
	require.Len(t, trades, 4)
	assert.Equal(t, "buy", trades[0].Direction)
	assert.Equal(t, uint64(10), trades[0].Amount)
	assert.Equal(t, uint64(10), trades[0].SupplyAfter)

	require.Len(t, f.bus.byType("verified"), 1)
	claims := f.bus.byType("claim")
	require.Len(t, claims, 1)
	assert.NotEqual(t, "0", claims[0].Claimed)
	assert.Equal(t, alice.Hex(), claims[0].Wallet)
}

func TestDistributedLockRetries(t *testing.T) {
	locks := memory.NewLockManager()
	store := memory.NewStore()
	eng, err := New(Config{
		Markets:  store,
		Balances: store.Balances(),
		Curve:    curve.DefaultParams(),
		Fees:     curve.DefaultFeeSplit(),
		DistLock: locks,
	})
	require.NoError(t, err)

	ctx := context.Background()

	// Hold the market lock externally; the buy must wait until release.
	release, err := locks.Acquire(ctx, "market:molty", time.Minute)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := eng.CreateOrBuy(ctx, "molty", alice, 1, nil)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("buy completed while the market lock was held")
	case <-time.After(100 * time.Millisecond):
	}

	release()
	require.NoError(t, <-done)

	m, err := eng.GetMarket(ctx, "molty")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.Supply)
}
