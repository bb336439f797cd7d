// Package engine orchestrates all claw market operations: market creation,
// buys, sells, fee claims, and ownership verification. It is the only writer
// of market state. Every mutation on a market id runs under that id's lock,
// so concurrent trades on one market observe a strictly ordered sequence of
// read-compute-write; operations on different ids proceed in parallel.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/clawstreet/clawd/internal/curve"
	"github.com/clawstreet/clawd/internal/domain"
)

const (
	// distLockTTL bounds how long a crashed process can wedge a market.
	distLockTTL = 10 * time.Second

	// distLockRetry is the poll interval while another process holds the
	// market lock.
	distLockRetry = 25 * time.Millisecond
)

// Config wires an Engine.
type Config struct {
	Markets  domain.MarketStore
	Balances domain.BalanceStore
	Verifier domain.AttestationVerifier

	Curve curve.Params
	Fees  curve.FeeSplit

	// Cache, Bus, and DistLock are optional. Cache entries are invalidated
	// after every mutation; Bus receives trade/claim/verify events; DistLock
	// extends market serialization across processes.
	Cache    domain.MarketCache
	Bus      domain.SignalBus
	DistLock domain.LockManager

	Logger *slog.Logger
}

// Engine is the claw market state machine.
type Engine struct {
	markets  domain.MarketStore
	balances domain.BalanceStore
	verifier domain.AttestationVerifier

	params curve.Params
	fees   curve.FeeSplit

	cache    domain.MarketCache
	bus      domain.SignalBus
	distLock domain.LockManager

	locks  *xsync.Map[string, *sync.Mutex]
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Engine after validating the curve and fee parameters.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Curve.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Fees.Validate(); err != nil {
		return nil, err
	}
	if cfg.Markets == nil || cfg.Balances == nil {
		return nil, fmt.Errorf("engine: market and balance stores are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		markets:  cfg.Markets,
		balances: cfg.Balances,
		verifier: cfg.Verifier,
		params:   cfg.Curve,
		fees:     cfg.Fees,
		cache:    cfg.Cache,
		bus:      cfg.Bus,
		distLock: cfg.DistLock,
		locks:    xsync.NewMap[string, *sync.Mutex](),
		logger:   logger.With(slog.String("component", "engine")),
		now:      time.Now,
	}, nil
}

// WithClock overrides the time source. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// lockMarket serializes mutations for one market id: the in-process mutex
// orders goroutines, the optional distributed lock orders processes. It
// returns an unlock function, or an error if the context expires while
// another process holds the distributed lock.
func (e *Engine) lockMarket(ctx context.Context, id string) (func(), error) {
	mu, _ := e.locks.LoadOrStore(id, &sync.Mutex{})
	mu.Lock()

	if e.distLock == nil {
		return mu.Unlock, nil
	}

	for {
		release, err := e.distLock.Acquire(ctx, "market:"+id, distLockTTL)
		if err == nil {
			return func() {
				release()
				mu.Unlock()
			}, nil
		}
		if err != domain.ErrLockHeld {
			mu.Unlock()
			return nil, fmt.Errorf("engine: acquire market lock %s: %w", id, err)
		}

		timer := time.NewTimer(distLockRetry)
		select {
		case <-ctx.Done():
			timer.Stop()
			mu.Unlock()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// currentSupply returns the supply for id, treating an unborn market as 0.
func (e *Engine) currentSupply(ctx context.Context, id string) (uint64, error) {
	m, err := e.markets.Get(ctx, id)
	if err != nil {
		if err == domain.ErrNotFound {
			return 0, nil
		}
		return 0, err
	}
	return m.Supply, nil
}

// CreateOrBuy buys amount units for wallet, creating the market on its first
// trade. A non-nil, positive maxTotalCost caps the total charge
// (gross + both fees); exceeding it fails with ErrSlippageExceeded and no
// state change. The returned receipt reports the exact total so the payment
// collaborator can refund any excess the caller sent.
func (e *Engine) CreateOrBuy(ctx context.Context, handle string, wallet common.Address, amount uint64, maxTotalCost *big.Int) (domain.TradeReceipt, error) {
	id, err := domain.NormalizeHandle(handle)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	if amount == 0 {
		return domain.TradeReceipt{}, fmt.Errorf("%w: amount must be at least 1", domain.ErrInvalidAmount)
	}

	unlock, err := e.lockMarket(ctx, id)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	defer unlock()

	supply, err := e.currentSupply(ctx, id)
	if err != nil {
		return domain.TradeReceipt{}, err
	}

	gross := e.params.CostToBuy(supply, amount)
	protocol, originator := e.fees.Split(gross)
	total := new(big.Int).Add(gross, protocol)
	total.Add(total, originator)

	if maxTotalCost != nil && maxTotalCost.Sign() > 0 && total.Cmp(maxTotalCost) > 0 {
		return domain.TradeReceipt{}, fmt.Errorf("%w: total %s exceeds cap %s",
			domain.ErrSlippageExceeded, total, maxTotalCost)
	}

	now := e.now().UTC()
	market, trade, err := e.markets.ApplyBuy(ctx, id, wallet, domain.TradeDelta{
		Amount:        amount,
		Gross:         gross,
		ProtocolFee:   protocol,
		OriginatorFee: originator,
		At:            now,
	})
	if err != nil {
		return domain.TradeReceipt{}, err
	}

	e.afterMutation(ctx, id)
	e.emitTrade(ctx, trade)

	e.logger.InfoContext(ctx, "buy executed",
		slog.String("market", id),
		slog.String("wallet", wallet.Hex()),
		slog.Uint64("amount", amount),
		slog.String("gross", gross.String()),
		slog.String("total", total.String()),
		slog.Uint64("supply", market.Supply),
	)

	return domain.TradeReceipt{
		Quote: domain.Quote{
			Direction:     domain.DirectionBuy,
			Amount:        amount,
			Gross:         gross,
			ProtocolFee:   protocol,
			OriginatorFee: originator,
			Total:         total,
		},
		MarketID:  id,
		Wallet:    wallet,
		NewSupply: market.Supply,
		Timestamp: now,
	}, nil
}

// Sell sells amount units held by wallet. The last outstanding unit can never
// be sold. A non-nil, positive minProceeds floors the net payout
// (gross - both fees); falling short fails with ErrSlippageExceeded and no
// state change.
func (e *Engine) Sell(ctx context.Context, handle string, wallet common.Address, amount uint64, minProceeds *big.Int) (domain.TradeReceipt, error) {
	id, err := domain.NormalizeHandle(handle)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	if amount == 0 {
		return domain.TradeReceipt{}, fmt.Errorf("%w: amount must be at least 1", domain.ErrInvalidAmount)
	}

	unlock, err := e.lockMarket(ctx, id)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	defer unlock()

	supply, err := e.currentSupply(ctx, id)
	if err != nil {
		return domain.TradeReceipt{}, err
	}

	gross, err := e.params.ProceedsFromSell(supply, amount)
	if err != nil {
		return domain.TradeReceipt{}, err
	}

	held, err := e.balances.Get(ctx, id, wallet)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	if held < amount {
		return domain.TradeReceipt{}, fmt.Errorf("%w: hold %d, selling %d", domain.ErrInsufficientBalance, held, amount)
	}

	protocol, originator := e.fees.Split(gross)
	net := new(big.Int).Sub(gross, protocol)
	net.Sub(net, originator)

	if minProceeds != nil && minProceeds.Sign() > 0 && net.Cmp(minProceeds) < 0 {
		return domain.TradeReceipt{}, fmt.Errorf("%w: net %s below floor %s",
			domain.ErrSlippageExceeded, net, minProceeds)
	}

	now := e.now().UTC()
	market, trade, err := e.markets.ApplySell(ctx, id, wallet, domain.TradeDelta{
		Amount:        amount,
		Gross:         gross,
		ProtocolFee:   protocol,
		OriginatorFee: originator,
		At:            now,
	})
	if err != nil {
		return domain.TradeReceipt{}, err
	}

	e.afterMutation(ctx, id)
	e.emitTrade(ctx, trade)

	e.logger.InfoContext(ctx, "sell executed",
		slog.String("market", id),
		slog.String("wallet", wallet.Hex()),
		slog.Uint64("amount", amount),
		slog.String("gross", gross.String()),
		slog.String("net", net.String()),
		slog.Uint64("supply", market.Supply),
	)

	return domain.TradeReceipt{
		Quote: domain.Quote{
			Direction:     domain.DirectionSell,
			Amount:        amount,
			Gross:         gross,
			ProtocolFee:   protocol,
			OriginatorFee: originator,
			Total:         net,
		},
		MarketID:  id,
		Wallet:    wallet,
		NewSupply: market.Supply,
		Timestamp: now,
	}, nil
}

// ClaimFees drains the market's pending originator fees to its verified
// owner. A zero balance is a successful no-op, not an error. The emitted
// claim event is the signal the payment collaborator pays out on.
func (e *Engine) ClaimFees(ctx context.Context, handle string, wallet common.Address) (*big.Int, error) {
	id, err := domain.NormalizeHandle(handle)
	if err != nil {
		return nil, err
	}

	unlock, err := e.lockMarket(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	m, err := e.markets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.Verified || m.VerifiedOwner == nil || *m.VerifiedOwner != wallet {
		return nil, fmt.Errorf("%w: only the verified owner can claim fees", domain.ErrUnauthorized)
	}

	drained, err := e.markets.DrainPendingFees(ctx, id)
	if err != nil {
		return nil, err
	}
	if drained.Sign() == 0 {
		return drained, nil
	}

	now := e.now().UTC()
	e.afterMutation(ctx, id)
	e.emitClaim(ctx, domain.FeeClaim{MarketID: id, Wallet: wallet, Amount: drained, ClaimedAt: now})

	e.logger.InfoContext(ctx, "fees claimed",
		slog.String("market", id),
		slog.String("wallet", wallet.Hex()),
		slog.String("amount", drained.String()),
	)
	return drained, nil
}

// VerifyAndClaim marks the market verified for wallet after the attestation
// passes signature, binding, freshness, and replay checks. Verification is
// irreversible and happens at most once per market.
func (e *Engine) VerifyAndClaim(ctx context.Context, handle string, wallet common.Address, att domain.Attestation) error {
	id, err := domain.NormalizeHandle(handle)
	if err != nil {
		return err
	}
	if att.Handle != id || att.Wallet != wallet {
		return fmt.Errorf("%w: attestation does not bind this handle and wallet", domain.ErrInvalidAttestation)
	}
	if e.verifier == nil {
		return fmt.Errorf("%w: no attestation verifier configured", domain.ErrInvalidAttestation)
	}

	unlock, err := e.lockMarket(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	m, err := e.markets.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.Verified {
		return domain.ErrAlreadyVerified
	}

	if err := e.verifier.Verify(ctx, att); err != nil {
		return err
	}
	if err := e.markets.SetVerified(ctx, id, wallet); err != nil {
		return err
	}

	e.afterMutation(ctx, id)
	e.emitVerified(ctx, id, wallet, e.now().UTC())

	e.logger.InfoContext(ctx, "market verified",
		slog.String("market", id),
		slog.String("owner", wallet.Hex()),
	)
	return nil
}

// Quote prices a prospective trade against the current committed supply
// without locking or mutating anything. Quotes are advisory; execution-time
// slippage bounds are the enforcement mechanism.
func (e *Engine) Quote(ctx context.Context, handle string, amount uint64, direction domain.TradeDirection) (domain.Quote, error) {
	id, err := domain.NormalizeHandle(handle)
	if err != nil {
		return domain.Quote{}, err
	}
	if amount == 0 {
		return domain.Quote{}, fmt.Errorf("%w: amount must be at least 1", domain.ErrInvalidAmount)
	}
	if !direction.Valid() {
		return domain.Quote{}, fmt.Errorf("%w: unknown direction %q", domain.ErrInvalidAmount, direction)
	}

	supply, err := e.currentSupply(ctx, id)
	if err != nil {
		return domain.Quote{}, err
	}

	var gross *big.Int
	switch direction {
	case domain.DirectionBuy:
		gross = e.params.CostToBuy(supply, amount)
	case domain.DirectionSell:
		gross, err = e.params.ProceedsFromSell(supply, amount)
		if err != nil {
			return domain.Quote{}, err
		}
	}

	protocol, originator := e.fees.Split(gross)
	total := new(big.Int)
	if direction == domain.DirectionBuy {
		total.Add(gross, protocol).Add(total, originator)
	} else {
		total.Sub(gross, protocol).Sub(total, originator)
	}

	return domain.Quote{
		Direction:     direction,
		Amount:        amount,
		Gross:         gross,
		ProtocolFee:   protocol,
		OriginatorFee: originator,
		Total:         total,
	}, nil
}

// GetMarket returns the market state for handle. Unborn markets are reported
// as zero-state records rather than errors.
func (e *Engine) GetMarket(ctx context.Context, handle string) (domain.Market, error) {
	id, err := domain.NormalizeHandle(handle)
	if err != nil {
		return domain.Market{}, err
	}

	m, err := e.markets.Get(ctx, id)
	if err != nil {
		if err == domain.ErrNotFound {
			return domain.NewMarket(id), nil
		}
		return domain.Market{}, err
	}
	return m, nil
}

// afterMutation invalidates the read cache for id. Failures only log: the
// cache expires on its own and readers tolerate staleness.
func (e *Engine) afterMutation(ctx context.Context, id string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, id); err != nil {
		e.logger.WarnContext(ctx, "cache invalidate failed",
			slog.String("market", id),
			slog.String("error", err.Error()),
		)
	}
}
