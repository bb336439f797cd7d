package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clawstreet/clawd/internal/domain"
)

// MarketStore implements domain.MarketStore on PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// marketCols reads NUMERIC columns as text so they round-trip through big.Int
// without precision loss.
const marketCols = `id, supply, pending_fees::text, lifetime_fees::text,
	lifetime_volume::text, verified, verified_owner, created_at, updated_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m                      domain.Market
		supply                 int64
		pending, fees, volume  string
		owner                  *string
	)
	err := row.Scan(&m.ID, &supply, &pending, &fees, &volume,
		&m.Verified, &owner, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return domain.Market{}, err
	}

	m.Supply = uint64(supply)
	if m.PendingFees, err = parseBig(pending); err != nil {
		return domain.Market{}, err
	}
	if m.LifetimeFees, err = parseBig(fees); err != nil {
		return domain.Market{}, err
	}
	if m.LifetimeVolume, err = parseBig(volume); err != nil {
		return domain.Market{}, err
	}
	if owner != nil {
		addr := common.HexToAddress(*owner)
		m.VerifiedOwner = &addr
	}
	return m, nil
}

// Get implements domain.MarketStore.
func (s *MarketStore) Get(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List implements domain.MarketStore, ordering by lifetime volume descending.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets ORDER BY lifetime_volume DESC, id ASC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count implements domain.MarketStore.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// ApplyBuy implements domain.MarketStore. The market upsert, balance
// increment, and trade insert commit in one transaction.
func (s *MarketStore) ApplyBuy(ctx context.Context, id string, wallet common.Address, delta domain.TradeDelta) (domain.Market, domain.Trade, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Market{}, domain.Trade{}, fmt.Errorf("postgres: begin buy: %w", err)
	}
	defer tx.Rollback(ctx)

	const upsert = `
		INSERT INTO markets (
			id, supply, pending_fees, lifetime_fees, lifetime_volume,
			created_at, updated_at
		) VALUES ($1, $2, $3::numeric, $3::numeric, $4::numeric, $5, $5)
		ON CONFLICT (id) DO UPDATE SET
			supply          = markets.supply + EXCLUDED.supply,
			pending_fees    = markets.pending_fees + EXCLUDED.pending_fees,
			lifetime_fees   = markets.lifetime_fees + EXCLUDED.lifetime_fees,
			lifetime_volume = markets.lifetime_volume + EXCLUDED.lifetime_volume,
			updated_at      = EXCLUDED.updated_at
		RETURNING ` + marketCols

	row := tx.QueryRow(ctx, upsert,
		id, int64(delta.Amount), delta.OriginatorFee.String(),
		delta.Gross.String(), delta.At,
	)
	m, err := scanMarket(row)
	if err != nil {
		return domain.Market{}, domain.Trade{}, fmt.Errorf("postgres: apply buy %s: %w", id, err)
	}

	const bumpBalance = `
		INSERT INTO balances (market_id, wallet, amount, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (market_id, wallet) DO UPDATE SET
			amount     = balances.amount + EXCLUDED.amount,
			updated_at = EXCLUDED.updated_at`
	if _, err := tx.Exec(ctx, bumpBalance, id, wallet.Hex(), int64(delta.Amount), delta.At); err != nil {
		return domain.Market{}, domain.Trade{}, fmt.Errorf("postgres: buy balance %s: %w", id, err)
	}

	trade, err := insertTrade(ctx, tx, id, wallet, domain.DirectionBuy, delta, m.Supply)
	if err != nil {
		return domain.Market{}, domain.Trade{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Market{}, domain.Trade{}, fmt.Errorf("postgres: commit buy %s: %w", id, err)
	}
	return m, trade, nil
}

// ApplySell implements domain.MarketStore. The market row is locked for the
// duration of the transaction so the supply and balance checks hold at
// commit time.
func (s *MarketStore) ApplySell(ctx context.Context, id string, wallet common.Address, delta domain.TradeDelta) (domain.Market, domain.Trade, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Market{}, domain.Trade{}, fmt.Errorf("postgres: begin sell: %w", err)
	}
	defer tx.Rollback(ctx)

	var supply int64
	err = tx.QueryRow(ctx,
		`SELECT supply FROM markets WHERE id = $1 FOR UPDATE`, id).Scan(&supply)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.Trade{}, domain.ErrNotFound
		}
		return domain.Market{}, domain.Trade{}, fmt.Errorf("postgres: lock market %s: %w", id, err)
	}
	if delta.Amount >= uint64(supply) {
		return domain.Market{}, domain.Trade{}, fmt.Errorf("%w: cannot sell %d of %d units",
			domain.ErrInsufficientSupply, delta.Amount, supply)
	}

	var held int64
	err = tx.QueryRow(ctx,
		`SELECT amount FROM balances WHERE market_id = $1 AND wallet = $2 FOR UPDATE`,
		id, wallet.Hex()).Scan(&held)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, domain.Trade{}, fmt.Errorf("postgres: lock balance %s: %w", id, err)
	}
	if uint64(held) < delta.Amount {
		return domain.Market{}, domain.Trade{}, fmt.Errorf("%w: hold %d, selling %d",
			domain.ErrInsufficientBalance, held, delta.Amount)
	}

	const update = `
		UPDATE markets SET
			supply          = supply - $2,
			pending_fees    = pending_fees + $3::numeric,
			lifetime_fees   = lifetime_fees + $3::numeric,
			lifetime_volume = lifetime_volume + $4::numeric,
			updated_at      = $5
		WHERE id = $1
		RETURNING ` + marketCols
	row := tx.QueryRow(ctx, update,
		id, int64(delta.Amount), delta.OriginatorFee.String(),
		delta.Gross.String(), delta.At,
	)
	m, err := scanMarket(row)
	if err != nil {
		return domain.Market{}, domain.Trade{}, fmt.Errorf("postgres: apply sell %s: %w", id, err)
	}

	if uint64(held) == delta.Amount {
		_, err = tx.Exec(ctx,
			`DELETE FROM balances WHERE market_id = $1 AND wallet = $2`, id, wallet.Hex())
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE balances SET amount = amount - $3, updated_at = $4
			 WHERE market_id = $1 AND wallet = $2`,
			id, wallet.Hex(), int64(delta.Amount), delta.At)
	}
	if err != nil {
		return domain.Market{}, domain.Trade{}, fmt.Errorf("postgres: sell balance %s: %w", id, err)
	}

	trade, err := insertTrade(ctx, tx, id, wallet, domain.DirectionSell, delta, m.Supply)
	if err != nil {
		return domain.Market{}, domain.Trade{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Market{}, domain.Trade{}, fmt.Errorf("postgres: commit sell %s: %w", id, err)
	}
	return m, trade, nil
}

func insertTrade(ctx context.Context, tx pgx.Tx, id string, wallet common.Address, dir domain.TradeDirection, delta domain.TradeDelta, supplyAfter uint64) (domain.Trade, error) {
	trade := domain.Trade{
		MarketID:      id,
		Wallet:        wallet,
		Direction:     dir,
		Amount:        delta.Amount,
		Gross:         delta.Gross,
		ProtocolFee:   delta.ProtocolFee,
		OriginatorFee: delta.OriginatorFee,
		SupplyAfter:   supplyAfter,
		CreatedAt:     delta.At,
	}

	const insert = `
		INSERT INTO trades (
			market_id, wallet, direction, amount,
			gross, protocol_fee, originator_fee, supply_after, created_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9)
		RETURNING id`
	err := tx.QueryRow(ctx, insert,
		id, wallet.Hex(), string(dir), int64(delta.Amount),
		delta.Gross.String(), delta.ProtocolFee.String(), delta.OriginatorFee.String(),
		int64(supplyAfter), delta.At,
	).Scan(&trade.ID)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("postgres: insert trade %s: %w", id, err)
	}
	return trade, nil
}

// SetVerified implements domain.MarketStore. Verification is one-way; a
// second attempt fails with ErrAlreadyVerified.
func (s *MarketStore) SetVerified(ctx context.Context, id string, owner common.Address) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE markets SET verified = TRUE, verified_owner = $2, updated_at = NOW()
		WHERE id = $1 AND NOT verified`,
		id, owner.Hex())
	if err != nil {
		return fmt.Errorf("postgres: set verified %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var verified bool
	err = s.pool.QueryRow(ctx, `SELECT verified FROM markets WHERE id = $1`, id).Scan(&verified)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: check verified %s: %w", id, err)
	}
	return domain.ErrAlreadyVerified
}

// DrainPendingFees implements domain.MarketStore, atomically zeroing the
// pending balance and returning what it held.
func (s *MarketStore) DrainPendingFees(ctx context.Context, id string) (*big.Int, error) {
	var drained string
	err := s.pool.QueryRow(ctx, `
		UPDATE markets m SET pending_fees = 0, updated_at = NOW()
		FROM (SELECT id, pending_fees FROM markets WHERE id = $1 FOR UPDATE) old
		WHERE m.id = old.id
		RETURNING old.pending_fees::text`,
		id).Scan(&drained)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: drain fees %s: %w", id, err)
	}
	return parseBig(drained)
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
