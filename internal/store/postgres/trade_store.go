package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clawstreet/clawd/internal/domain"
)

// TradeStore implements domain.TradeStore on PostgreSQL. Trades are inserted
// by MarketStore inside the trade transaction; this store reads and prunes.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeCols = `id, market_id, wallet, direction, amount,
	gross::text, protocol_fee::text, originator_fee::text, supply_after, created_at`

func scanTrade(row pgx.Row) (domain.Trade, error) {
	var (
		t                        domain.Trade
		wallet, dir              string
		amount, supplyAfter      int64
		gross, protoFee, origFee string
	)
	err := row.Scan(&t.ID, &t.MarketID, &wallet, &dir, &amount,
		&gross, &protoFee, &origFee, &supplyAfter, &t.CreatedAt)
	if err != nil {
		return domain.Trade{}, err
	}

	t.Wallet = common.HexToAddress(wallet)
	t.Direction = domain.TradeDirection(dir)
	t.Amount = uint64(amount)
	t.SupplyAfter = uint64(supplyAfter)
	if t.Gross, err = parseBig(gross); err != nil {
		return domain.Trade{}, err
	}
	if t.ProtocolFee, err = parseBig(protoFee); err != nil {
		return domain.Trade{}, err
	}
	if t.OriginatorFee, err = parseBig(origFee); err != nil {
		return domain.Trade{}, err
	}
	return t, nil
}

func (s *TradeStore) query(ctx context.Context, query string, args ...any) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: trade rows: %w", err)
	}
	return trades, nil
}

func withPage(query string, args []any, opts domain.ListOpts) (string, []any) {
	argIdx := len(args) + 1
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

// ListByMarket implements domain.TradeStore, newest first.
func (s *TradeStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeCols + ` FROM trades
		WHERE market_id = $1 ORDER BY created_at DESC, id DESC`
	query, args := withPage(query, []any{marketID}, opts)
	return s.query(ctx, query, args...)
}

// ListByWallet implements domain.TradeStore, newest first.
func (s *TradeStore) ListByWallet(ctx context.Context, wallet common.Address, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeCols + ` FROM trades
		WHERE wallet = $1 ORDER BY created_at DESC, id DESC`
	query, args := withPage(query, []any{wallet.Hex()}, opts)
	return s.query(ctx, query, args...)
}

// ListBefore implements domain.TradeStore, oldest first. The archiver uses it
// to page through trades due for cold storage.
func (s *TradeStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Trade, error) {
	query := `SELECT ` + tradeCols + ` FROM trades
		WHERE created_at < $1 ORDER BY created_at ASC, id ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return s.query(ctx, query, args...)
}

// DeleteBefore implements domain.TradeStore.
func (s *TradeStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
