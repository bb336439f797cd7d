package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clawstreet/clawd/internal/domain"
)

// BalanceStore implements domain.BalanceStore on PostgreSQL. Balances are
// only written through MarketStore.ApplyBuy/ApplySell; this store is
// read-only.
type BalanceStore struct {
	pool *pgxpool.Pool
}

// NewBalanceStore creates a BalanceStore backed by the given connection pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// Get implements domain.BalanceStore. A missing row is a zero balance.
func (s *BalanceStore) Get(ctx context.Context, marketID string, wallet common.Address) (uint64, error) {
	var amount int64
	err := s.pool.QueryRow(ctx,
		`SELECT amount FROM balances WHERE market_id = $1 AND wallet = $2`,
		marketID, wallet.Hex()).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: get balance %s/%s: %w", marketID, wallet.Hex(), err)
	}
	return uint64(amount), nil
}

// ListHolders implements domain.BalanceStore, largest holders first.
func (s *BalanceStore) ListHolders(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Holding, error) {
	query := `SELECT wallet, amount FROM balances
		WHERE market_id = $1 AND amount > 0
		ORDER BY amount DESC, wallet ASC`
	args := []any{marketID}
	argIdx := 2

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
		return nil, fmt.Errorf("postgres: list holders %s: %w", marketID, err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var (
			wallet string
			amount int64
		)
		if err := rows.Scan(&wallet, &amount); err != nil {
			return nil, fmt.Errorf("postgres: scan holder: %w", err)
		}
		holdings = append(holdings, domain.Holding{
			MarketID: marketID,
			Wallet:   common.HexToAddress(wallet),
			Amount:   uint64(amount),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list holders rows: %w", err)
	}
	return holdings, nil
}

// ListByWallet implements domain.BalanceStore.
func (s *BalanceStore) ListByWallet(ctx context.Context, wallet common.Address) ([]domain.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT market_id, amount FROM balances
		 WHERE wallet = $1 AND amount > 0
		 ORDER BY market_id ASC`,
		wallet.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: list holdings for %s: %w", wallet.Hex(), err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var (
			marketID string
			amount   int64
		)
		if err := rows.Scan(&marketID, &amount); err != nil {
			return nil, fmt.Errorf("postgres: scan holding: %w", err)
		}
		holdings = append(holdings, domain.Holding{
			MarketID: marketID,
			Wallet:   wallet,
			Amount:   uint64(amount),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list holdings rows: %w", err)
	}
	return holdings, nil
}

// Compile-time interface check.
var _ domain.BalanceStore = (*BalanceStore)(nil)
