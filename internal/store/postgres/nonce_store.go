package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clawstreet/clawd/internal/domain"
)

// NonceStore implements domain.NonceStore on PostgreSQL. The primary key on
// (market_id, nonce) makes Consume first-writer-wins under any concurrency.
type NonceStore struct {
	pool *pgxpool.Pool
}

// NewNonceStore creates a NonceStore backed by the given connection pool.
func NewNonceStore(pool *pgxpool.Pool) *NonceStore {
	return &NonceStore{pool: pool}
}

// Consume implements domain.NonceStore. The nonce travels as a decimal
// string because the column is NUMERIC(20,0), wide enough for any uint64.
func (s *NonceStore) Consume(ctx context.Context, marketID string, nonce uint64) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO used_nonces (market_id, nonce) VALUES ($1, $2::numeric)
		ON CONFLICT (market_id, nonce) DO NOTHING`,
		marketID, strconv.FormatUint(nonce, 10))
	if err != nil {
		return fmt.Errorf("postgres: consume nonce %s/%d: %w", marketID, nonce, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAttestationReplayed
	}
	return nil
}

// Compile-time interface check.
var _ domain.NonceStore = (*NonceStore)(nil)
