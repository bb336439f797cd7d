package memory

import (
	"context"
	"strconv"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/clawstreet/clawd/internal/domain"
)

// NonceStore is an in-memory used-nonce set. Consume is atomic via
// LoadOrStore, so two concurrent claims with the same nonce race to a single
// winner.
type NonceStore struct {
	used *xsync.Map[string, struct{}]
}

// NewNonceStore creates an empty NonceStore.
func NewNonceStore() *NonceStore {
	return &NonceStore{used: xsync.NewMap[string, struct{}]()}
}

// Consume implements domain.NonceStore.
func (n *NonceStore) Consume(_ context.Context, marketID string, nonce uint64) error {
	key := marketID + ":" + strconv.FormatUint(nonce, 10)
	if _, loaded := n.used.LoadOrStore(key, struct{}{}); loaded {
		return domain.ErrAttestationReplayed
	}
	return nil
}

// Compile-time interface check.
var _ domain.NonceStore = (*NonceStore)(nil)
