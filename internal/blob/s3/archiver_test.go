package s3blob

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawstreet/clawd/internal/domain"
	"github.com/clawstreet/clawd/internal/store/memory"
)

type captureWriter struct {
	path string
	body []byte
}

func (c *captureWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	c.path = path
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(data); err != nil {
		return err
	}
	c.path = path
	c.body = buf.Bytes()
	return nil
}

func TestArchiveOnce(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	wallet := common.HexToAddress("0x11")

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)

	delta := func(at time.Time) domain.TradeDelta {
		return domain.TradeDelta{
			Amount:        1,
			Gross:         big.NewInt(1000),
			ProtocolFee:   big.NewInt(50),
			OriginatorFee: big.NewInt(50),
			At:            at,
		}
	}
	_, _, err := store.ApplyBuy(ctx, "molty", wallet, delta(old))
	require.NoError(t, err)
	_, _, err = store.ApplyBuy(ctx, "molty", wallet, delta(old.Add(time.Minute)))
	require.NoError(t, err)
	_, _, err = store.ApplyBuy(ctx, "molty", wallet, delta(now))
	require.NoError(t, err)

	w := &captureWriter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	arch := NewArchiver(w, store.Trades(), 24*time.Hour, true, logger)

	count, err := arch.ArchiveOnce(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	lines := strings.Split(strings.TrimSpace(string(w.body)), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"market_id":"molty"`)
	assert.Contains(t, lines[0], `"gross":"1000"`)
	assert.Contains(t, w.path, "archive/trades/")

	// Pruned: only the recent trade remains.
	remaining, err := store.Trades().ListByMarket(ctx, "molty", domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	// Nothing left to archive on a second run.
	count, err = arch.ArchiveOnce(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, count)
}
