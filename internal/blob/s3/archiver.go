package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/clawstreet/clawd/internal/domain"
)

// BlobWriter is the narrow upload interface the archiver needs.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves aged trades out of the primary store into JSONL objects in
// cold storage. Pruning only happens after the upload succeeds, so a failed
// run leaves the primary store intact and the next run picks the same
// trades up again.
type Archiver struct {
	writer    BlobWriter
	trades    domain.TradeStore
	retention time.Duration
	prune     bool
	logger    *slog.Logger
}

// NewArchiver creates an Archiver. Trades older than retention are exported;
// prune controls whether exported trades are deleted from the primary store.
func NewArchiver(writer BlobWriter, trades domain.TradeStore, retention time.Duration, prune bool, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:    writer,
		trades:    trades,
		retention: retention,
		prune:     prune,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// archivedTrade is the JSONL line format. Monetary amounts are decimal
// strings so archives parse without float loss.
type archivedTrade struct {
	ID            int64     `json:"id"`
	MarketID      string    `json:"market_id"`
	Wallet        string    `json:"wallet"`
	Direction     string    `json:"direction"`
	Amount        uint64    `json:"amount"`
	Gross         string    `json:"gross"`
	ProtocolFee   string    `json:"protocol_fee"`
	OriginatorFee string    `json:"originator_fee"`
	SupplyAfter   uint64    `json:"supply_after"`
	CreatedAt     time.Time `json:"created_at"`
}

// ArchiveOnce exports every trade older than the retention window and, when
// pruning is enabled, deletes the exported rows. It returns the number of
// trades archived.
func (a *Archiver) ArchiveOnce(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-a.retention)

	trades, err := a.trades.ListBefore(ctx, cutoff, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, t := range trades {
		line := archivedTrade{
			ID:            t.ID,
			MarketID:      t.MarketID,
			Wallet:        t.Wallet.Hex(),
			Direction:     string(t.Direction),
			Amount:        t.Amount,
			Gross:         t.Gross.String(),
			ProtocolFee:   t.ProtocolFee.String(),
			OriginatorFee: t.OriginatorFee.String(),
			SupplyAfter:   t.SupplyAfter,
			CreatedAt:     t.CreatedAt,
		}
		if err := enc.Encode(line); err != nil {
			return 0, fmt.Errorf("s3blob: encode trade %d: %w", i, err)
		}
	}

	path := archivePath(cutoff)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf.Bytes()), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	count := int64(len(trades))
	a.logger.InfoContext(ctx, "trades archived",
		slog.String("path", path),
		slog.Int64("count", count),
	)

	if a.prune {
		deleted, err := a.trades.DeleteBefore(ctx, cutoff)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive prune: %w", err)
		}
		a.logger.InfoContext(ctx, "trades pruned", slog.Int64("deleted", deleted))
	}

	return count, nil
}

// Run archives on the given interval until the context is cancelled.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.ArchiveOnce(ctx, time.Now().UTC()); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// archivePath partitions archives by the cutoff's UTC day and hour:
//
//	archive/trades/2025-01-31T15.jsonl
func archivePath(cutoff time.Time) string {
	return fmt.Sprintf("archive/trades/%s.jsonl", cutoff.UTC().Format("2006-01-02T15"))
}
