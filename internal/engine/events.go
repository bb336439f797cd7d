package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/clawstreet/clawd/internal/domain"
)

// Channel and stream names on the signal bus. Per-market channels carry the
// market id suffix so websocket clients can subscribe to a single handle.
const (
	ChannelTrades      = "claw:trades"
	ChannelTradePrefix = "claw:trades:"
	ChannelClaims      = "claw:claims"
	ChannelVerified    = "claw:verified"
	StreamEvents       = "claw:events"
)

// Event is the wire envelope for everything published on the bus. Monetary
// amounts are decimal strings so consumers never touch floats.
type Event struct {
	Type     string    `json:"type"`
	MarketID string    `json:"market_id"`
	Wallet   string    `json:"wallet"`
	At       time.Time `json:"at"`

	// Trade fields, empty on claim/verified events.
	Direction     string `json:"direction,omitempty"`
	Amount        uint64 `json:"amount,omitempty"`
	Gross         string `json:"gross,omitempty"`
	ProtocolFee   string `json:"protocol_fee,omitempty"`
	OriginatorFee string `json:"originator_fee,omitempty"`
	SupplyAfter   uint64 `json:"supply_after,omitempty"`

	// Claim field.
	Claimed string `json:"claimed,omitempty"`
}

func (e *Engine) emitTrade(ctx context.Context, t domain.Trade) {
	ev := Event{
		Type:          "trade",
		MarketID:      t.MarketID,
		Wallet:        t.Wallet.Hex(),
		At:            t.CreatedAt,
		Direction:     string(t.Direction),
		Amount:        t.Amount,
		Gross:         t.Gross.String(),
		ProtocolFee:   t.ProtocolFee.String(),
		OriginatorFee: t.OriginatorFee.String(),
		SupplyAfter:   t.SupplyAfter,
	}
	e.publish(ctx, ev, ChannelTrades, ChannelTradePrefix+t.MarketID)
}

func (e *Engine) emitClaim(ctx context.Context, c domain.FeeClaim) {
	ev := Event{
		Type:     "claim",
		MarketID: c.MarketID,
		Wallet:   c.Wallet.Hex(),
		At:       c.ClaimedAt,
		Claimed:  c.Amount.String(),
	}
	e.publish(ctx, ev, ChannelClaims)
}

func (e *Engine) emitVerified(ctx context.Context, marketID string, owner common.Address, at time.Time) {
	ev := Event{
		Type:     "verified",
		MarketID: marketID,
		Wallet:   owner.Hex(),
		At:       at,
	}
	e.publish(ctx, ev, ChannelVerified)
}

// publish fans the event out to the given channels and appends it to the
// durable stream. Bus failures only log; state is already committed and the
// stream is best-effort for external consumers.
func (e *Engine) publish(ctx context.Context, ev Event, channels ...string) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		e.logger.ErrorContext(ctx, "marshal event", slog.String("error", err.Error()))
		return
	}
	for _, ch := range channels {
		if err := e.bus.Publish(ctx, ch, payload); err != nil {
			e.logger.WarnContext(ctx, "publish event failed",
				slog.String("channel", ch),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := e.bus.StreamAppend(ctx, StreamEvents, payload); err != nil {
		e.logger.WarnContext(ctx, "stream append failed",
			slog.String("stream", StreamEvents),
			slog.String("error", err.Error()),
		)
	}
}
