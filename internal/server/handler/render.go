package handler

import (
	"time"

	"github.com/clawstreet/clawd/internal/domain"
)

// marketJSON is the API shape of a market.
type marketJSON struct {
	ID             string    `json:"id"`
	Supply         uint64    `json:"supply"`
	PendingFees    string    `json:"pending_fees"`
	LifetimeFees   string    `json:"lifetime_fees"`
	LifetimeVolume string    `json:"lifetime_volume"`
	Verified       bool      `json:"verified"`
	VerifiedOwner  string    `json:"verified_owner,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func renderMarket(m domain.Market) marketJSON {
	out := marketJSON{
		ID:             m.ID,
		Supply:         m.Supply,
		PendingFees:    m.PendingFees.String(),
		LifetimeFees:   m.LifetimeFees.String(),
		LifetimeVolume: m.LifetimeVolume.String(),
		Verified:       m.Verified,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.VerifiedOwner != nil {
		out.VerifiedOwner = m.VerifiedOwner.Hex()
	}
	return out
}

func renderMarkets(markets []domain.Market) []marketJSON {
	out := make([]marketJSON, 0, len(markets))
	for _, m := range markets {
		out = append(out, renderMarket(m))
	}
	return out
}

// quoteJSON is the API shape of a price quote.
type quoteJSON struct {
	Direction     string `json:"direction"`
	Amount        uint64 `json:"amount"`
	Gross         string `json:"gross"`
	ProtocolFee   string `json:"protocol_fee"`
	OriginatorFee string `json:"originator_fee"`
	Total         string `json:"total"`
}

func renderQuote(q domain.Quote) quoteJSON {
	return quoteJSON{
		Direction:     string(q.Direction),
		Amount:        q.Amount,
		Gross:         q.Gross.String(),
		ProtocolFee:   q.ProtocolFee.String(),
		OriginatorFee: q.OriginatorFee.String(),
		Total:         q.Total.String(),
	}
}

// receiptJSON is the API shape of an executed trade.
type receiptJSON struct {
	quoteJSON
	MarketID  string    `json:"market_id"`
	Wallet    string    `json:"wallet"`
	NewSupply uint64    `json:"new_supply"`
	Timestamp time.Time `json:"timestamp"`
}

func renderReceipt(r domain.TradeReceipt) receiptJSON {
	return receiptJSON{
		quoteJSON: renderQuote(r.Quote),
		MarketID:  r.MarketID,
		Wallet:    r.Wallet.Hex(),
		NewSupply: r.NewSupply,
		Timestamp: r.Timestamp,
	}
}

// holdingJSON is the API shape of one wallet's position in one market.
type holdingJSON struct {
	MarketID string `json:"market_id"`
	Wallet   string `json:"wallet"`
	Amount   uint64 `json:"amount"`
}

func renderHoldings(holdings []domain.Holding) []holdingJSON {
	out := make([]holdingJSON, 0, len(holdings))
	for _, h := range holdings {
		out = append(out, holdingJSON{
			MarketID: h.MarketID,
			Wallet:   h.Wallet.Hex(),
			Amount:   h.Amount,
		})
	}
	return out
}

// tradeJSON is the API shape of a historical trade.
type tradeJSON struct {
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

func renderTrades(trades []domain.Trade) []tradeJSON {
	out := make([]tradeJSON, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeJSON{
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
		})
	}
	return out
}
