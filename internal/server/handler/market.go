package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/clawstreet/clawd/internal/domain"
	"github.com/clawstreet/clawd/internal/engine"
	"github.com/clawstreet/clawd/internal/service"
)

// MarketHandler serves market reads: listings, single-market state, holders,
// trade history, and quotes.
type MarketHandler struct {
	svc    *service.MarketService
	engine *engine.Engine
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(svc *service.MarketService, eng *engine.Engine, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{svc: svc, engine: eng, logger: logger}
}

// ListMarkets returns markets ordered by lifetime volume.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.svc.ListMarkets(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list markets", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	count, err := h.svc.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "count markets", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"markets": renderMarkets(markets),
		"total":   count,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// GetMarket returns one market's state. Unborn markets come back as
// zero-state records with HTTP 200.
// GET /api/markets/{handle}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.GetMarket(r.Context(), r.PathValue("handle"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderMarket(m))
}

// ListHolders returns a market's holders, largest first.
// GET /api/markets/{handle}/holders
func (h *MarketHandler) ListHolders(w http.ResponseWriter, r *http.Request) {
	holders, err := h.svc.ListHolders(r.Context(), r.PathValue("handle"), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"holders": renderHoldings(holders)})
}

// ListTrades returns a market's trade history, newest first.
// GET /api/markets/{handle}/trades
func (h *MarketHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.svc.ListTrades(r.Context(), r.PathValue("handle"), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": renderTrades(trades)})
}

// Quote prices a prospective trade without executing it.
// GET /api/markets/{handle}/quote?direction=buy&amount=3
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	direction := domain.TradeDirection(q.Get("direction"))
	amount, err := strconv.ParseUint(q.Get("amount"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", "amount must be a positive integer")
		return
	}

	quote, err := h.engine.Quote(r.Context(), r.PathValue("handle"), amount, direction)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderQuote(quote))
}
