package handler

import (
	"log/slog"
	"net/http"

	"github.com/clawstreet/clawd/internal/service"
)

// PortfolioHandler serves per-wallet views.
type PortfolioHandler struct {
	svc    *service.MarketService
	logger *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler.
func NewPortfolioHandler(svc *service.MarketService, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{svc: svc, logger: logger}
}

// Portfolio returns a wallet's holdings across all markets plus its recent
// trades.
// GET /api/wallets/{address}
func (h *PortfolioHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	wallet, err := parseWallet(r.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	holdings, trades, err := h.svc.Portfolio(r.Context(), wallet, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":   wallet.Hex(),
		"holdings": renderHoldings(holdings),
		"trades":   renderTrades(trades),
	})
}
