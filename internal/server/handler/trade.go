package handler

import (
	"log/slog"
	"net/http"

	"github.com/clawstreet/clawd/internal/engine"
)

// TradeHandler serves the two mutating trade endpoints.
type TradeHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(eng *engine.Engine, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{engine: eng, logger: logger}
}

type buyRequest struct {
	Wallet       string `json:"wallet"`
	Amount       uint64 `json:"amount"`
	MaxTotalCost string `json:"max_total_cost,omitempty"`
}

// Buy executes a buy, creating the market on its first trade.
// POST /api/markets/{handle}/buy
func (h *TradeHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	wallet, err := parseWallet(req.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	maxCost, err := parseMoney(req.MaxTotalCost)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	receipt, err := h.engine.CreateOrBuy(r.Context(), r.PathValue("handle"), wallet, req.Amount, maxCost)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderReceipt(receipt))
}

type sellRequest struct {
	Wallet      string `json:"wallet"`
	Amount      uint64 `json:"amount"`
	MinProceeds string `json:"min_proceeds,omitempty"`
}

// Sell executes a sell.
// POST /api/markets/{handle}/sell
func (h *TradeHandler) Sell(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	wallet, err := parseWallet(req.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	minProceeds, err := parseMoney(req.MinProceeds)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	receipt, err := h.engine.Sell(r.Context(), r.PathValue("handle"), wallet, req.Amount, minProceeds)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderReceipt(receipt))
}
