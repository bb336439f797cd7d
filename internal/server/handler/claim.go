package handler

import (
	"log/slog"
	"net/http"

	"github.com/clawstreet/clawd/internal/engine"
)

// ClaimHandler serves originator fee claims.
type ClaimHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewClaimHandler creates a ClaimHandler.
func NewClaimHandler(eng *engine.Engine, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{engine: eng, logger: logger}
}

type claimRequest struct {
	Wallet string `json:"wallet"`
}

// Claim drains the market's pending fees to its verified owner. A zero
// pending balance is a successful no-op.
// POST /api/markets/{handle}/claim
func (h *ClaimHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	wallet, err := parseWallet(req.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	claimed, err := h.engine.ClaimFees(r.Context(), r.PathValue("handle"), wallet)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"claimed": claimed.String(),
		"wallet":  wallet.Hex(),
	})
}
