package handler

import (
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"

	"github.com/clawstreet/clawd/internal/domain"
	"github.com/clawstreet/clawd/internal/engine"
)

// VerifyHandler serves ownership verification.
type VerifyHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewVerifyHandler creates a VerifyHandler.
func NewVerifyHandler(eng *engine.Engine, logger *slog.Logger) *VerifyHandler {
	return &VerifyHandler{engine: eng, logger: logger}
}

type verifyRequest struct {
	Wallet    string `json:"wallet"`
	Timestamp int64  `json:"timestamp"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

// Verify marks a market as owned by the requesting wallet after its signed
// attestation checks out.
// POST /api/markets/{handle}/verify
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	wallet, err := parseWallet(req.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(req.Signature, "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "signature must be hex encoded")
		return
	}

	handle := r.PathValue("handle")
	id, err := domain.NormalizeHandle(handle)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	att := domain.Attestation{
		Handle:    id,
		Wallet:    wallet,
		Timestamp: req.Timestamp,
		Nonce:     req.Nonce,
		Signature: sig,
	}
	if err := h.engine.VerifyAndClaim(r.Context(), handle, wallet, att); err != nil {
		writeDomainError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "market verified",
		slog.String("market", id),
		slog.String("owner", wallet.Hex()),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"verified":  true,
		"owner":     wallet.Hex(),
	})
}
