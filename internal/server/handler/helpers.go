// Package handler implements the HTTP API. Handlers parse and validate
// requests, call the engine or query services, and render JSON. Monetary
// amounts are decimal strings end to end.
package handler

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/clawstreet/clawd/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// errorBody is the error envelope: a stable machine-readable kind plus a
// human-readable message.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError sends a JSON error with an explicit status and kind.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

// writeDomainError maps a domain error onto an HTTP status via its kind.
func writeDomainError(w http.ResponseWriter, err error) {
	kind := domain.ErrorKind(err)
	status := http.StatusInternalServerError
	switch kind {
	case "not_found":
		status = http.StatusNotFound
	case "invalid_handle", "invalid_amount", "invalid_attestation":
		status = http.StatusBadRequest
	case "insufficient_supply", "insufficient_balance", "slippage_exceeded",
		"already_verified", "attestation_expired", "attestation_replayed":
		status = http.StatusConflict
	case "unauthorized":
		status = http.StatusForbidden
	case "store_unavailable":
		status = http.StatusServiceUnavailable
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		// Internal details stay in the logs.
		msg = "internal server error"
	}
	writeError(w, status, kind, msg)
}

// parseListOpts extracts standard pagination parameters from the query
// string. Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// parseWallet validates and parses a 0x-prefixed EVM address.
func parseWallet(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid wallet address %q", s)
	}
	return common.HexToAddress(s), nil
}

// parseMoney parses an optional non-negative decimal string. Empty means nil
// (no bound).
func parseMoney(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
