package server

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawstreet/clawd/internal/attest"
	"github.com/clawstreet/clawd/internal/curve"
	"github.com/clawstreet/clawd/internal/engine"
	"github.com/clawstreet/clawd/internal/server/handler"
	"github.com/clawstreet/clawd/internal/service"
	"github.com/clawstreet/clawd/internal/store/memory"
)

const (
	testChainID = 8453
	testWallet  = "0x1111111111111111111111111111111111111111"
)

type testAPI struct {
	srv    *httptest.Server
	signer *attest.Signer
}

func newTestAPI(t *testing.T, apiKey string) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pk, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	signer := attest.NewSignerFromKey(pk, testChainID)
	verifier := attest.NewVerifier(attest.VerifierConfig{
		Authority: signer.Address(),
		ChainID:   testChainID,
	}, memory.NewNonceStore())

	store := memory.NewStore()
	eng, err := engine.New(engine.Config{
		Markets:  store,
		Balances: store.Balances(),
		Verifier: verifier,
		Curve:    curve.DefaultParams(),
		Fees:     curve.DefaultFeeSplit(),
		Logger:   logger,
	})
	require.NoError(t, err)

	svc := service.NewMarketService(store, store.Balances(), store.Trades(), nil, logger)

	s := NewServer(Config{Port: 0, APIKey: apiKey}, Handlers{
		Health:    handler.NewHealthHandler(logger),
		Markets:   handler.NewMarketHandler(svc, eng, logger),
		Trades:    handler.NewTradeHandler(eng, logger),
		Claims:    handler.NewClaimHandler(eng, logger),
		Verify:    handler.NewVerifyHandler(eng, logger),
		Portfolio: handler.NewPortfolioHandler(svc, logger),
	}, nil, nil, logger)

	ts := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(ts.Close)
	return &testAPI{srv: ts, signer: signer}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, buf)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &decoded), "body: %s", data)
	}
	return resp, decoded
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, "")

	resp, body := api.do(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestBuyAndGetMarket(t *testing.T) {
	api := newTestAPI(t, "")

	resp, body := api.do(t, http.MethodPost, "/api/markets/@Molty/buy",
		map[string]any{"wallet": testWallet, "amount": 3}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "molty", body["market_id"])
	assert.Equal(t, float64(3), body["new_supply"])

	resp, body = api.do(t, http.MethodGet, "/api/markets/molty", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["supply"])
	assert.Equal(t, false, body["verified"])

	resp, body = api.do(t, http.MethodGet, "/api/markets/molty/holders", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	holders := body["holders"].([]any)
	require.Len(t, holders, 1)

	resp, body = api.do(t, http.MethodGet, "/api/markets/molty/trades", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["trades"].([]any), 1)
}

func TestUnbornMarketIsZeroState(t *testing.T) {
	api := newTestAPI(t, "")

	resp, body := api.do(t, http.MethodGet, "/api/markets/ghost", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ghost", body["id"])
	assert.Equal(t, float64(0), body["supply"])
	assert.Equal(t, "0", body["pending_fees"])
}

func TestQuoteEndpoint(t *testing.T) {
	api := newTestAPI(t, "")

	api.do(t, http.MethodPost, "/api/markets/molty/buy",
		map[string]any{"wallet": testWallet, "amount": 1}, nil)

	resp, body := api.do(t, http.MethodGet, "/api/markets/molty/quote?direction=buy&amount=1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "62500000000000", body["gross"])
	assert.Equal(t, "68750000000000", body["total"])

	resp, _ = api.do(t, http.MethodGet, "/api/markets/molty/quote?direction=hold&amount=1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t, "")

	// Invalid handle.
	resp, body := api.do(t, http.MethodPost, "/api/markets/no%20spaces!/buy",
		map[string]any{"wallet": testWallet, "amount": 1}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_handle", body["kind"])

	// Selling with no balance.
	api.do(t, http.MethodPost, "/api/markets/molty/buy",
		map[string]any{"wallet": testWallet, "amount": 2}, nil)
	resp, body = api.do(t, http.MethodPost, "/api/markets/molty/sell",
		map[string]any{"wallet": "0x2222222222222222222222222222222222222222", "amount": 1}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "insufficient_balance", body["kind"])

	// Slippage cap.
	resp, body = api.do(t, http.MethodPost, "/api/markets/molty/buy",
		map[string]any{"wallet": testWallet, "amount": 5, "max_total_cost": "1"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "slippage_exceeded", body["kind"])

	// Claim without verification.
	resp, body = api.do(t, http.MethodPost, "/api/markets/molty/claim",
		map[string]any{"wallet": testWallet}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["kind"])
}

func TestVerifyAndClaimEndpoints(t *testing.T) {
	api := newTestAPI(t, "")

	api.do(t, http.MethodPost, "/api/markets/molty/buy",
		map[string]any{"wallet": testWallet, "amount": 10}, nil)

	att, err := api.signer.Sign("molty", mustAddr(testWallet), time.Now(), 1)
	require.NoError(t, err)

	verifyBody := map[string]any{
		"wallet":    testWallet,
		"timestamp": att.Timestamp,
		"nonce":     att.Nonce,
		"signature": "0x" + hex.EncodeToString(att.Signature),
	}
	resp, body := api.do(t, http.MethodPost, "/api/markets/molty/verify", verifyBody, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", body)
	assert.Equal(t, true, body["verified"])

	// Second verification conflicts.
	resp, body = api.do(t, http.MethodPost, "/api/markets/molty/verify", verifyBody, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_verified", body["kind"])

	resp, body = api.do(t, http.MethodPost, "/api/markets/molty/claim",
		map[string]any{"wallet": testWallet}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, "0", body["claimed"])
}

func TestPortfolio(t *testing.T) {
	api := newTestAPI(t, "")

	api.do(t, http.MethodPost, "/api/markets/molty/buy",
		map[string]any{"wallet": testWallet, "amount": 2}, nil)
	api.do(t, http.MethodPost, "/api/markets/crab/buy",
		map[string]any{"wallet": testWallet, "amount": 1}, nil)

	resp, body := api.do(t, http.MethodGet, "/api/wallets/"+testWallet, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["holdings"].([]any), 2)
	assert.Len(t, body["trades"].([]any), 2)
}

func TestAPIKeyGuardsMutations(t *testing.T) {
	api := newTestAPI(t, "sekrit")

	// Reads stay open.
	resp, _ := api.do(t, http.MethodGet, "/api/markets", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Mutations without a key are rejected.
	resp, _ = api.do(t, http.MethodPost, "/api/markets/molty/buy",
		map[string]any{"wallet": testWallet, "amount": 1}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// With the key they pass.
	resp, _ = api.do(t, http.MethodPost, "/api/markets/molty/buy",
		map[string]any{"wallet": testWallet, "amount": 1},
		map[string]string{"X-API-Key": "sekrit"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func mustAddr(s string) common.Address {
	return common.HexToAddress(s)
}
