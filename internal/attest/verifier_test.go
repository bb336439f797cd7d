package attest

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawstreet/clawd/internal/domain"
)

const testChainID = 8453

// memNonces is a minimal in-memory NonceStore for verifier tests.
type memNonces struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemNonces() *memNonces {
	return &memNonces{seen: make(map[string]bool)}
}

func (m *memNonces) Consume(_ context.Context, marketID string, nonce uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s:%d", marketID, nonce)
	if m.seen[key] {
		return domain.ErrAttestationReplayed
	}
	m.seen[key] = true
	return nil
}

func newTestPair(t *testing.T) (*Signer, *Verifier, *memNonces) {
	t.Helper()

	pk, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	signer := NewSignerFromKey(pk, testChainID)

	nonces := newMemNonces()
	verifier := NewVerifier(VerifierConfig{
		Authority: signer.Address(),
		ChainID:   testChainID,
	}, nonces)
	return signer, verifier, nonces
}

func TestVerifyRoundTrip(t *testing.T) {
	signer, verifier, _ := newTestPair(t)

	att, err := signer.Sign("molty", common.HexToAddress("0x1111111111111111111111111111111111111111"), time.Now(), 1)
	require.NoError(t, err)

	assert.NoError(t, verifier.Verify(context.Background(), att))
}

func TestVerifyRejectsWrongAuthority(t *testing.T) {
	_, verifier, _ := newTestPair(t)

	otherKey, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	other := NewSignerFromKey(otherKey, testChainID)

	att, err := other.Sign("molty", common.HexToAddress("0x11"), time.Now(), 1)
	require.NoError(t, err)

	assert.ErrorIs(t, verifier.Verify(context.Background(), att), domain.ErrInvalidAttestation)
}

func TestVerifyRejectsTamperedBinding(t *testing.T) {
	signer, verifier, _ := newTestPair(t)
	wallet := common.HexToAddress("0x2222222222222222222222222222222222222222")

	att, err := signer.Sign("molty", wallet, time.Now(), 7)
	require.NoError(t, err)

	// Swapping any bound field invalidates the signature.
	handleSwapped := att
	handleSwapped.Handle = "imposter"
	assert.ErrorIs(t, verifier.Verify(context.Background(), handleSwapped), domain.ErrInvalidAttestation)

	walletSwapped := att
	walletSwapped.Wallet = common.HexToAddress("0x3333333333333333333333333333333333333333")
	assert.ErrorIs(t, verifier.Verify(context.Background(), walletSwapped), domain.ErrInvalidAttestation)

	nonceSwapped := att
	nonceSwapped.Nonce = 8
	assert.ErrorIs(t, verifier.Verify(context.Background(), nonceSwapped), domain.ErrInvalidAttestation)
}

func TestVerifyRejectsExpired(t *testing.T) {
	signer, verifier, _ := newTestPair(t)

	att, err := signer.Sign("molty", common.HexToAddress("0x11"), time.Now().Add(-DefaultFreshnessWindow-time.Minute), 1)
	require.NoError(t, err)

	assert.ErrorIs(t, verifier.Verify(context.Background(), att), domain.ErrAttestationExpired)
}

func TestVerifyRejectsFutureTimestamp(t *testing.T) {
	signer, verifier, _ := newTestPair(t)

	att, err := signer.Sign("molty", common.HexToAddress("0x11"), time.Now().Add(time.Hour), 1)
	require.NoError(t, err)

	assert.ErrorIs(t, verifier.Verify(context.Background(), att), domain.ErrInvalidAttestation)
}

func TestVerifyRejectsReplay(t *testing.T) {
	signer, verifier, _ := newTestPair(t)
	wallet := common.HexToAddress("0x11")

	att, err := signer.Sign("molty", wallet, time.Now(), 42)
	require.NoError(t, err)

	require.NoError(t, verifier.Verify(context.Background(), att))

	// Same nonce again, even freshly signed, must be rejected.
	again, err := signer.Sign("molty", wallet, time.Now(), 42)
	require.NoError(t, err)
	assert.ErrorIs(t, verifier.Verify(context.Background(), again), domain.ErrAttestationReplayed)

	// A different nonce for the same market still works.
	next, err := signer.Sign("molty", wallet, time.Now(), 43)
	require.NoError(t, err)
	assert.NoError(t, verifier.Verify(context.Background(), next))
}

func TestFailedVerificationDoesNotBurnNonce(t *testing.T) {
	signer, verifier, _ := newTestPair(t)
	wallet := common.HexToAddress("0x11")

	// Expired claim with nonce 5 is rejected before the nonce is consumed.
	stale, err := signer.Sign("molty", wallet, time.Now().Add(-time.Hour), 5)
	require.NoError(t, err)
	require.ErrorIs(t, verifier.Verify(context.Background(), stale), domain.ErrAttestationExpired)

	// The same nonce on a fresh claim still verifies.
	fresh, err := signer.Sign("molty", wallet, time.Now(), 5)
	require.NoError(t, err)
	assert.NoError(t, verifier.Verify(context.Background(), fresh))
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	_, verifier, _ := newTestPair(t)

	att := domain.Attestation{
		Handle:    "molty",
		Wallet:    common.HexToAddress("0x11"),
		Timestamp: time.Now().Unix(),
		Nonce:     1,
		Signature: []byte{0x01, 0x02},
	}
	assert.ErrorIs(t, verifier.Verify(context.Background(), att), domain.ErrInvalidAttestation)
}

func TestVerifyAcceptsLegacyRecoveryByte(t *testing.T) {
	signer, verifier, _ := newTestPair(t)

	att, err := signer.Sign("molty", common.HexToAddress("0x11"), time.Now(), 9)
	require.NoError(t, err)
	require.GreaterOrEqual(t, att.Signature[64], byte(27))

	// The same signature with v in {0,1} must also verify.
	att.Signature[64] -= 27
	assert.NoError(t, verifier.Verify(context.Background(), att))
}

func TestKeyFileRoundTrip(t *testing.T) {
	pk, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hex.EncodeToString(ethcrypto.FromECDSA(pk))

	blob, err := EncryptKey(keyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, keyHex, got)

	_, err = DecryptKey(blob, "wrong")
	assert.Error(t, err)
}
