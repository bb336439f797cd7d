package attest

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/clawstreet/clawd/internal/domain"
)

// DefaultFreshnessWindow bounds how old an attestation timestamp may be.
const DefaultFreshnessWindow = 10 * time.Minute

// maxClockSkew tolerates authority clocks slightly ahead of ours.
const maxClockSkew = 30 * time.Second

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	// Authority is the one trusted signer address. Claims recovered to any
	// other address are rejected.
	Authority common.Address

	// ChainID scopes the signing domain so attestations cannot be replayed
	// across deployments.
	ChainID int64

	// FreshnessWindow is the maximum accepted age of a claim timestamp.
	// Zero means DefaultFreshnessWindow.
	FreshnessWindow time.Duration
}

// Verifier validates attestations against the trusted authority key and a
// persisted used-nonce set. The zero clock means time.Now.
type Verifier struct {
	cfg    VerifierConfig
	nonces domain.NonceStore
	now    func() time.Time
}

// NewVerifier creates a Verifier. nonces must be a durable store; replay
// protection is only as strong as its persistence.
func NewVerifier(cfg VerifierConfig, nonces domain.NonceStore) *Verifier {
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = DefaultFreshnessWindow
	}
	return &Verifier{cfg: cfg, nonces: nonces, now: time.Now}
}

// WithClock overrides the time source. Test hook.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify checks signature, binding, freshness, and replay in that order.
// The nonce is consumed only after every other check passes, so a rejected
// claim never burns its nonce.
func (v *Verifier) Verify(ctx context.Context, att domain.Attestation) error {
	if len(att.Signature) != ethcrypto.SignatureLength {
		return fmt.Errorf("%w: signature must be %d bytes, got %d",
			domain.ErrInvalidAttestation, ethcrypto.SignatureLength, len(att.Signature))
	}

	// Normalize the recovery byte: wallets emit v as 27/28, go-ethereum
	// expects 0/1.
	sig := make([]byte, ethcrypto.SignatureLength)
	copy(sig, att.Signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest := ClaimDigest(v.cfg.ChainID, att)
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return fmt.Errorf("%w: recover signer: %v", domain.ErrInvalidAttestation, err)
	}
	if ethcrypto.PubkeyToAddress(*pub) != v.cfg.Authority {
		return fmt.Errorf("%w: signer is not the trusted authority", domain.ErrInvalidAttestation)
	}

	issued := time.Unix(att.Timestamp, 0)
	now := v.now()
	if issued.After(now.Add(maxClockSkew)) {
		return fmt.Errorf("%w: timestamp %d is in the future", domain.ErrInvalidAttestation, att.Timestamp)
	}
	if now.Sub(issued) > v.cfg.FreshnessWindow {
		return fmt.Errorf("%w: issued %s ago, window is %s",
			domain.ErrAttestationExpired, now.Sub(issued).Round(time.Second), v.cfg.FreshnessWindow)
	}

	if err := v.nonces.Consume(ctx, att.Handle, att.Nonce); err != nil {
		return err
	}
	return nil
}

// Compile-time interface check.
var _ domain.AttestationVerifier = (*Verifier)(nil)
