package attest

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/clawstreet/clawd/internal/domain"
)

// Signer produces attestations with the authority private key. The verifier
// side of the engine never holds this key; the signer exists for the
// attestation service, ops tooling, and tests.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int64
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the deployment chain ID.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("attest: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}, nil
}

// NewSignerFromKey wraps an existing private key. Test hook.
func NewSignerFromKey(pk *ecdsa.PrivateKey, chainID int64) *Signer {
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}
}

// Address returns the authority address derived from the signing key.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign produces a complete attestation binding handle to wallet, stamped at
// the given time with the given nonce. The signature carries v in {27,28}.
func (s *Signer) Sign(handle string, wallet common.Address, at time.Time, nonce uint64) (domain.Attestation, error) {
	att := domain.Attestation{
		Handle:    handle,
		Wallet:    wallet,
		Timestamp: at.Unix(),
		Nonce:     nonce,
	}

	sig, err := ethcrypto.Sign(ClaimDigest(s.chainID, att), s.privateKey)
	if err != nil {
		return domain.Attestation{}, fmt.Errorf("attest: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	att.Signature = sig
	return att, nil
}
