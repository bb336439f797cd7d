package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Attestation is a signed off-chain claim produced by the trusted authority
// binding a handle to a wallet. Timestamp is Unix seconds; Signature is the
// 65-byte r||s||v secp256k1 signature over the canonical claim digest.
type Attestation struct {
	Handle    string
	Wallet    common.Address
	Timestamp int64
	Nonce     uint64
	Signature []byte
}

// AttestationVerifier checks that an attestation was signed by the single
// trusted authority key, binds exactly the given (handle, wallet) pair, is
// fresh, and has not been seen before. Implementations consume the nonce as
// part of a successful verification.
type AttestationVerifier interface {
	Verify(ctx context.Context, att Attestation) error
}
