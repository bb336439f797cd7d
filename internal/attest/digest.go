// Package attest implements the signed ownership attestation that links a
// handle to a wallet. One off-chain authority signs EIP-712 style claims;
// the verifier checks a claim against the single trusted authority address
// and enforces freshness and replay protection.
package attest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/clawstreet/clawd/internal/domain"
)

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// OwnerClaim(string handle,address wallet,uint256 timestamp,uint256 nonce)
	ownerClaimTypeHash = ethcrypto.Keccak256(
		[]byte("OwnerClaim(string handle,address wallet,uint256 timestamp,uint256 nonce)"),
	)
)

const (
	domainName    = "ClawMarket"
	domainVersion = "1"
)

// domainSeparator returns keccak256(abi.encode(typeHash, nameHash,
// versionHash, chainId)) for the attestation signing domain.
func domainSeparator(chainID int64) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(domainName)),
			ethcrypto.Keccak256([]byte(domainVersion)),
			bigIntTo32Bytes(big.NewInt(chainID)),
		),
	)
}

// ClaimDigest computes the final EIP-712 digest the authority signs:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
//
// where the struct hash covers exactly (handle, wallet, timestamp, nonce).
// Dynamic string fields are hashed per EIP-712 before encoding.
func ClaimDigest(chainID int64, att domain.Attestation) []byte {
	structHash := ethcrypto.Keccak256(
		concatBytes(
			ownerClaimTypeHash,
			ethcrypto.Keccak256([]byte(att.Handle)),
			common.LeftPadBytes(att.Wallet.Bytes(), 32),
			bigIntTo32Bytes(big.NewInt(att.Timestamp)),
			bigIntTo32Bytes(new(big.Int).SetUint64(att.Nonce)),
		),
	)

	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSeparator(chainID),
			structHash,
		),
	)
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
