package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidHandle       = errors.New("invalid handle")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientSupply  = errors.New("insufficient supply")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSlippageExceeded    = errors.New("slippage exceeded")
	ErrAlreadyVerified     = errors.New("market already verified")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidAttestation  = errors.New("invalid attestation")
	ErrAttestationExpired  = errors.New("attestation expired")
	ErrAttestationReplayed = errors.New("attestation replayed")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrLockHeld            = errors.New("lock already held")
)

// ErrorKind returns the stable machine-readable kind string for a domain
// error, or "internal" for anything outside the taxonomy. Transport layers
// use it to build structured error responses.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidHandle):
		return "invalid_handle"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientSupply):
		return "insufficient_supply"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrSlippageExceeded):
		return "slippage_exceeded"
	case errors.Is(err, ErrAlreadyVerified):
		return "already_verified"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidAttestation):
		return "invalid_attestation"
	case errors.Is(err, ErrAttestationExpired):
		return "attestation_expired"
	case errors.Is(err, ErrAttestationReplayed):
		return "attestation_replayed"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}
