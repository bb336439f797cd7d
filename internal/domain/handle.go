package domain

import (
	"fmt"
	"strings"
)

// MaxHandleLen bounds normalized handle length (X handle limit).
const MaxHandleLen = 15

// NormalizeHandle canonicalizes a raw handle into a market id: one leading
// "@" is stripped, the rest is lowercased and must be 1-15 characters of
// [a-z0-9_]. Anything else fails with ErrInvalidHandle.
func NormalizeHandle(raw string) (string, error) {
	h := strings.TrimPrefix(strings.TrimSpace(raw), "@")
	h = strings.ToLower(h)

	if len(h) == 0 || len(h) > MaxHandleLen {
		return "", fmt.Errorf("%w: length must be 1-%d, got %d", ErrInvalidHandle, MaxHandleLen, len(h))
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' {
			continue
		}
		return "", fmt.Errorf("%w: character %q at position %d", ErrInvalidHandle, c, i)
	}
	return h, nil
}
