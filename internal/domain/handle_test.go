package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHandle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "molty", "molty"},
		{"leading at", "@molty", "molty"},
		{"uppercase", "@MoltyCrab", "moltycrab"},
		{"digits and underscore", "crab_42", "crab_42"},
		{"surrounding whitespace", "  @molty  ", "molty"},
		{"max length", "abcdefghijklmno", "abcdefghijklmno"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeHandle(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeHandleRejects(t *testing.T) {
	bad := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"only at", "@"},
		{"too long", "abcdefghijklmnop"},
		{"space inside", "molty crab"},
		{"hyphen", "molty-crab"},
		{"double at", "@@molty"},
		{"unicode", "mölty"},
		{"dot", "molty.eth"},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeHandle(tt.in)
			assert.ErrorIs(t, err, ErrInvalidHandle)
		})
	}
}

func TestErrorKindCoversTaxonomy(t *testing.T) {
	assert.Equal(t, "slippage_exceeded", ErrorKind(ErrSlippageExceeded))
	assert.Equal(t, "already_verified", ErrorKind(ErrAlreadyVerified))
	assert.Equal(t, "attestation_replayed", ErrorKind(ErrAttestationReplayed))
	assert.Equal(t, "internal", ErrorKind(assert.AnError))
}
