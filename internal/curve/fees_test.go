package curve

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitFloorsIndependently(t *testing.T) {
	f := DefaultFeeSplit()

	// 1999 × 500 / 10000 = 99.95 → each share floors to 99 independently;
	// the combined fee is 198, not floor(1999 × 1000 / 10000) = 199.
	protocol, originator := f.Split(big.NewInt(1999))
	assert.Equal(t, int64(99), protocol.Int64())
	assert.Equal(t, int64(99), originator.Int64())
}

func TestSplitZeroGross(t *testing.T) {
	protocol, originator := DefaultFeeSplit().Split(new(big.Int))
	assert.Zero(t, protocol.Sign())
	assert.Zero(t, originator.Sign())
}

func TestSplitExactRates(t *testing.T) {
	f := FeeSplit{ProtocolBps: 500, OriginatorBps: 250}
	protocol, originator := f.Split(big.NewInt(10000))
	assert.Equal(t, int64(500), protocol.Int64())
	assert.Equal(t, int64(250), originator.Int64())
}

func TestSplitDoesNotMutateGross(t *testing.T) {
	gross := big.NewInt(123456789)
	DefaultFeeSplit().Split(gross)
	assert.Equal(t, int64(123456789), gross.Int64())
}

func TestFeeSplitValidate(t *testing.T) {
	assert.NoError(t, DefaultFeeSplit().Validate())
	assert.Error(t, FeeSplit{ProtocolBps: 5000, OriginatorBps: 5000}.Validate())
	assert.Error(t, FeeSplit{ProtocolBps: 9999, OriginatorBps: 1}.Validate())
	assert.NoError(t, FeeSplit{}.Validate())
}
