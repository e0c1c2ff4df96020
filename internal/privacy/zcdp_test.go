package privacy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCDPDeltaEdgeCases(t *testing.T) {
	d, err := CDPDelta(0, 1)
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = CDPDelta(100, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, d, 1.0)

	_, err = CDPDelta(-1, 1)
	assert.Error(t, err)
}

func TestCDPConversionsAgree(t *testing.T) {
	for _, eps := range []float64{0.1, 1, 10} {
		delta := 1e-6
		rho, err := CDPRho(eps, delta)
		require.NoError(t, err)
		require.Greater(t, rho, 0.0)

		d, err := CDPDelta(rho, eps)
		require.NoError(t, err)
		assert.LessOrEqual(t, d, delta*(1+1e-9))

		back, err := CDPEps(rho, delta)
		require.NoError(t, err)
		assert.InEpsilon(t, eps, back, 1e-6)

		// The standard bound eps <= rho + 2 sqrt(rho log(1/delta)) is never tighter.
		assert.LessOrEqual(t, back, rho+2*math.Sqrt(rho*math.Log(1/delta)))
	}
}

func TestCDPRhoMonotone(t *testing.T) {
	prev := 0.0
	for _, eps := range []float64{0.05, 0.5, 1, 2, 5} {
		rho, err := CDPRho(eps, 1e-5)
		require.NoError(t, err)
		assert.Greater(t, rho, prev)
		prev = rho
	}
}

func TestCDPRejectsInvalidDelta(t *testing.T) {
	_, err := CDPRho(1, 0)
	assert.Error(t, err)
	_, err = CDPEps(1, -1)
	assert.Error(t, err)
}
