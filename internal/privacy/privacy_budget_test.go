package privacy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/gsd/pkg/errors"
)

func TestAccountantComposesAdditively(t *testing.T) {
	acc := NewAccountant(1.0)

	for i := 0; i < 10; i++ {
		tx, err := acc.Spend(0.1, MechanismGaussian, "measure", map[string]interface{}{"round": i})
		require.NoError(t, err)
		assert.NotEmpty(t, tx.ID)
	}
	assert.InDelta(t, 1.0, acc.Spent(), 1e-12)
	assert.InDelta(t, 0.0, acc.Remaining(), 1e-12)

	_, err := acc.Spend(0.01, MechanismGaussian, "measure", nil)
	assert.ErrorIs(t, err, errors.ErrPrivacyBudgetExceeded)
	assert.Len(t, acc.Transactions(), 10)

	status := acc.Status()
	assert.Equal(t, 10, status.TransactionCount)
	assert.InDelta(t, 1.0, status.ConsumedRho, 1e-12)
}

func TestAccountantUncapped(t *testing.T) {
	acc := NewAccountant(0)

	_, err := acc.Spend(50, MechanismExponential, "select", nil)
	require.NoError(t, err)
	assert.True(t, math.IsInf(acc.Remaining(), 1))

	_, err = acc.Spend(0, MechanismExponential, "select", nil)
	assert.ErrorIs(t, err, errors.ErrInvalidBudget)
}

func TestAccountantEpsilon(t *testing.T) {
	acc := NewAccountant(0)
	_, err := acc.Spend(0.5, MechanismGaussian, "measure", nil)
	require.NoError(t, err)

	eps, err := acc.Epsilon(1e-6)
	require.NoError(t, err)
	expected, err := CDPEps(0.5, 1e-6)
	require.NoError(t, err)
	assert.Equal(t, expected, eps)
}
