package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/gsd/internal/generators"
	"github.com/inferloop/gsd/internal/stats"
)

func TestHooksFeedMetrics(t *testing.T) {
	pm, err := NewPrometheusMetrics(nil, logrus.New())
	require.NoError(t, err)

	hooks := pm.Hooks()
	hooks.OnPhase(generators.PhaseAsk, 3*time.Millisecond)
	hooks.OnPhase(generators.PhaseTell, time.Millisecond)
	hooks.OnGeneration(1, 0.5)
	hooks.OnGeneration(2, 0.25)
	hooks.OnRound(generators.RoundReport{Round: 1, Errors: stats.ErrorReport{MaxError: 0.1, AverageError: 0.01}})
	pm.SetRhoSpent(0.3)

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.generationsTotal))
	assert.Equal(t, 0.25, testutil.ToFloat64(pm.bestFitness))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.roundsTotal))
	assert.Equal(t, 0.1, testutil.ToFloat64(pm.roundMaxError))
	assert.Equal(t, 0.01, testutil.ToFloat64(pm.roundAvgError))
	assert.Equal(t, 0.3, testutil.ToFloat64(pm.rhoSpent))
	assert.Equal(t, 2, testutil.CollectAndCount(pm.phaseDuration))
}

func TestDisabledServerIsNoop(t *testing.T) {
	pm, err := NewPrometheusMetrics(DefaultPrometheusConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, pm.Start(t.Context()))
	require.NoError(t, pm.Stop(t.Context()))
}
