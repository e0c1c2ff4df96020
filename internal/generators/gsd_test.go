package generators

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/gsd/internal/dataset"
	"github.com/inferloop/gsd/internal/domain"
	"github.com/inferloop/gsd/internal/evolution"
	"github.com/inferloop/gsd/internal/privacy"
	"github.com/inferloop/gsd/internal/rng"
	"github.com/inferloop/gsd/internal/stats"
	"github.com/inferloop/gsd/pkg/errors"
)

func createBinarySchema(t *testing.T, d int) *domain.Schema {
	t.Helper()
	attrs := make([]domain.Attribute, d)
	for i := range attrs {
		attrs[i] = domain.Attribute{Name: string(rune('a' + i)), Type: domain.Categorical, Size: 2}
	}
	s, err := domain.New(attrs...)
	require.NoError(t, err)
	return s
}

// createSkewedDataset draws rows where each attribute copies the previous
// one with probability 0.8, giving correlated 2-way marginals.
func createSkewedDataset(t *testing.T, s *domain.Schema, n int, seed uint64) *dataset.Dataset {
	t.Helper()
	r := rng.New(seed).Rand()
	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, s.Len())
		if r.Float64() < 0.7 {
			row[0] = 1
		}
		for j := 1; j < len(row); j++ {
			row[j] = row[j-1]
			if r.Float64() < 0.2 {
				row[j] = 1 - row[j]
			}
		}
		rows[i] = row
	}
	ds, err := dataset.FromRows(s, rows)
	require.NoError(t, err)
	return ds
}

func createTestConfig() *Config {
	cfg := DefaultConfig()
	cfg.DataSize = 50
	cfg.EliteSize = 5
	cfg.PopulationSize = 20
	cfg.NumGenerations = 3000
	cfg.StopEarly = false
	return cfg
}

func createTestGSD(t *testing.T, s *domain.Schema, cfg *Config, hooks *Hooks) *GSD {
	t.Helper()
	g, err := NewGSD(s, cfg, hooks, logrus.New())
	require.NoError(t, err)
	return g
}

func TestNewGSDRejectsBadConfig(t *testing.T) {
	s := createBinarySchema(t, 3)

	cfg := createTestConfig()
	cfg.MateRate = 3
	_, err := NewGSD(s, cfg, nil, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidConfiguration)

	cfg = createTestConfig()
	cfg.NumGenerations = -1
	_, err = NewGSD(s, cfg, nil, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidConfiguration)

	g, err := NewGSD(s, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "gsd", g.GetName())
}

func TestFitMatchesLowOrderMarginals(t *testing.T) {
	s := createBinarySchema(t, 3)
	private := createSkewedDataset(t, s, 200, 1)

	one, err := stats.KWayMarginals(s, 1)
	require.NoError(t, err)
	two, err := stats.KWayMarginals(s, 2)
	require.NoError(t, err)
	ledger, err := stats.NewLedger([]*stats.Workload{one, two}, stats.WithLogger(logrus.New()))
	require.NoError(t, err)
	require.NoError(t, ledger.Fit(private))
	require.NoError(t, ledger.MeasureAll(rng.New(2), 1e9))

	var history []float64
	hooks := &Hooks{OnGeneration: func(_ int, best float64) { history = append(history, best) }}
	g := createTestGSD(t, s, createTestConfig(), hooks)

	result, err := g.Fit(context.Background(), rng.New(3), ledger, 0)
	require.NoError(t, err)
	assert.Equal(t, 50, result.Dataset.Rows())
	assert.IsNonIncreasing(t, history)

	report, err := ledger.Report(result.Dataset)
	require.NoError(t, err)
	assert.Less(t, report.MaxError, 0.05)
}

func TestFitRequiresMeasurements(t *testing.T) {
	s := createBinarySchema(t, 3)
	ws, err := stats.KWayWorkloads(s, 2)
	require.NoError(t, err)
	ledger, err := stats.NewLedger(ws)
	require.NoError(t, err)
	require.NoError(t, ledger.Fit(createSkewedDataset(t, s, 100, 4)))

	g := createTestGSD(t, s, createTestConfig(), nil)
	_, err = g.Fit(context.Background(), rng.New(1), ledger, 0)
	assert.ErrorIs(t, err, errors.ErrNotMeasured)
}

func TestFitOnceStopsEarlyOnExactMatch(t *testing.T) {
	s := createBinarySchema(t, 4)
	cfg := createTestConfig()
	cfg.StopEarly = true
	cfg.StopEarlyStride = 20
	cfg.NumGenerations = 1000000

	w, err := stats.KWayMarginals(s, 2)
	require.NoError(t, err)
	data := createSkewedDataset(t, s, cfg.DataSize, 5)
	target, err := w.Statistics(data)
	require.NoError(t, err)

	g := createTestGSD(t, s, cfg, nil)
	result, err := g.FitOnce(context.Background(), rng.New(6), target, w, data)
	require.NoError(t, err)

	assert.True(t, result.StoppedEarly)
	assert.LessOrEqual(t, result.Generations, cfg.StopEarlyStride)
	assert.InDelta(t, 0, result.Fitness, 1e-12)
	assert.True(t, data.Equal(result.Dataset))
}

func TestFitOnceTolerance(t *testing.T) {
	s := createBinarySchema(t, 3)
	w, err := stats.KWayMarginals(s, 1)
	require.NoError(t, err)
	target, err := w.Statistics(createSkewedDataset(t, s, 200, 7))
	require.NoError(t, err)

	cfg := createTestConfig()
	g := createTestGSD(t, s, cfg, nil)
	result, err := g.fitOnce(context.Background(), rng.New(8), target, w, nil, 0.01)
	require.NoError(t, err)
	assert.LessOrEqual(t, result.Fitness, 0.01)
	assert.Less(t, result.Generations, cfg.NumGenerations)
}

func TestFitOnceHonoursCancellation(t *testing.T) {
	s := createBinarySchema(t, 3)
	w, err := stats.KWayMarginals(s, 2)
	require.NoError(t, err)
	target, err := w.Statistics(createSkewedDataset(t, s, 100, 9))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := createTestConfig()
	cfg.StopEarlyStride = 10
	g := createTestGSD(t, s, cfg, nil)
	_, err = g.FitOnce(ctx, rng.New(1), target, w, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFitDP(t *testing.T) {
	s := createBinarySchema(t, 3)
	ws, err := stats.KWayWorkloads(s, 2)
	require.NoError(t, err)
	ledger, err := stats.NewLedger(ws)
	require.NoError(t, err)
	require.NoError(t, ledger.Fit(createSkewedDataset(t, s, 300, 10)))

	phases := map[Phase]int{}
	hooks := &Hooks{OnPhase: func(p Phase, _ time.Duration) { phases[p]++ }}
	cfg := createTestConfig()
	cfg.NumGenerations = 100
	g := createTestGSD(t, s, cfg, hooks)

	result, err := g.FitDP(context.Background(), rng.New(11), ledger, 1, 1e-6)
	require.NoError(t, err)
	assert.Equal(t, 100, result.Generations)

	rho, err := privacy.CDPRho(1, 1e-6)
	require.NoError(t, err)
	assert.InDelta(t, rho, ledger.Accountant().Spent(), 1e-9)

	assert.Equal(t, 1, phases[PhaseMeasure])
	assert.Equal(t, 1, phases[PhaseInitialize])
	assert.Equal(t, 100, phases[PhaseAsk])
	assert.Equal(t, 100, phases[PhaseEvaluate])
	assert.Equal(t, 100, phases[PhaseTell])
}

func TestFitOnceRejectsMismatchedTarget(t *testing.T) {
	s := createBinarySchema(t, 3)
	w, err := stats.KWayMarginals(s, 2)
	require.NoError(t, err)

	g := createTestGSD(t, s, createTestConfig(), nil)
	_, err = g.FitOnce(context.Background(), rng.New(1), []float64{0.5}, w, nil)
	assert.ErrorIs(t, err, errors.ErrShapeMismatch)

	var _ evolution.Statistic = w
}
