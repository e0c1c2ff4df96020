package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/inferloop/gsd/internal/dataset"
	"github.com/inferloop/gsd/internal/domain"
	"github.com/inferloop/gsd/internal/rng"
	"github.com/inferloop/gsd/pkg/errors"
)

func createTestSchema(t *testing.T) *domain.Schema {
	t.Helper()
	s, err := domain.New(
		domain.Attribute{Name: "a", Type: domain.Categorical, Size: 2},
		domain.Attribute{Name: "b", Type: domain.Ordinal, Size: 3},
		domain.Attribute{Name: "c", Type: domain.Categorical, Size: 2},
		domain.Attribute{Name: "x", Type: domain.Numerical, Size: 1},
	)
	require.NoError(t, err)
	return s
}

func createTestDataset(t *testing.T, s *domain.Schema, n int, seed uint64) *dataset.Dataset {
	t.Helper()
	return dataset.Synthetic(s, n, rng.New(seed).Rand())
}

func TestMarginalBlocksSumToOne(t *testing.T) {
	s := createTestSchema(t)
	d := createTestDataset(t, s, 137, 1)

	for k := 1; k <= 3; k++ {
		w, err := KWayMarginals(s, k)
		require.NoError(t, err)
		stat, err := w.Statistics(d)
		require.NoError(t, err)
		require.Len(t, stat, w.Size())

		for i := 0; i < w.NumCombinations(); i++ {
			block := stat[w.offsets[i]:w.offsets[i+1]]
			assert.InDelta(t, 1.0, floats.Sum(block), 1e-12, "k=%d combination %d", k, i)
		}
	}
}

func TestMarginalCellOrder(t *testing.T) {
	s := createTestSchema(t)
	d, err := dataset.FromRows(s, [][]float64{
		{0, 2, 1, 0.1},
		{1, 0, 0, 0.2},
		{1, 2, 1, 0.3},
		{1, 2, 0, 0.4},
	})
	require.NoError(t, err)

	w, err := NewMarginals(s, "ab", [][]string{{"a", "b"}})
	require.NoError(t, err)
	stat, err := w.Statistics(d)
	require.NoError(t, err)

	// cells (a,b): 00 01 02 10 11 12
	assert.Equal(t, []float64{0, 0, 0.25, 0.25, 0, 0.5}, stat)
	assert.Equal(t, [][]string{{"a", "b"}}, w.Combinations())
}

func TestSingletonUpdateMatchesRecomputation(t *testing.T) {
	s := createTestSchema(t)
	d := createTestDataset(t, s, 60, 2)
	w, err := KWayMarginals(s, 2)
	require.NoError(t, err)

	removed := append([]float64(nil), d.Row(17)...)
	added := []float64{1, 1, 0, 0.9}
	next := d.ReplaceRow(17, added)

	removedStat, err := w.Statistics(mustRows(t, s, removed))
	require.NoError(t, err)
	addedStat, err := w.Statistics(mustRows(t, s, added))
	require.NoError(t, err)

	incremental := w.Counts(d)
	floats.Add(incremental, addedStat)
	floats.Sub(incremental, removedStat)

	full := w.Counts(next)
	for i := range full {
		assert.InDelta(t, full[i], incremental[i], 1e-5*(1+full[i]))
	}
}

func mustRows(t *testing.T, s *domain.Schema, rows ...[]float64) *dataset.Dataset {
	t.Helper()
	d, err := dataset.FromRows(s, rows)
	require.NoError(t, err)
	return d
}

func TestWorkloadValidation(t *testing.T) {
	s := createTestSchema(t)

	_, err := NewMarginals(s, "bad", [][]string{{"a", "zzz"}})
	assert.ErrorIs(t, err, errors.ErrUnknownAttribute)

	_, err = NewMarginals(s, "num", [][]string{{"a", "x"}})
	assert.ErrorIs(t, err, errors.ErrInvalidWorkload)

	_, err = NewMarginals(s, "dup", [][]string{{"a", "a"}})
	assert.ErrorIs(t, err, errors.ErrInvalidWorkload)

	_, err = NewMarginals(s, "none", nil)
	assert.ErrorIs(t, err, errors.ErrInvalidWorkload)

	_, err = KWayMarginals(s, 4)
	assert.ErrorIs(t, err, errors.ErrInvalidWorkload)
}

func TestStatisticsRejectsEmptyDataset(t *testing.T) {
	s := createTestSchema(t)
	w, err := KWayMarginals(s, 1)
	require.NoError(t, err)

	empty, err := dataset.New(s, nil)
	require.NoError(t, err)
	_, err = w.Statistics(empty)
	assert.ErrorIs(t, err, errors.ErrEmptyDataset)
}

func TestKWayWorkloads(t *testing.T) {
	s := createTestSchema(t)

	ws, err := KWayWorkloads(s, 2)
	require.NoError(t, err)
	require.Len(t, ws, 3)
	assert.Equal(t, "a,b", ws[0].Name())
	assert.Equal(t, "a,c", ws[1].Name())
	assert.Equal(t, "b,c", ws[2].Name())
	assert.Equal(t, 1.0, ws[0].Sensitivity())

	all, err := KWayMarginals(s, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1.7320508, all.Sensitivity(), 1e-6)
}

func TestChainMatchesConcatenation(t *testing.T) {
	s := createTestSchema(t)
	d := createTestDataset(t, s, 40, 3)
	ws, err := KWayWorkloads(s, 2)
	require.NoError(t, err)

	chain := NewChain(ws[2], ws[0])
	got, err := chain.Statistics(d)
	require.NoError(t, err)

	first, err := ws[2].Statistics(d)
	require.NoError(t, err)
	second, err := ws[0].Statistics(d)
	require.NoError(t, err)
	assert.Equal(t, append(first, second...), got)
	assert.Equal(t, len(first), chain.Offset(1))

	counts := make([]float64, chain.Size())
	for i := 0; i < d.Rows(); i++ {
		for _, c := range chain.RowCells(d.Row(i), nil) {
			counts[c]++
		}
	}
	assert.Equal(t, chain.Counts(d), counts)
}
