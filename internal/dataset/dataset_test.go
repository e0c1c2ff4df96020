package dataset

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/gsd/internal/domain"
	"github.com/inferloop/gsd/internal/rng"
	"github.com/inferloop/gsd/pkg/errors"
)

func createTestSchema(t *testing.T) *domain.Schema {
	t.Helper()
	s, err := domain.New(
		domain.Attribute{Name: "a", Type: domain.Categorical, Size: 3},
		domain.Attribute{Name: "b", Type: domain.Ordinal, Size: 2},
		domain.Attribute{Name: "x", Type: domain.Numerical, Size: 1},
	)
	require.NoError(t, err)
	return s
}

func TestFromRows(t *testing.T) {
	s := createTestSchema(t)

	ds, err := FromRows(s, [][]float64{{0, 1, 0.5}, {2, 0, 0.25}})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Rows())
	assert.Equal(t, 3, ds.Cols())
	assert.Equal(t, []float64{2, 0, 0.25}, ds.Row(1))
	assert.Equal(t, 0.5, ds.At(0, 2))

	_, err = FromRows(s, [][]float64{{0, 1}})
	assert.ErrorIs(t, err, errors.ErrShapeMismatch)

	_, err = FromRows(s, [][]float64{{3, 1, 0.5}})
	assert.ErrorIs(t, err, errors.ErrInvalidValue)
}

func TestSyntheticIsValidAndDeterministic(t *testing.T) {
	s := createTestSchema(t)

	a := Synthetic(s, 100, rng.New(9).Rand())
	b := Synthetic(s, 100, rng.New(9).Rand())
	assert.True(t, a.Equal(b))

	_, err := New(s, a.Values())
	assert.NoError(t, err)
}

func TestReplaceRowDoesNotAlias(t *testing.T) {
	s := createTestSchema(t)
	ds, err := FromRows(s, [][]float64{{0, 1, 0.5}, {2, 0, 0.25}})
	require.NoError(t, err)

	next := ds.ReplaceRow(0, []float64{1, 1, 1})
	assert.Equal(t, []float64{0, 1, 0.5}, ds.Row(0))
	assert.Equal(t, []float64{1, 1, 1}, next.Row(0))
	assert.Equal(t, ds.Row(1), next.Row(1))
}

func TestProject(t *testing.T) {
	s := createTestSchema(t)
	ds, err := FromRows(s, [][]float64{{0, 1, 0.5}, {2, 0, 0.25}})
	require.NoError(t, err)

	p, err := ds.Project("x", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "a"}, p.Schema().Names())
	assert.Equal(t, []float64{0.5, 0, 0.25, 2}, p.Values())

	_, err = ds.Project("missing")
	assert.ErrorIs(t, err, errors.ErrUnknownAttribute)
}

func TestCSVRoundTrip(t *testing.T) {
	s := createTestSchema(t)
	ds := Synthetic(s, 20, rng.New(1).Rand())

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(context.Background(), &buf, ds, CSVOptions{}))

	back, err := ReadCSV(context.Background(), &buf, s, CSVOptions{})
	require.NoError(t, err)
	assert.True(t, ds.Equal(back))
}

func TestReadCSVMatchesHeaderNames(t *testing.T) {
	s := createTestSchema(t)
	in := "x;extra;b;a\n0.5;zzz;1;2\n"

	ds, err := ReadCSV(context.Background(), strings.NewReader(in), s, CSVOptions{Delimiter: ";"})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1, 0.5}, ds.Row(0))

	_, err = ReadCSV(context.Background(), strings.NewReader("a,b\n1,1\n"), s, CSVOptions{})
	assert.ErrorIs(t, err, errors.ErrUnknownAttribute)

	_, err = ReadCSV(context.Background(), strings.NewReader("a,b,x\n"), s, CSVOptions{})
	assert.ErrorIs(t, err, errors.ErrEmptyDataset)
}
