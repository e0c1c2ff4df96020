package domain

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/gsd/internal/rng"
	"github.com/inferloop/gsd/pkg/errors"
)

func createTestSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := New(
		Attribute{Name: "sex", Type: Categorical, Size: 2},
		Attribute{Name: "age", Type: Ordinal, Size: 16},
		Attribute{Name: "income", Type: Numerical, Size: 1},
	)
	require.NoError(t, err)
	return s
}

func TestNewSchema(t *testing.T) {
	s := createTestSchema(t)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"sex", "age", "income"}, s.Names())
	assert.Equal(t, []int{0, 1}, s.DiscreteColumns())

	idx, err := s.Indices("income", "sex")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, idx)
}

func TestNewSchemaRejectsInvalidAttributes(t *testing.T) {
	cases := []struct {
		name  string
		attrs []Attribute
	}{
		{"empty", nil},
		{"duplicate", []Attribute{{Name: "a", Type: Categorical, Size: 2}, {Name: "a", Type: Categorical, Size: 3}}},
		{"discrete size one", []Attribute{{Name: "a", Type: Categorical, Size: 1}}},
		{"numerical size", []Attribute{{Name: "a", Type: Numerical, Size: 4}}},
		{"unknown type", []Attribute{{Name: "a", Type: "text", Size: 2}}},
		{"no name", []Attribute{{Type: Ordinal, Size: 2}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.attrs...)
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrInvalidSchema))
		})
	}
}

func TestIndexUnknownAttribute(t *testing.T) {
	s := createTestSchema(t)

	_, err := s.Index("zip")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownAttribute)
	assert.True(t, errors.IsConfiguration(err))
}

func TestSampleStaysInDomain(t *testing.T) {
	s := createTestSchema(t)
	r := rng.New(3).Rand()

	for col := 0; col < s.Len(); col++ {
		for _, v := range s.Sample(col, 500, r) {
			assert.True(t, s.Valid(col, v), "column %d value %v", col, v)
		}
	}
}

func TestColumnCycleFavoursWideAttributes(t *testing.T) {
	s := createTestSchema(t)
	counts := map[int]int{}
	for _, c := range s.ColumnCycle() {
		counts[c]++
	}

	assert.Equal(t, 2, counts[0])
	assert.Equal(t, 5, counts[1])
	assert.Equal(t, 1, counts[2])
}

func TestEqual(t *testing.T) {
	a := createTestSchema(t)
	b := createTestSchema(t)
	c, err := New(Attribute{Name: "sex", Type: Categorical, Size: 2})
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
