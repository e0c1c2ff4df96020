// Package stats computes marginal statistics and records their private
// measurements.
package stats

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/combin"

	"github.com/inferloop/gsd/internal/dataset"
	"github.com/inferloop/gsd/internal/domain"
	"github.com/inferloop/gsd/pkg/errors"
)

// Evaluator is a statistics function over datasets of a fixed schema.
// Every row adds weight one to each cell RowCells returns, so Counts is the
// sum of RowCells over rows and Statistics is Counts divided by N.
type Evaluator interface {
	Size() int
	Counts(d *dataset.Dataset) []float64
	Statistics(d *dataset.Dataset) ([]float64, error)
	RowCells(row []float64, dst []int) []int
}

// Workload is a set of marginal queries. Each combination of discrete
// attributes contributes one block of cells, one per value tuple, ordered
// with the last attribute varying fastest.
type Workload struct {
	name    string
	schema  *domain.Schema
	combos  [][]int
	strides [][]int
	offsets []int
}

// NewMarginals builds a workload from combinations of attribute names.
func NewMarginals(schema *domain.Schema, name string, combos [][]string) (*Workload, error) {
	cols := make([][]int, len(combos))
	for i, names := range combos {
		idx, err := schema.Indices(names...)
		if err != nil {
			return nil, fmt.Errorf("workload %q: %w", name, err)
		}
		cols[i] = idx
	}
	return newWorkload(schema, name, cols)
}

// KWayMarginals is a single workload holding every k-way combination of
// discrete attributes.
func KWayMarginals(schema *domain.Schema, k int) (*Workload, error) {
	combos, err := kWayColumns(schema, k)
	if err != nil {
		return nil, err
	}
	return newWorkload(schema, fmt.Sprintf("%d-way", k), combos)
}

// KWayWorkloads returns one workload per k-way combination, the unit of
// adaptive selection.
func KWayWorkloads(schema *domain.Schema, k int) ([]*Workload, error) {
	combos, err := kWayColumns(schema, k)
	if err != nil {
		return nil, err
	}
	out := make([]*Workload, len(combos))
	for i, c := range combos {
		w, err := newWorkload(schema, comboName(schema, c), [][]int{c})
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

func kWayColumns(schema *domain.Schema, k int) ([][]int, error) {
	discrete := schema.DiscreteColumns()
	if k < 1 || k > len(discrete) {
		return nil, errors.ErrInvalidWorkload.Detailf("k=%d with %d discrete attributes", k, len(discrete))
	}
	combos := combin.Combinations(len(discrete), k)
	for _, c := range combos {
		for j, pos := range c {
			c[j] = discrete[pos]
		}
	}
	return combos, nil
}

func comboName(schema *domain.Schema, cols []int) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = schema.Attribute(c).Name
	}
	return strings.Join(names, ",")
}

func newWorkload(schema *domain.Schema, name string, combos [][]int) (*Workload, error) {
	if len(combos) == 0 {
		return nil, errors.ErrInvalidWorkload.Detailf("workload %q has no combinations", name)
	}

	w := &Workload{
		name:    name,
		schema:  schema,
		combos:  make([][]int, len(combos)),
		strides: make([][]int, len(combos)),
		offsets: make([]int, len(combos)+1),
	}
	for i, combo := range combos {
		if len(combo) == 0 {
			return nil, errors.ErrInvalidWorkload.Detailf("workload %q has an empty combination", name)
		}
		seen := make(map[int]bool, len(combo))
		strides := make([]int, len(combo))
		cells := 1
		for j := len(combo) - 1; j >= 0; j-- {
			col := combo[j]
			attr := schema.Attribute(col)
			if !attr.IsDiscrete() {
				return nil, errors.ErrInvalidWorkload.Detailf("attribute %q is numerical", attr.Name)
			}
			if seen[col] {
				return nil, errors.ErrInvalidWorkload.Detailf("attribute %q repeated in a combination", attr.Name)
			}
			seen[col] = true
			strides[j] = cells
			cells *= attr.Size
		}
		w.combos[i] = append([]int(nil), combo...)
		w.strides[i] = strides
		w.offsets[i+1] = w.offsets[i] + cells
	}
	return w, nil
}

// Name returns the workload name.
func (w *Workload) Name() string { return w.name }

// Schema returns the schema the workload was built for.
func (w *Workload) Schema() *domain.Schema { return w.schema }

// Size is the length of the statistic vector.
func (w *Workload) Size() int { return w.offsets[len(w.combos)] }

// NumCombinations returns m, the number of marginals.
func (w *Workload) NumCombinations() int { return len(w.combos) }

// Combinations returns the attribute names of every marginal.
func (w *Workload) Combinations() [][]string {
	out := make([][]string, len(w.combos))
	for i, c := range w.combos {
		names := make([]string, len(c))
		for j, col := range c {
			names[j] = w.schema.Attribute(col).Name
		}
		out[i] = names
	}
	return out
}

// Sensitivity is the L2 sensitivity of the count vector: each of the m
// marginals changes by at most one unit, giving sqrt(m).
func (w *Workload) Sensitivity() float64 {
	return math.Sqrt(float64(len(w.combos)))
}

// RowCells appends the cell index of row in every marginal to dst.
// Indices are strictly increasing.
func (w *Workload) RowCells(row []float64, dst []int) []int {
	for i, combo := range w.combos {
		cell := w.offsets[i]
		for j, col := range combo {
			cell += int(row[col]) * w.strides[i][j]
		}
		dst = append(dst, cell)
	}
	return dst
}

// Counts returns unnormalized cell counts.
func (w *Workload) Counts(d *dataset.Dataset) []float64 {
	counts := make([]float64, w.Size())
	cells := make([]int, 0, len(w.combos))
	for i := 0; i < d.Rows(); i++ {
		cells = w.RowCells(d.Row(i), cells[:0])
		for _, c := range cells {
			counts[c]++
		}
	}
	return counts
}

// Statistics returns cell frequencies. Each marginal block sums to one.
func (w *Workload) Statistics(d *dataset.Dataset) ([]float64, error) {
	if err := checkDataset(w.schema, d); err != nil {
		return nil, err
	}
	counts := w.Counts(d)
	floats.Scale(1/float64(d.Rows()), counts)
	return counts, nil
}

func checkDataset(schema *domain.Schema, d *dataset.Dataset) error {
	if d == nil || d.Rows() == 0 {
		return errors.ErrEmptyDataset
	}
	if !schema.Equal(d.Schema()) {
		return errors.ErrShapeMismatch.WithDetails("dataset schema differs from workload schema")
	}
	return nil
}
