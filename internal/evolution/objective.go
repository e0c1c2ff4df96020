// Package evolution implements the ask/tell genetic search over synthetic
// datasets. Everything here is a pure function of its inputs and a PRNG key.
package evolution

import (
	"github.com/inferloop/gsd/internal/dataset"
	"github.com/inferloop/gsd/pkg/errors"
)

// Statistic is the statistics function being matched. RowCells must return
// strictly increasing cell indices, each receiving weight one from the row.
type Statistic interface {
	Size() int
	Counts(d *dataset.Dataset) []float64
	RowCells(row []float64, dst []int) []int
}

// Objective scores unnormalized statistic vectors against a target.
type Objective struct {
	target []float64
	stat   Statistic
	n      float64
	inv    float64
}

// NewObjective binds a target vector to the statistic producing it.
func NewObjective(target []float64, stat Statistic, dataSize int) (*Objective, error) {
	if len(target) != stat.Size() {
		return nil, errors.ErrShapeMismatch.Detailf("target has %d entries, statistic has %d", len(target), stat.Size())
	}
	if dataSize <= 0 {
		return nil, errors.ErrInvalidConfiguration.Detailf("data size must be positive, got %d", dataSize)
	}
	return &Objective{
		target: append([]float64(nil), target...),
		stat:   stat,
		n:      float64(dataSize),
		inv:    1 / float64(dataSize),
	}, nil
}

// Statistic returns the bound statistics function.
func (o *Objective) Statistic() Statistic { return o.stat }

// Fitness is the squared L2 distance between counts/N and the target.
// Lower is better.
func (o *Objective) Fitness(counts []float64) float64 {
	var sum float64
	for i, c := range counts {
		d := c*o.inv - o.target[i]
		sum += d * d
	}
	return sum
}

// fitnessWithDelta rescores a parent with one unit removed from each
// removed cell and added to each added cell. Only touched cells are
// visited; both index lists must be strictly increasing.
func (o *Objective) fitnessWithDelta(counts []float64, fitness float64, removed, added []int) float64 {
	ri, ai := 0, 0
	for ri < len(removed) || ai < len(added) {
		var cell int
		switch {
		case ai == len(added) || (ri < len(removed) && removed[ri] < added[ai]):
			cell = removed[ri]
		default:
			cell = added[ai]
		}

		c := counts[cell]
		next := c
		if ri < len(removed) && removed[ri] == cell {
			next--
			ri++
		}
		if ai < len(added) && added[ai] == cell {
			next++
			ai++
		}
		if next == c {
			continue
		}
		before := c*o.inv - o.target[cell]
		after := next*o.inv - o.target[cell]
		fitness += after*after - before*before
	}
	return fitness
}
