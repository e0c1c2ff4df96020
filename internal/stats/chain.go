package stats

import (
	"gonum.org/v1/gonum/floats"

	"github.com/inferloop/gsd/internal/dataset"
	"github.com/inferloop/gsd/internal/domain"
)

// Chain concatenates the statistic vectors of several workloads in order.
type Chain struct {
	schema    *domain.Schema
	workloads []*Workload
	offsets   []int
}

// NewChain builds a chain. All workloads must share a schema.
func NewChain(workloads ...*Workload) *Chain {
	c := &Chain{
		workloads: append([]*Workload(nil), workloads...),
		offsets:   make([]int, len(workloads)+1),
	}
	for i, w := range workloads {
		c.offsets[i+1] = c.offsets[i] + w.Size()
	}
	if len(workloads) > 0 {
		c.schema = workloads[0].schema
	}
	return c
}

// Workloads returns the chained workloads.
func (c *Chain) Workloads() []*Workload {
	return append([]*Workload(nil), c.workloads...)
}

// Size is the total statistic length.
func (c *Chain) Size() int { return c.offsets[len(c.workloads)] }

// Offset returns where workload i starts in the concatenated vector.
func (c *Chain) Offset(i int) int { return c.offsets[i] }

func (c *Chain) RowCells(row []float64, dst []int) []int {
	for i, w := range c.workloads {
		start := len(dst)
		dst = w.RowCells(row, dst)
		for j := start; j < len(dst); j++ {
			dst[j] += c.offsets[i]
		}
	}
	return dst
}

func (c *Chain) Counts(d *dataset.Dataset) []float64 {
	counts := make([]float64, 0, c.Size())
	for _, w := range c.workloads {
		counts = append(counts, w.Counts(d)...)
	}
	return counts
}

func (c *Chain) Statistics(d *dataset.Dataset) ([]float64, error) {
	if err := checkDataset(c.schema, d); err != nil {
		return nil, err
	}
	counts := c.Counts(d)
	floats.Scale(1/float64(d.Rows()), counts)
	return counts, nil
}
