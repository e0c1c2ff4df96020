package evolution

import (
	"github.com/inferloop/gsd/internal/dataset"
)

// Member is one archived synthetic dataset with its unnormalized
// statistics and fitness.
type Member struct {
	Data    *dataset.Dataset
	Counts  []float64
	Fitness float64
}

// State is the elite archive between generations. Archive is sorted by
// ascending fitness. Members are never modified after being archived, so
// consecutive states may share them.
type State struct {
	Archive    []Member
	Best       *Member
	Generation int

	cycle  []int
	cursor int
}

// Initialized reports whether the state came from Strategy.Initialize.
func (s *State) Initialized() bool {
	return s != nil && len(s.Archive) > 0 && len(s.cycle) > 0
}

// BestFitness returns the best fitness seen so far, if any.
func (s *State) BestFitness() (float64, bool) {
	if s == nil || s.Best == nil {
		return 0, false
	}
	return s.Best.Fitness, true
}

// Fitnesses returns the archive fitness values in order.
func (s *State) Fitnesses() []float64 {
	out := make([]float64, len(s.Archive))
	for i, m := range s.Archive {
		out[i] = m.Fitness
	}
	return out
}

// NextColumn is the column the next mutation batch will rewrite.
func (s *State) NextColumn() int {
	return s.cycle[s.cursor]
}
