package evolution

import (
	"sort"

	"github.com/sourcegraph/conc/pool"

	"github.com/inferloop/gsd/internal/dataset"
	"github.com/inferloop/gsd/internal/domain"
	"github.com/inferloop/gsd/internal/rng"
	"github.com/inferloop/gsd/pkg/constants"
	"github.com/inferloop/gsd/pkg/errors"
)

// Config sizes the search.
type Config struct {
	DataSize       int `json:"data_size" mapstructure:"data_size"`
	EliteSize      int `json:"elite_size" mapstructure:"elite_size"`
	PopulationSize int `json:"population_size" mapstructure:"population_size"`
	MutaRate       int `json:"muta_rate" mapstructure:"muta_rate"`
	MateRate       int `json:"mate_rate" mapstructure:"mate_rate"`
	Workers        int `json:"workers" mapstructure:"workers"`
}

// DefaultConfig returns the default search configuration.
func DefaultConfig() *Config {
	return &Config{
		DataSize:       constants.DefaultDataSize,
		EliteSize:      constants.DefaultEliteSize,
		PopulationSize: constants.DefaultPopulationSize,
		MutaRate:       constants.DefaultMutaRate,
		MateRate:       constants.DefaultMateRate,
		Workers:        constants.DefaultWorkers,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.DataSize <= 0:
		return errors.ErrInvalidConfiguration.Detailf("data size must be positive, got %d", c.DataSize)
	case c.EliteSize <= 0:
		return errors.ErrInvalidConfiguration.Detailf("elite size must be positive, got %d", c.EliteSize)
	case c.PopulationSize < 2:
		return errors.ErrInvalidConfiguration.Detailf("population size must be at least 2, got %d", c.PopulationSize)
	case c.MutaRate <= 0 || c.MateRate <= 0:
		return errors.ErrInvalidConfiguration.Detailf("muta and mate rates must be positive, got %d and %d", c.MutaRate, c.MateRate)
	case c.MutaRate != c.MateRate:
		return errors.ErrInvalidConfiguration.Detailf("muta rate %d must equal mate rate %d", c.MutaRate, c.MateRate)
	}
	return nil
}

// Operator is the variation that produced a candidate.
type Operator int

const (
	Mutation Operator = iota
	Crossover
)

func (o Operator) String() string {
	if o == Mutation {
		return "mutation"
	}
	return "crossover"
}

// Candidate is an archive member with a single row replaced.
type Candidate struct {
	Operator Operator
	Member   int
	Row      int
	Removed  []float64
	Added    []float64
}

// Population is one generation of candidates. Every mutation candidate
// rewrites Column.
type Population struct {
	Candidates []Candidate
	Column     int
}

// Strategy is the (mu+lambda) genetic search over datasets.
type Strategy struct {
	schema     *domain.Schema
	config     Config
	mutations  int
	crossovers int
}

// NewStrategy validates config and creates a strategy.
func NewStrategy(schema *domain.Schema, config *Config) (*Strategy, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	mutations := config.PopulationSize * config.MutaRate / (config.MutaRate + config.MateRate)
	return &Strategy{
		schema:     schema,
		config:     *config,
		mutations:  mutations,
		crossovers: config.PopulationSize - mutations,
	}, nil
}

// Config returns the strategy configuration.
func (s *Strategy) Config() Config { return s.config }

// Initialize fills the archive with random datasets. A non-nil warmStart
// takes the first slot. This is the only place full statistics are
// computed.
func (s *Strategy) Initialize(key rng.Key, obj *Objective, warmStart *dataset.Dataset) (*State, error) {
	if int(obj.n) != s.config.DataSize {
		return nil, errors.ErrShapeMismatch.Detailf("objective data size %v, strategy data size %d", obj.n, s.config.DataSize)
	}
	if warmStart != nil {
		if !s.schema.Equal(warmStart.Schema()) {
			return nil, errors.ErrShapeMismatch.WithDetails("warm start schema differs")
		}
		if warmStart.Rows() != s.config.DataSize {
			return nil, errors.ErrShapeMismatch.Detailf("warm start has %d rows, want %d", warmStart.Rows(), s.config.DataSize)
		}
	}

	keys := key.Split(s.config.EliteSize + 1)
	archive := make([]Member, s.config.EliteSize)
	for i := range archive {
		var d *dataset.Dataset
		if i == 0 && warmStart != nil {
			d = warmStart.Clone()
		} else {
			d = dataset.Synthetic(s.schema, s.config.DataSize, keys[i].Rand())
		}
		counts := obj.stat.Counts(d)
		archive[i] = Member{Data: d, Counts: counts, Fitness: obj.Fitness(counts)}
	}
	sort.SliceStable(archive, func(a, b int) bool { return archive[a].Fitness < archive[b].Fitness })

	cycle := s.schema.ColumnCycle()
	keys[s.config.EliteSize].Rand().Shuffle(len(cycle), func(i, j int) {
		cycle[i], cycle[j] = cycle[j], cycle[i]
	})

	best := archive[0]
	return &State{Archive: archive, Best: &best, cycle: cycle}, nil
}

// Ask proposes the next population. Mutations draw a fresh value for the
// state's current column; crossovers copy one cell from a donor row to a
// recipient row of the same member.
func (s *Strategy) Ask(key rng.Key, state *State) (*Population, error) {
	if !state.Initialized() {
		return nil, errors.ErrNotInitialized
	}

	r := key.Rand()
	elite := len(state.Archive)
	n := s.config.DataSize
	column := state.NextColumn()
	values := s.schema.Sample(column, s.mutations, r)

	candidates := make([]Candidate, 0, s.mutations+s.crossovers)
	for i := 0; i < s.mutations; i++ {
		m := r.IntN(elite)
		row := r.IntN(n)
		removed := append([]float64(nil), state.Archive[m].Data.Row(row)...)
		added := append([]float64(nil), removed...)
		added[column] = values[i]
		candidates = append(candidates, Candidate{Operator: Mutation, Member: m, Row: row, Removed: removed, Added: added})
	}

	for i := 0; i < s.crossovers; i++ {
		m := r.IntN(elite)
		data := state.Archive[m].Data
		recipient := r.IntN(n)
		donor := r.IntN(n)
		col := r.IntN(s.schema.Len())
		removed := append([]float64(nil), data.Row(recipient)...)
		added := append([]float64(nil), removed...)
		added[col] = data.At(donor, col)
		candidates = append(candidates, Candidate{Operator: Crossover, Member: m, Row: recipient, Removed: removed, Added: added})
	}

	return &Population{Candidates: candidates, Column: column}, nil
}

// Evaluate scores each candidate from its parent's counts and fitness,
// touching only the cells of the replaced row.
func (s *Strategy) Evaluate(obj *Objective, state *State, pop *Population) ([]float64, error) {
	if !state.Initialized() {
		return nil, errors.ErrNotInitialized
	}

	fitness := make([]float64, len(pop.Candidates))
	eval := func(lo, hi int) {
		var removed, added []int
		for i := lo; i < hi; i++ {
			c := pop.Candidates[i]
			removed = obj.stat.RowCells(c.Removed, removed[:0])
			added = obj.stat.RowCells(c.Added, added[:0])
			parent := state.Archive[c.Member]
			fitness[i] = obj.fitnessWithDelta(parent.Counts, parent.Fitness, removed, added)
		}
	}

	workers := s.config.Workers
	if workers <= 1 || len(fitness) < 2*workers {
		eval(0, len(fitness))
		return fitness, nil
	}

	p := pool.New().WithMaxGoroutines(workers)
	chunk := (len(fitness) + workers - 1) / workers
	for lo := 0; lo < len(fitness); lo += chunk {
		hi := min(lo+chunk, len(fitness))
		p.Go(func() { eval(lo, hi) })
	}
	p.Wait()
	return fitness, nil
}

// Tell merges the archive with the scored population and keeps the best
// EliteSize members. Ties favour existing members.
func (s *Strategy) Tell(obj *Objective, state *State, pop *Population, fitness []float64) (*State, error) {
	if !state.Initialized() {
		return nil, errors.ErrNotInitialized
	}
	if len(fitness) != len(pop.Candidates) {
		return nil, errors.ErrShapeMismatch.Detailf("%d fitness values for %d candidates", len(fitness), len(pop.Candidates))
	}

	type ranked struct {
		fitness   float64
		member    int
		candidate int
	}
	ranks := make([]ranked, 0, len(state.Archive)+len(fitness))
	for i, m := range state.Archive {
		ranks = append(ranks, ranked{fitness: m.Fitness, member: i, candidate: -1})
	}
	for i, f := range fitness {
		ranks = append(ranks, ranked{fitness: f, member: -1, candidate: i})
	}
	sort.SliceStable(ranks, func(a, b int) bool { return ranks[a].fitness < ranks[b].fitness })

	next := &State{
		Archive:    make([]Member, len(state.Archive)),
		Best:       state.Best,
		Generation: state.Generation + 1,
		cycle:      state.cycle,
		cursor:     (state.cursor + 1) % len(state.cycle),
	}
	for i := range next.Archive {
		e := ranks[i]
		if e.member >= 0 {
			next.Archive[i] = state.Archive[e.member]
			continue
		}
		next.Archive[i] = s.materialize(obj, state, pop.Candidates[e.candidate])
	}
	// Entrants carry recomputed fitness, which may differ from the
	// incremental score in the last bits.
	sort.SliceStable(next.Archive, func(a, b int) bool { return next.Archive[a].Fitness < next.Archive[b].Fitness })

	if next.Best == nil || next.Archive[0].Fitness < next.Best.Fitness {
		best := next.Archive[0]
		next.Best = &best
	}
	return next, nil
}

// materialize applies a candidate to its parent. Fitness is recomputed from
// the new counts so incremental rounding never accumulates across
// generations.
func (s *Strategy) materialize(obj *Objective, state *State, c Candidate) Member {
	parent := state.Archive[c.Member]
	counts := append([]float64(nil), parent.Counts...)
	for _, cell := range obj.stat.RowCells(c.Removed, nil) {
		counts[cell]--
	}
	for _, cell := range obj.stat.RowCells(c.Added, nil) {
		counts[cell]++
	}
	return Member{
		Data:    parent.Data.ReplaceRow(c.Row, c.Added),
		Counts:  counts,
		Fitness: obj.Fitness(counts),
	}
}
