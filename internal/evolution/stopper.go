package evolution

// EarlyStopper halts a search whose best fitness stopped improving.
// Every stride generations the best fitness is compared with the value at
// the previous checkpoint; a relative improvement under threshold stops.
type EarlyStopper struct {
	stride      int
	threshold   float64
	baseline    float64
	hasBaseline bool
}

// NewEarlyStopper creates a stopper. A non-positive stride disables it.
func NewEarlyStopper(stride int, threshold float64) *EarlyStopper {
	return &EarlyStopper{stride: stride, threshold: threshold}
}

// Check records the best fitness after a generation and reports whether
// the search should stop. Generation 0 sets the first baseline.
func (e *EarlyStopper) Check(generation int, best float64) bool {
	if e.stride <= 0 || generation%e.stride != 0 {
		return false
	}
	if best == 0 {
		return true
	}
	if !e.hasBaseline {
		e.baseline, e.hasBaseline = best, true
		return false
	}

	prev := e.baseline
	e.baseline = best
	if prev == 0 {
		return false
	}
	return (prev-best)/prev < e.threshold
}
