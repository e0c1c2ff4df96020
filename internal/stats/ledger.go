package stats

import (
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/inferloop/gsd/internal/dataset"
	"github.com/inferloop/gsd/internal/domain"
	"github.com/inferloop/gsd/internal/privacy"
	"github.com/inferloop/gsd/internal/rng"
	"github.com/inferloop/gsd/pkg/constants"
	"github.com/inferloop/gsd/pkg/errors"
)

// LedgerState is the lifecycle position of a ledger.
type LedgerState int

const (
	StateUnfit LedgerState = iota
	StateFitted
	StateMeasuring
	StateDone
)

func (s LedgerState) String() string {
	switch s {
	case StateUnfit:
		return "unfit"
	case StateFitted:
		return "fit"
	case StateMeasuring:
		return "measuring"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Entry is one private measurement. Entries are written once.
type Entry struct {
	Workload int       `json:"workload"`
	Name     string    `json:"name"`
	Round    int       `json:"round"`
	Rho      float64   `json:"rho"`
	Sigma    float64   `json:"sigma"`
	True     []float64 `json:"-"`
	Noised   []float64 `json:"-"`
}

func (e Entry) clone() Entry {
	e.True = append([]float64(nil), e.True...)
	e.Noised = append([]float64(nil), e.Noised...)
	return e
}

// Ledger holds the true statistics of a private dataset for a fixed list of
// workloads and records noised measurements of them.
type Ledger struct {
	logger            *logrus.Logger
	workloads         []*Workload
	schema            *domain.Schema
	rows              int
	trueStats         [][]float64
	measured          []bool
	entries           []Entry
	state             LedgerState
	selectionFraction float64
	accountant        *privacy.Accountant
	gaussian          *privacy.GaussianMechanism
	exponential       *privacy.ExponentialMechanism
}

// LedgerOption configures a ledger.
type LedgerOption func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// WithSelectionFraction sets the share of each adaptive round's budget
// spent on selection. The rest pays for measurement.
func WithSelectionFraction(f float64) LedgerOption {
	return func(l *Ledger) { l.selectionFraction = f }
}

// WithAccountant records spending on an existing accountant.
func WithAccountant(a *privacy.Accountant) LedgerOption {
	return func(l *Ledger) { l.accountant = a }
}

// NewLedger registers workloads. Their order fixes workload ids.
func NewLedger(workloads []*Workload, opts ...LedgerOption) (*Ledger, error) {
	if len(workloads) == 0 {
		return nil, errors.ErrInvalidWorkload.WithDetails("ledger needs at least one workload")
	}
	schema := workloads[0].Schema()
	for _, w := range workloads[1:] {
		if !schema.Equal(w.Schema()) {
			return nil, errors.ErrInvalidWorkload.Detailf("workload %q uses a different schema", w.Name())
		}
	}

	l := &Ledger{
		workloads:         append([]*Workload(nil), workloads...),
		schema:            schema,
		measured:          make([]bool, len(workloads)),
		selectionFraction: constants.DefaultSelectionFraction,
		gaussian:          privacy.NewGaussianMechanism(privacy.UnitClamping()),
		exponential:       privacy.NewExponentialMechanism(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logrus.New()
	}
	if l.accountant == nil {
		l.accountant = privacy.NewAccountant(0)
	}
	if !(l.selectionFraction > 0 && l.selectionFraction < 1) {
		return nil, errors.ErrInvalidConfiguration.Detailf("selection fraction must be in (0, 1), got %g", l.selectionFraction)
	}
	return l, nil
}

// Fit computes the true statistics of the private dataset. It may be
// called once.
func (l *Ledger) Fit(d *dataset.Dataset) error {
	if l.state != StateUnfit {
		return errors.ErrAlreadyFitted
	}
	if err := checkDataset(l.schema, d); err != nil {
		return err
	}

	l.rows = d.Rows()
	l.trueStats = make([][]float64, len(l.workloads))
	for i, w := range l.workloads {
		s, err := w.Statistics(d)
		if err != nil {
			return err
		}
		l.trueStats[i] = s
	}
	l.state = StateFitted

	l.logger.WithFields(logrus.Fields{
		"rows":       l.rows,
		"workloads":  len(l.workloads),
		"statistics": l.totalSize(),
	}).Info("Fitted statistics ledger")
	return nil
}

// MeasureAll measures every workload at once, splitting rho evenly.
func (l *Ledger) MeasureAll(key rng.Key, rho float64) error {
	switch l.state {
	case StateUnfit:
		return errors.ErrNotFitted
	case StateFitted:
	default:
		return errors.ErrAlreadyMeasured.WithDetails("measure all requires a ledger with no measurements")
	}
	if rho <= 0 || math.IsNaN(rho) {
		return errors.ErrInvalidBudget.Detailf("rho must be positive, got %g", rho)
	}
	if l.accountant.Remaining() < rho*(1-1e-9) {
		return errors.ErrPrivacyBudgetExceeded.Detailf("requested rho %g, remaining %g", rho, l.accountant.Remaining())
	}

	perWorkload := rho / float64(len(l.workloads))
	keys := key.Split(len(l.workloads))
	for i := range l.workloads {
		if _, err := l.measure(keys[i], i, perWorkload, 1); err != nil {
			return err
		}
	}
	l.state = StateDone

	l.logger.WithFields(logrus.Fields{
		"rho":          rho,
		"rho_workload": perWorkload,
		"workloads":    len(l.workloads),
	}).Info("Measured all workloads")
	return nil
}

// SelectAndMeasure privately picks the unmeasured workload on which sync
// is worst, then measures it. A fraction of rhoRound pays for selection
// and the remainder for measurement.
func (l *Ledger) SelectAndMeasure(key rng.Key, rhoRound float64, sync *dataset.Dataset) (Entry, error) {
	switch l.state {
	case StateUnfit:
		return Entry{}, errors.ErrNotFitted
	case StateDone:
		return Entry{}, errors.ErrNoUnmeasuredWorkloads
	}
	if rhoRound <= 0 || math.IsNaN(rhoRound) {
		return Entry{}, errors.ErrInvalidBudget.Detailf("rho must be positive, got %g", rhoRound)
	}
	if err := checkDataset(l.schema, sync); err != nil {
		return Entry{}, err
	}
	if l.accountant.Remaining() < rhoRound*(1-1e-9) {
		return Entry{}, errors.ErrPrivacyBudgetExceeded.Detailf("requested rho %g, remaining %g", rhoRound, l.accountant.Remaining())
	}

	candidates := make([]int, 0, len(l.workloads))
	scores := make([]float64, 0, len(l.workloads))
	for i, w := range l.workloads {
		if l.measured[i] {
			continue
		}
		s, err := w.Statistics(sync)
		if err != nil {
			return Entry{}, err
		}
		candidates = append(candidates, i)
		scores = append(scores, floats.Distance(l.trueStats[i], s, math.Inf(1)))
	}

	rhoSelect := l.selectionFraction * rhoRound
	rhoMeasure := rhoRound - rhoSelect
	epsSelect := l.exponential.EpsilonForRho(rhoSelect)
	selectKey, measureKey := key.Split2()

	// One substituted row moves any frequency by at most 1/N.
	idx, err := l.exponential.Select(selectKey.Rand(), scores, epsSelect, 1/float64(l.rows))
	if err != nil {
		return Entry{}, err
	}
	chosen := candidates[idx]
	if _, err := l.accountant.Spend(rhoSelect, privacy.MechanismExponential, "select", map[string]interface{}{
		"workload": l.workloads[chosen].Name(),
	}); err != nil {
		return Entry{}, err
	}

	entry, err := l.measure(measureKey, chosen, rhoMeasure, len(l.entries)+1)
	if err != nil {
		return Entry{}, err
	}
	if len(l.entries) == len(l.workloads) {
		l.state = StateDone
	} else {
		l.state = StateMeasuring
	}

	l.logger.WithFields(logrus.Fields{
		"round":       entry.Round,
		"workload":    entry.Name,
		"score":       scores[idx],
		"eps_select":  epsSelect,
		"rho_measure": rhoMeasure,
		"candidates":  len(candidates),
	}).Debug("Selected and measured workload")
	return entry, nil
}

func (l *Ledger) measure(key rng.Key, i int, rho float64, round int) (Entry, error) {
	w := l.workloads[i]
	// Sensitivity is in counts; the released vector is frequencies.
	sensitivity := w.Sensitivity() / float64(l.rows)
	noised, err := l.gaussian.AddNoise(key.Source(), l.trueStats[i], sensitivity, rho)
	if err != nil {
		return Entry{}, err
	}
	if _, err := l.accountant.Spend(rho, privacy.MechanismGaussian, "measure", map[string]interface{}{
		"workload": w.Name(),
		"round":    round,
	}); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Workload: i,
		Name:     w.Name(),
		Round:    round,
		Rho:      rho,
		Sigma:    l.gaussian.CalculateNoiseScale(sensitivity, rho),
		True:     l.trueStats[i],
		Noised:   noised,
	}
	l.entries = append(l.entries, entry)
	l.measured[i] = true
	return entry.clone(), nil
}

// SelectedTrue concatenates the true statistics of measured workloads in
// measurement order.
func (l *Ledger) SelectedTrue() []float64 {
	var out []float64
	for _, e := range l.entries {
		out = append(out, e.True...)
	}
	return out
}

// SelectedNoised concatenates the noised measurements in measurement order.
func (l *Ledger) SelectedNoised() ([]float64, error) {
	if len(l.entries) == 0 {
		return nil, errors.ErrNotMeasured
	}
	var out []float64
	for _, e := range l.entries {
		out = append(out, e.Noised...)
	}
	return out, nil
}

// SelectedStatistics evaluates the measured workloads in measurement order,
// aligned index-for-index with SelectedTrue and SelectedNoised.
func (l *Ledger) SelectedStatistics() (*Chain, error) {
	if len(l.entries) == 0 {
		return nil, errors.ErrNotMeasured
	}
	ws := make([]*Workload, len(l.entries))
	for i, e := range l.entries {
		ws[i] = l.workloads[e.Workload]
	}
	return NewChain(ws...), nil
}

// AllTrue concatenates the true statistics of every workload in
// registration order.
func (l *Ledger) AllTrue() ([]float64, error) {
	if l.state == StateUnfit {
		return nil, errors.ErrNotFitted
	}
	out := make([]float64, 0, l.totalSize())
	for _, s := range l.trueStats {
		out = append(out, s...)
	}
	return out, nil
}

// AllStatistics evaluates every workload in registration order.
func (l *Ledger) AllStatistics() *Chain {
	return NewChain(l.workloads...)
}

// Errors returns, per workload, the max absolute error of sync against the
// true statistics.
func (l *Ledger) Errors(sync *dataset.Dataset) ([]float64, error) {
	if l.state == StateUnfit {
		return nil, errors.ErrNotFitted
	}
	out := make([]float64, len(l.workloads))
	for i, w := range l.workloads {
		s, err := w.Statistics(sync)
		if err != nil {
			return nil, err
		}
		out[i] = floats.Distance(l.trueStats[i], s, math.Inf(1))
	}
	return out, nil
}

// ErrorReport summarizes how well a dataset matches the ledger.
type ErrorReport struct {
	MaxError          float64 `json:"max_error"`
	AverageError      float64 `json:"average_error"`
	SelectedMaxTrue   float64 `json:"selected_max_true"`
	SelectedMaxNoised float64 `json:"selected_max_noised"`
}

// Report compares sync with all true statistics and with the measured ones.
func (l *Ledger) Report(sync *dataset.Dataset) (ErrorReport, error) {
	all, err := l.AllTrue()
	if err != nil {
		return ErrorReport{}, err
	}
	got, err := l.AllStatistics().Statistics(sync)
	if err != nil {
		return ErrorReport{}, err
	}

	report := ErrorReport{
		MaxError:     floats.Distance(all, got, math.Inf(1)),
		AverageError: floats.Distance(all, got, 1) / float64(len(all)),
	}
	if len(l.entries) == 0 {
		return report, nil
	}

	chain, err := l.SelectedStatistics()
	if err != nil {
		return ErrorReport{}, err
	}
	selected, err := chain.Statistics(sync)
	if err != nil {
		return ErrorReport{}, err
	}
	noised, err := l.SelectedNoised()
	if err != nil {
		return ErrorReport{}, err
	}
	report.SelectedMaxTrue = floats.Distance(l.SelectedTrue(), selected, math.Inf(1))
	report.SelectedMaxNoised = floats.Distance(noised, selected, math.Inf(1))
	return report, nil
}

// Entries returns the measurement log in order.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.clone()
	}
	return out
}

// Measured reports whether workload i has been measured.
func (l *Ledger) Measured(i int) bool { return l.measured[i] }

// NumMeasured returns how many workloads have been measured.
func (l *Ledger) NumMeasured() int { return len(l.entries) }

// NumWorkloads returns the number of registered workloads.
func (l *Ledger) NumWorkloads() int { return len(l.workloads) }

// Workload returns workload i.
func (l *Ledger) Workload(i int) *Workload { return l.workloads[i] }

// State returns the lifecycle state.
func (l *Ledger) State() LedgerState { return l.state }

// Schema returns the shared schema.
func (l *Ledger) Schema() *domain.Schema { return l.schema }

// Rows returns N of the fitted dataset.
func (l *Ledger) Rows() int { return l.rows }

// Accountant returns the privacy accountant.
func (l *Ledger) Accountant() *privacy.Accountant { return l.accountant }

func (l *Ledger) totalSize() int {
	n := 0
	for _, w := range l.workloads {
		n += w.Size()
	}
	return n
}
