package privacy

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/inferloop/gsd/pkg/errors"
)

// Mechanism names recorded by the accountant.
const (
	MechanismGaussian    = "gaussian"
	MechanismExponential = "exponential"
)

// ClampingConfig bounds released values. Clipping is post-processing and
// does not consume privacy budget.
type ClampingConfig struct {
	Enabled    bool    `json:"enabled"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
}

// UnitClamping clips to [0, 1], the range of a frequency.
func UnitClamping() *ClampingConfig {
	return &ClampingConfig{Enabled: true, LowerBound: 0, UpperBound: 1}
}

func (c *ClampingConfig) apply(v float64) float64 {
	if c == nil || !c.Enabled {
		return v
	}
	return math.Min(math.Max(v, c.LowerBound), c.UpperBound)
}

// GaussianMechanism releases vectors under rho-zCDP by adding isotropic
// Gaussian noise with sigma = sensitivity / sqrt(2 rho).
type GaussianMechanism struct {
	clampingConfig *ClampingConfig
}

// NewGaussianMechanism creates a new Gaussian mechanism
func NewGaussianMechanism(clampingConfig *ClampingConfig) *GaussianMechanism {
	return &GaussianMechanism{clampingConfig: clampingConfig}
}

// GetName returns the mechanism name
func (gm *GaussianMechanism) GetName() string {
	return MechanismGaussian
}

// GetDescription returns mechanism description
func (gm *GaussianMechanism) GetDescription() string {
	return "Gaussian mechanism adds normal noise calibrated to L2 sensitivity for rho-zCDP"
}

// ValidateParameters checks the mechanism inputs.
func (gm *GaussianMechanism) ValidateParameters(sensitivity, rho float64) error {
	if rho <= 0 || math.IsNaN(rho) {
		return errors.ErrInvalidBudget.Detailf("rho must be positive, got %g", rho)
	}
	if sensitivity < 0 || math.IsNaN(sensitivity) {
		return fmt.Errorf("sensitivity must be non-negative, got %f", sensitivity)
	}
	return nil
}

// CalculateNoiseScale returns the noise standard deviation.
func (gm *GaussianMechanism) CalculateNoiseScale(sensitivity, rho float64) float64 {
	return sensitivity / math.Sqrt(2*rho)
}

// AddNoise returns a noised copy of values.
func (gm *GaussianMechanism) AddNoise(src rand.Source, values []float64, sensitivity, rho float64) ([]float64, error) {
	if err := gm.ValidateParameters(sensitivity, rho); err != nil {
		return nil, err
	}

	sigma := gm.CalculateNoiseScale(sensitivity, rho)
	result := make([]float64, len(values))
	if sigma == 0 {
		for i, v := range values {
			result[i] = gm.clampingConfig.apply(v)
		}
		return result, nil
	}

	normal := distuv.Normal{Mu: 0, Sigma: sigma, Src: src}
	for i, v := range values {
		result[i] = gm.clampingConfig.apply(v + normal.Rand())
	}
	return result, nil
}

// ExponentialMechanism selects an index with probability proportional to
// exp(epsilon * score / (2 * sensitivity)).
type ExponentialMechanism struct{}

// NewExponentialMechanism creates a new exponential mechanism
func NewExponentialMechanism() *ExponentialMechanism {
	return &ExponentialMechanism{}
}

// GetName returns the mechanism name
func (em *ExponentialMechanism) GetName() string {
	return MechanismExponential
}

// GetDescription returns mechanism description
func (em *ExponentialMechanism) GetDescription() string {
	return "Exponential mechanism selects a candidate with probability exponential in its score"
}

// ZCDPCost converts the selection epsilon into its zCDP cost. Selection
// weights are exp(epsilon*score/sensitivity), which satisfies
// epsilon^2/2-zCDP under bounded-range analysis.
func (em *ExponentialMechanism) ZCDPCost(epsilon float64) float64 {
	return epsilon * epsilon / 2
}

// EpsilonForRho is the inverse of ZCDPCost.
func (em *ExponentialMechanism) EpsilonForRho(rho float64) float64 {
	return math.Sqrt(2 * rho)
}

// Probabilities returns the normalized selection distribution.
func (em *ExponentialMechanism) Probabilities(scores []float64, epsilon, sensitivity float64) ([]float64, error) {
	if len(scores) == 0 {
		return nil, fmt.Errorf("no candidates to select from")
	}
	if epsilon <= 0 {
		return nil, errors.ErrInvalidBudget.Detailf("epsilon must be positive, got %g", epsilon)
	}
	if sensitivity <= 0 {
		return nil, fmt.Errorf("sensitivity must be positive, got %f", sensitivity)
	}

	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}

	// Weights are exp(epsilon*(s-max)/sensitivity); the max shift keeps
	// exp from overflowing.
	probabilities := make([]float64, len(scores))
	var total float64
	for i, s := range scores {
		probabilities[i] = math.Exp(epsilon * (s - maxScore) / sensitivity)
		total += probabilities[i]
	}
	for i := range probabilities {
		probabilities[i] /= total
	}
	return probabilities, nil
}

// Select draws one index.
func (em *ExponentialMechanism) Select(r *rand.Rand, scores []float64, epsilon, sensitivity float64) (int, error) {
	probabilities, err := em.Probabilities(scores, epsilon, sensitivity)
	if err != nil {
		return -1, err
	}
	return em.sampleCategorical(r, probabilities), nil
}

func (em *ExponentialMechanism) sampleCategorical(r *rand.Rand, probabilities []float64) int {
	u := r.Float64()
	cumulative := 0.0

	for i, prob := range probabilities {
		cumulative += prob
		if u < cumulative {
			return i
		}
	}

	// Rounding left the cumulative sum just under one.
	return len(probabilities) - 1
}
