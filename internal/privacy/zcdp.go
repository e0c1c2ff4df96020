package privacy

import (
	"fmt"
	"math"
)

const bisectionSteps = 1000

// CDPDelta returns the smallest delta such that rho-zCDP implies
// (eps, delta)-DP, using the conversion of Canonne, Kamath and Steinke.
func CDPDelta(rho, eps float64) (float64, error) {
	if rho < 0 || eps < 0 {
		return 0, fmt.Errorf("rho and epsilon must be non-negative, got rho=%g eps=%g", rho, eps)
	}
	if rho == 0 {
		return 0, nil
	}

	// Bisect for the Renyi order minimizing the bound.
	amin, amax := 1.01, (eps+1)/(2*rho)+2
	for i := 0; i < bisectionSteps; i++ {
		alpha := (amin + amax) / 2
		derivative := (2*alpha-1)*rho - eps + math.Log1p(-1/alpha)
		if derivative < 0 {
			amin = alpha
		} else {
			amax = alpha
		}
	}

	alpha := amax
	delta := math.Exp((alpha-1)*(alpha*rho-eps)+alpha*math.Log1p(-1/alpha)) / (alpha - 1)
	return math.Min(delta, 1), nil
}

// CDPEps returns the smallest epsilon such that rho-zCDP implies
// (eps, delta)-DP.
func CDPEps(rho, delta float64) (float64, error) {
	if rho < 0 {
		return 0, fmt.Errorf("rho must be non-negative, got %g", rho)
	}
	if delta <= 0 {
		return 0, fmt.Errorf("delta must be positive, got %g", delta)
	}
	if delta >= 1 || rho == 0 {
		return 0, nil
	}

	epsmin, epsmax := 0.0, rho+2*math.Sqrt(rho*math.Log(1/delta))
	for i := 0; i < bisectionSteps; i++ {
		eps := (epsmin + epsmax) / 2
		d, err := CDPDelta(rho, eps)
		if err != nil {
			return 0, err
		}
		if d <= delta {
			epsmax = eps
		} else {
			epsmin = eps
		}
	}
	return epsmax, nil
}

// CDPRho returns the largest rho such that rho-zCDP implies (eps, delta)-DP.
func CDPRho(eps, delta float64) (float64, error) {
	if eps < 0 {
		return 0, fmt.Errorf("epsilon must be non-negative, got %g", eps)
	}
	if delta <= 0 {
		return 0, fmt.Errorf("delta must be positive, got %g", delta)
	}
	if delta >= 1 {
		return 0, nil
	}

	rhomin, rhomax := 0.0, eps+1
	for i := 0; i < bisectionSteps; i++ {
		rho := (rhomin + rhomax) / 2
		d, err := CDPDelta(rho, eps)
		if err != nil {
			return 0, err
		}
		if d <= delta {
			rhomin = rho
		} else {
			rhomax = rho
		}
	}
	return rhomin, nil
}
