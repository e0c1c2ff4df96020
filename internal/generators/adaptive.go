package generators

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/gsd/internal/dataset"
	"github.com/inferloop/gsd/internal/privacy"
	"github.com/inferloop/gsd/internal/rng"
	"github.com/inferloop/gsd/internal/stats"
	"github.com/inferloop/gsd/pkg/errors"
)

// RoundReport describes one adaptive round.
type RoundReport struct {
	Round        int               `json:"round"`
	Workload     string            `json:"workload"`
	Rho          float64           `json:"rho"`
	Errors       stats.ErrorReport `json:"errors"`
	Fitness      float64           `json:"fitness"`
	Generations  int               `json:"generations"`
	StoppedEarly bool              `json:"stopped_early"`
	Elapsed      time.Duration     `json:"elapsed"`
}

// AdaptiveResult is the outcome of an adaptive fit.
type AdaptiveResult struct {
	Dataset  *dataset.Dataset
	Rounds   []RoundReport
	RhoSpent float64
}

// FitAdaptive runs rounds of select-measure-fit, spending rho/rounds per
// round. Each round fits all measurements so far and, when WarmStart is
// set, seeds the search with the previous round's dataset.
func (g *GSD) FitAdaptive(ctx context.Context, key rng.Key, ledger *stats.Ledger, rounds int, rho float64) (*AdaptiveResult, error) {
	if rounds <= 0 {
		return nil, errors.ErrInvalidConfiguration.Detailf("rounds must be positive, got %d", rounds)
	}
	if rho <= 0 || math.IsNaN(rho) {
		return nil, errors.ErrInvalidBudget.Detailf("rho must be positive, got %g", rho)
	}
	if ledger.State() == stats.StateUnfit {
		return nil, errors.ErrNotFitted
	}
	if !g.schema.Equal(ledger.Schema()) {
		return nil, errors.ErrShapeMismatch.WithDetails("ledger schema differs from generator schema")
	}
	if remaining := ledger.NumWorkloads() - ledger.NumMeasured(); rounds > remaining {
		return nil, errors.ErrInvalidConfiguration.Detailf("%d rounds requested but only %d workloads unmeasured", rounds, remaining)
	}

	runID := uuid.New().String()
	rhoRound := rho / float64(rounds)
	spentBefore := ledger.Accountant().Spent()

	g.logger.WithFields(logrus.Fields{
		"run_id":    runID,
		"rounds":    rounds,
		"rho":       rho,
		"rho_round": rhoRound,
		"workloads": ledger.NumWorkloads(),
	}).Info("Starting adaptive fit")

	initKey, key := key.Split2()
	sync := dataset.Synthetic(g.schema, g.config.DataSize, initKey.Rand())
	result := &AdaptiveResult{}

	for round := 1; round <= rounds; round++ {
		keys := key.Split(3)
		key = keys[0]
		roundStart := time.Now()

		entry, err := ledger.SelectAndMeasure(keys[1], rhoRound, sync)
		if err != nil {
			return nil, err
		}
		g.hooks.phase(PhaseSelect, roundStart)

		target, err := ledger.SelectedNoised()
		if err != nil {
			return nil, err
		}
		chain, err := ledger.SelectedStatistics()
		if err != nil {
			return nil, err
		}

		var warm *dataset.Dataset
		if g.config.WarmStart {
			warm = sync
		}
		fit, err := g.fitOnce(ctx, keys[2], target, chain, warm, 0)
		if err != nil {
			return nil, err
		}
		sync = fit.Dataset

		errs, err := ledger.Report(sync)
		if err != nil {
			return nil, err
		}
		report := RoundReport{
			Round:        round,
			Workload:     entry.Name,
			Rho:          rhoRound,
			Errors:       errs,
			Fitness:      fit.Fitness,
			Generations:  fit.Generations,
			StoppedEarly: fit.StoppedEarly,
			Elapsed:      time.Since(roundStart),
		}
		result.Rounds = append(result.Rounds, report)
		g.hooks.round(report)

		g.logger.WithFields(logrus.Fields{
			"run_id":          runID,
			"round":           round,
			"workload":        entry.Name,
			"max_error":       errs.MaxError,
			"avg_error":       errs.AverageError,
			"round_max_true":  errs.SelectedMaxTrue,
			"round_max_noise": errs.SelectedMaxNoised,
			"fitness":         fit.Fitness,
			"generations":     fit.Generations,
			"duration":        report.Elapsed,
		}).Info("Completed adaptive round")
	}

	result.Dataset = sync
	result.RhoSpent = ledger.Accountant().Spent() - spentBefore
	return result, nil
}

// FitDPAdaptive converts (epsilon, delta) to a zCDP budget and runs
// FitAdaptive with it.
func (g *GSD) FitDPAdaptive(ctx context.Context, key rng.Key, ledger *stats.Ledger, rounds int, epsilon, delta float64) (*AdaptiveResult, error) {
	rho, err := privacy.CDPRho(epsilon, delta)
	if err != nil {
		return nil, errors.ErrInvalidBudget.Wrap(err)
	}
	if rho <= 0 {
		return nil, errors.ErrInvalidBudget.Detailf("epsilon %g and delta %g give no zCDP budget", epsilon, delta)
	}

	g.logger.WithFields(logrus.Fields{
		"epsilon": epsilon,
		"delta":   delta,
		"rho":     rho,
	}).Info("Converted privacy budget to zCDP")
	return g.FitAdaptive(ctx, key, ledger, rounds, rho)
}
