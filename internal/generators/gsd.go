package generators

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/gsd/internal/dataset"
	"github.com/inferloop/gsd/internal/domain"
	"github.com/inferloop/gsd/internal/evolution"
	"github.com/inferloop/gsd/internal/privacy"
	"github.com/inferloop/gsd/internal/rng"
	"github.com/inferloop/gsd/internal/stats"
	"github.com/inferloop/gsd/pkg/constants"
	"github.com/inferloop/gsd/pkg/errors"
)

// Config configures the genetic synthetic-data generator.
type Config struct {
	evolution.Config `mapstructure:",squash"`

	NumGenerations     int     `json:"num_generations" mapstructure:"num_generations"`
	StopEarly          bool    `json:"stop_early" mapstructure:"stop_early"`
	StopEarlyStride    int     `json:"stop_early_stride" mapstructure:"stop_early_stride"`
	StopEarlyThreshold float64 `json:"stop_early_threshold" mapstructure:"stop_early_threshold"`
	WarmStart          bool    `json:"warm_start" mapstructure:"warm_start"`
}

// DefaultConfig returns the default generator configuration.
func DefaultConfig() *Config {
	return &Config{
		Config:             *evolution.DefaultConfig(),
		NumGenerations:     constants.DefaultNumGenerations,
		StopEarly:          true,
		StopEarlyThreshold: constants.DefaultStopEarlyThreshold,
		WarmStart:          true,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.NumGenerations < 0 {
		return errors.ErrInvalidConfiguration.Detailf("generation count must be non-negative, got %d", c.NumGenerations)
	}
	if c.StopEarlyStride < 0 || c.StopEarlyThreshold < 0 {
		return errors.ErrInvalidConfiguration.WithDetails("early stop stride and threshold must be non-negative")
	}
	return nil
}

func (c *Config) stride() int {
	if c.StopEarlyStride > 0 {
		return c.StopEarlyStride
	}
	return c.DataSize
}

// FitResult is the outcome of one optimization.
type FitResult struct {
	Dataset      *dataset.Dataset
	Fitness      float64
	Generations  int
	StoppedEarly bool
	Elapsed      time.Duration
}

// GSD fits synthetic datasets to measured statistics with a genetic search.
type GSD struct {
	config   Config
	schema   *domain.Schema
	strategy *evolution.Strategy
	hooks    *Hooks
	logger   *logrus.Logger
}

// NewGSD creates a generator for datasets of the given schema.
func NewGSD(schema *domain.Schema, config *Config, hooks *Hooks, logger *logrus.Logger) (*GSD, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	strategy, err := evolution.NewStrategy(schema, &config.Config)
	if err != nil {
		return nil, err
	}

	return &GSD{
		config:   *config,
		schema:   schema,
		strategy: strategy,
		hooks:    hooks,
		logger:   logger,
	}, nil
}

// GetName returns the generator name
func (g *GSD) GetName() string {
	return "gsd"
}

// GetDescription returns the generator description
func (g *GSD) GetDescription() string {
	return "Genetic search for synthetic tabular data matching private marginal measurements"
}

// Config returns the generator configuration.
func (g *GSD) Config() Config { return g.config }

// FitOnce searches for a dataset whose statistics match target. A non-nil
// warmStart seeds one archive slot.
func (g *GSD) FitOnce(ctx context.Context, key rng.Key, target []float64, stat evolution.Statistic, warmStart *dataset.Dataset) (*FitResult, error) {
	return g.fitOnce(ctx, key, target, stat, warmStart, 0)
}

func (g *GSD) fitOnce(ctx context.Context, key rng.Key, target []float64, stat evolution.Statistic, warmStart *dataset.Dataset, tolerance float64) (*FitResult, error) {
	obj, err := evolution.NewObjective(target, stat, g.config.DataSize)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	initKey, key := key.Split2()
	phaseStart := time.Now()
	state, err := g.strategy.Initialize(initKey, obj, warmStart)
	if err != nil {
		return nil, err
	}
	g.hooks.phase(PhaseInitialize, phaseStart)

	stride := g.config.stride()
	stopper := evolution.NewEarlyStopper(stride, g.config.StopEarlyThreshold)
	best, _ := state.BestFitness()
	stopped := g.config.StopEarly && stopper.Check(0, best)

	gen := 0
	for !stopped && gen < g.config.NumGenerations {
		gen++
		var sub rng.Key
		key, sub = key.Split2()

		phaseStart = time.Now()
		pop, err := g.strategy.Ask(sub, state)
		if err != nil {
			return nil, err
		}
		g.hooks.phase(PhaseAsk, phaseStart)

		phaseStart = time.Now()
		fitness, err := g.strategy.Evaluate(obj, state, pop)
		if err != nil {
			return nil, err
		}
		g.hooks.phase(PhaseEvaluate, phaseStart)

		phaseStart = time.Now()
		state, err = g.strategy.Tell(obj, state, pop, fitness)
		if err != nil {
			return nil, err
		}
		g.hooks.phase(PhaseTell, phaseStart)

		best, _ = state.BestFitness()
		g.hooks.generation(gen, best)

		if tolerance > 0 && best <= tolerance {
			stopped = true
			break
		}
		if gen%stride == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			g.logger.WithFields(logrus.Fields{
				"generation": gen,
				"fitness":    best,
				"elapsed":    time.Since(start),
			}).Debug("Search checkpoint")
		}
		if g.config.StopEarly && stopper.Check(gen, best) {
			stopped = true
		}
	}

	return &FitResult{
		Dataset:      state.Best.Data,
		Fitness:      best,
		Generations:  gen,
		StoppedEarly: stopped,
		Elapsed:      time.Since(start),
	}, nil
}

// Fit matches every measurement already recorded on the ledger. The search
// stops once fitness reaches tolerance when tolerance is positive.
func (g *GSD) Fit(ctx context.Context, key rng.Key, ledger *stats.Ledger, tolerance float64) (*FitResult, error) {
	if !g.schema.Equal(ledger.Schema()) {
		return nil, errors.ErrShapeMismatch.WithDetails("ledger schema differs from generator schema")
	}
	target, err := ledger.SelectedNoised()
	if err != nil {
		return nil, err
	}
	chain, err := ledger.SelectedStatistics()
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	g.logger.WithFields(logrus.Fields{
		"run_id":      runID,
		"statistics":  len(target),
		"data_size":   g.config.DataSize,
		"generations": g.config.NumGenerations,
	}).Info("Starting synthetic data fit")

	result, err := g.fitOnce(ctx, key, target, chain, nil, tolerance)
	if err != nil {
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"run_id":        runID,
		"fitness":       result.Fitness,
		"generations":   result.Generations,
		"stopped_early": result.StoppedEarly,
		"duration":      result.Elapsed,
	}).Info("Completed synthetic data fit")
	return result, nil
}

// FitDP measures every workload under (epsilon, delta)-DP and fits the
// measurements.
func (g *GSD) FitDP(ctx context.Context, key rng.Key, ledger *stats.Ledger, epsilon, delta float64) (*FitResult, error) {
	rho, err := privacy.CDPRho(epsilon, delta)
	if err != nil {
		return nil, errors.ErrInvalidBudget.Wrap(err)
	}
	measureKey, fitKey := key.Split2()

	start := time.Now()
	if err := ledger.MeasureAll(measureKey, rho); err != nil {
		return nil, err
	}
	g.hooks.phase(PhaseMeasure, start)

	return g.Fit(ctx, fitKey, ledger, 0)
}
