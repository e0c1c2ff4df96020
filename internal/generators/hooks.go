package generators

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Phase names a timed step of the search.
type Phase string

const (
	PhaseInitialize Phase = "initialize"
	PhaseAsk        Phase = "ask"
	PhaseEvaluate   Phase = "evaluate"
	PhaseTell       Phase = "tell"
	PhaseSelect     Phase = "select_measure"
	PhaseMeasure    Phase = "measure_all"
)

// Hooks receive progress from a running fit. Nil fields are skipped and
// phases are only timed when OnPhase is set.
type Hooks struct {
	OnPhase      func(phase Phase, elapsed time.Duration)
	OnGeneration func(generation int, bestFitness float64)
	OnRound      func(report RoundReport)
}

func (h *Hooks) timed() bool {
	return h != nil && h.OnPhase != nil
}

func (h *Hooks) phase(phase Phase, start time.Time) {
	if h.timed() {
		h.OnPhase(phase, time.Since(start))
	}
}

func (h *Hooks) generation(gen int, best float64) {
	if h != nil && h.OnGeneration != nil {
		h.OnGeneration(gen, best)
	}
}

func (h *Hooks) round(report RoundReport) {
	if h != nil && h.OnRound != nil {
		h.OnRound(report)
	}
}

// Merge combines hooks, calling each in order.
func Merge(hooks ...*Hooks) *Hooks {
	merged := &Hooks{}
	var phases []func(Phase, time.Duration)
	var gens []func(int, float64)
	var rounds []func(RoundReport)
	for _, h := range hooks {
		if h == nil {
			continue
		}
		if h.OnPhase != nil {
			phases = append(phases, h.OnPhase)
		}
		if h.OnGeneration != nil {
			gens = append(gens, h.OnGeneration)
		}
		if h.OnRound != nil {
			rounds = append(rounds, h.OnRound)
		}
	}
	if len(phases) > 0 {
		merged.OnPhase = func(p Phase, d time.Duration) {
			for _, f := range phases {
				f(p, d)
			}
		}
	}
	if len(gens) > 0 {
		merged.OnGeneration = func(g int, b float64) {
			for _, f := range gens {
				f(g, b)
			}
		}
	}
	if len(rounds) > 0 {
		merged.OnRound = func(r RoundReport) {
			for _, f := range rounds {
				f(r)
			}
		}
	}
	return merged
}

// LoggingHooks logs search progress at debug level every `every`
// generations and each finished round at info level.
func LoggingHooks(logger *logrus.Logger, every int) *Hooks {
	if every < 1 {
		every = 1
	}
	return &Hooks{
		OnGeneration: func(gen int, best float64) {
			if gen%every == 0 {
				logger.WithFields(logrus.Fields{
					"generation": gen,
					"fitness":    best,
				}).Debug("Search progress")
			}
		},
		OnRound: func(r RoundReport) {
			logger.WithFields(logrus.Fields{
				"round":     r.Round,
				"workload":  r.Workload,
				"max_error": r.Errors.MaxError,
			}).Info("Round finished")
		},
	}
}
