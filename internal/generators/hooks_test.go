package generators

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/gsd/internal/stats"
)

func TestMergeCallsEveryHookInOrder(t *testing.T) {
	var calls []string
	first := &Hooks{
		OnPhase:      func(Phase, time.Duration) { calls = append(calls, "phase-1") },
		OnGeneration: func(int, float64) { calls = append(calls, "gen-1") },
	}
	second := &Hooks{
		OnGeneration: func(int, float64) { calls = append(calls, "gen-2") },
		OnRound:      func(RoundReport) { calls = append(calls, "round-2") },
	}

	merged := Merge(first, nil, second)
	merged.phase(PhaseAsk, time.Now())
	merged.generation(1, 0.5)
	merged.round(RoundReport{Round: 1})

	assert.Equal(t, []string{"phase-1", "gen-1", "gen-2", "round-2"}, calls)

	empty := Merge(nil)
	assert.Nil(t, empty.OnPhase)
	assert.False(t, empty.timed())
}

func TestLoggingHooks(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	h := LoggingHooks(logger, 10)
	for gen := 1; gen <= 25; gen++ {
		h.generation(gen, 1/float64(gen))
	}
	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, 20, hook.LastEntry().Data["generation"])

	hook.Reset()
	h.round(RoundReport{Round: 3, Workload: "a,b", Errors: stats.ErrorReport{MaxError: 0.2}})
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, "a,b", hook.LastEntry().Data["workload"])
}
