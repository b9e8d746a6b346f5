package evaluation_test

import (
	"context"
	"testing"

	"github.com/mycogrow/growroom-advisor/internal/application/services"
	"github.com/mycogrow/growroom-advisor/internal/evaluation"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/devicespec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunner(t *testing.T) (*evaluation.Runner, []evaluation.GoldenDecision) {
	t.Helper()
	spec, err := devicespec.Load("../../config/device_capabilities.yaml")
	require.NoError(t, err)

	cases, err := evaluation.LoadGoldenDecisions("../../config/golden_decisions.json")
	require.NoError(t, err)
	require.NoError(t, evaluation.ValidateGoldenDecisions(cases, spec))

	generator := services.NewDecisionGenerator(nil, spec, services.GenerationConfig{})
	return evaluation.NewRunner(generator, services.NewOutputValidator(spec), spec), cases
}

func TestRunner_GoldenDecisionsAllPass(t *testing.T) {
	runner, cases := newRunner(t)

	summary := runner.Run(context.Background(), cases)

	for _, f := range summary.Failures {
		t.Errorf("case %s failed: status=%s want %s, strategy=%q, mismatches=%v, violations=%v",
			f.CaseID, f.Status, f.ExpectedStatus, f.ParseStrategy, f.Mismatches, f.Violations)
	}
	assert.Equal(t, len(cases), summary.PassedCases)
	assert.Zero(t, summary.InvariantViolations)
	assert.InDelta(t, 1.0, summary.CorrectionHitRate, 1e-9)
	assert.InDelta(t, 1.0, summary.StatusAccuracy, 1e-9)
	assert.Empty(t, evaluation.NewGuardrails(evaluation.GuardrailConfig{}).Check(summary))
}

func TestRunner_Rates(t *testing.T) {
	runner, _ := newRunner(t)
	cases := []evaluation.GoldenDecision{
		{ID: "prose", Response: "no decision today", ExpectedStatus: "fallback", Difficulty: evaluation.DifficultyEasy},
		{ID: "wrong-expectation", Response: "still nothing", ExpectedStatus: "success", Difficulty: evaluation.DifficultyHard},
	}

	summary := runner.Run(context.Background(), cases)

	assert.Equal(t, 2, summary.TotalCases)
	assert.Equal(t, 1, summary.PassedCases)
	assert.InDelta(t, 0.0, summary.ParseSuccessRate, 1e-9)
	assert.InDelta(t, 1.0, summary.FallbackRate, 1e-9)
	assert.InDelta(t, 0.5, summary.StatusAccuracy, 1e-9)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "wrong-expectation", summary.Failures[0].CaseID)
	assert.Equal(t, 1, summary.ByDifficulty[evaluation.DifficultyEasy].Passed)
	assert.Equal(t, 0, summary.ByDifficulty[evaluation.DifficultyHard].Passed)
}

func TestRunner_EmptyRun(t *testing.T) {
	runner, _ := newRunner(t)

	summary := runner.Run(context.Background(), nil)

	assert.Zero(t, summary.TotalCases)
	assert.Zero(t, summary.ParseSuccessRate)
	assert.Empty(t, summary.Failures)
}
