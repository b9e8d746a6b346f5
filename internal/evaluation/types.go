package evaluation

import (
	"time"

	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
)

// Difficulty grades how hard a golden scenario is for the parser and validator.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// IsValid checks if the difficulty value is one of the defined constants.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// GoldenDecision is a recorded model response with the decision it must validate into.
type GoldenDecision struct {
	ID             string                  `json:"id"`
	Description    string                  `json:"description"`
	Response       string                  `json:"response"`
	ExpectedStatus entities.DecisionStatus `json:"expected_status"`
	// ExpectedStrategy is the parse strategy name; empty skips the check.
	ExpectedStrategy string `json:"expected_strategy,omitempty"`
	// ExpectedValues maps device -> field -> value after validation; null means no change.
	ExpectedValues map[string]map[string]*float64 `json:"expected_values"`
	Difficulty     Difficulty                     `json:"difficulty"`
}

// EvalResult holds the evaluation outcome for a single scenario.
type EvalResult struct {
	CaseID         string                  `json:"case_id"`
	Difficulty     Difficulty              `json:"difficulty"`
	Status         entities.DecisionStatus `json:"status"`
	ExpectedStatus entities.DecisionStatus `json:"expected_status"`
	ParseStrategy  string                  `json:"parse_strategy,omitempty"`
	Parsed         bool                    `json:"parsed"`
	StatusMatch    bool                    `json:"status_match"`
	StrategyMatch  bool                    `json:"strategy_match"`
	ValueChecks    int                     `json:"value_checks"`
	ValueHits      int                     `json:"value_hits"`
	Mismatches     []string                `json:"mismatches,omitempty"`
	Corrections    int                     `json:"corrections"`
	Violations     []string                `json:"violations,omitempty"`
	Latency        time.Duration           `json:"latency_ns"`
}

// Passed reports whether every expectation of the scenario held.
func (r EvalResult) Passed() bool {
	return r.StatusMatch && r.StrategyMatch && r.ValueHits == r.ValueChecks && len(r.Violations) == 0
}

// EvalSummary holds aggregate metrics across all golden scenarios.
type EvalSummary struct {
	TotalCases          int                               `json:"total_cases"`
	PassedCases         int                               `json:"passed_cases"`
	ParseSuccessRate    float64                           `json:"parse_success_rate"`
	FallbackRate        float64                           `json:"fallback_rate"`
	StatusAccuracy      float64                           `json:"status_accuracy"`
	CorrectionHitRate   float64                           `json:"correction_hit_rate"`
	AvgCorrections      float64                           `json:"avg_corrections"`
	InvariantViolations int                               `json:"invariant_violations"`
	AvgLatency          time.Duration                     `json:"avg_latency_ns"`
	ByDifficulty        map[Difficulty]*DifficultySummary `json:"by_difficulty"`
	Failures            []EvalResult                      `json:"failures,omitempty"`
}

// DifficultySummary holds metrics grouped by difficulty.
type DifficultySummary struct {
	Count  int     `json:"count"`
	Passed int     `json:"passed"`
	Rate   float64 `json:"pass_rate"`
}
