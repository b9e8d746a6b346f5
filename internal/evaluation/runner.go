package evaluation

import (
	"context"
	"time"

	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
)

// ResponseParser turns raw model text into a draft decision.
type ResponseParser interface {
	ParseResponse(text string) (*entities.DecisionDraft, string)
}

// DecisionValidator validates a draft into the final decision.
type DecisionValidator interface {
	ValidateAndFormat(ctx context.Context, draft *entities.DecisionDraft, roomID string, upstream entities.DecisionMetadata) *entities.DecisionOutput
}

const evalRoomID = "golden"

// Runner replays golden model responses through parsing and validation.
type Runner struct {
	parser    ResponseParser
	validator DecisionValidator
	spec      *entities.DeviceSpec
}

func NewRunner(parser ResponseParser, validator DecisionValidator, spec *entities.DeviceSpec) *Runner {
	return &Runner{parser: parser, validator: validator, spec: spec}
}

func (r *Runner) Run(ctx context.Context, cases []GoldenDecision) *EvalSummary {
	summary := &EvalSummary{
		TotalCases:   len(cases),
		ByDifficulty: make(map[Difficulty]*DifficultySummary),
	}

	var parsed, fallbacks, statusHits, valueChecks, valueHits, corrections int
	for _, gc := range cases {
		res := r.Evaluate(ctx, gc)

		if res.Parsed {
			parsed++
		}
		if res.Status == entities.DecisionFallback {
			fallbacks++
		}
		if res.StatusMatch {
			statusHits++
		}
		valueChecks += res.ValueChecks
		valueHits += res.ValueHits
		corrections += res.Corrections
		summary.InvariantViolations += len(res.Violations)
		summary.AvgLatency += res.Latency

		ds, ok := summary.ByDifficulty[gc.Difficulty]
		if !ok {
			ds = &DifficultySummary{}
			summary.ByDifficulty[gc.Difficulty] = ds
		}
		ds.Count++
		if res.Passed() {
			summary.PassedCases++
			ds.Passed++
		} else {
			summary.Failures = append(summary.Failures, res)
		}
	}

	summary.ParseSuccessRate = Rate(parsed, len(cases))
	summary.FallbackRate = Rate(fallbacks, len(cases))
	summary.StatusAccuracy = Rate(statusHits, len(cases))
	summary.CorrectionHitRate = Rate(valueHits, valueChecks)
	if len(cases) > 0 {
		summary.AvgCorrections = float64(corrections) / float64(len(cases))
		summary.AvgLatency /= time.Duration(len(cases))
	}
	for _, ds := range summary.ByDifficulty {
		ds.Rate = Rate(ds.Passed, ds.Count)
	}
	return summary
}

// Evaluate replays one scenario.
func (r *Runner) Evaluate(ctx context.Context, gc GoldenDecision) EvalResult {
	start := time.Now()
	draft, strategy := r.parser.ParseResponse(gc.Response)
	out := r.validator.ValidateAndFormat(ctx, draft, evalRoomID, entities.DecisionMetadata{AnalysisID: gc.ID})
	latency := time.Since(start)

	res := EvalResult{
		CaseID:         gc.ID,
		Difficulty:     gc.Difficulty,
		Status:         out.Status,
		ExpectedStatus: gc.ExpectedStatus,
		ParseStrategy:  strategy,
		Parsed:         strategy != "",
		StatusMatch:    out.Status == gc.ExpectedStatus,
		StrategyMatch:  gc.ExpectedStrategy == "" || gc.ExpectedStrategy == strategy,
		Corrections:    len(out.Metadata.Corrections),
		Violations:     InvariantViolations(out, r.spec),
		Latency:        latency,
	}
	res.ValueChecks, res.ValueHits, res.Mismatches = CompareValues(gc.ExpectedValues, out.DeviceRecommendations)
	return res
}
