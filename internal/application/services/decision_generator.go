package services

import (
	"context"
	"fmt"
	"time"

	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
	"github.com/mycogrow/growroom-advisor/internal/domain/providers"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/observability"
)

// ManualReviewWarning is attached to every fallback decision.
const ManualReviewWarning = "automatic decision unavailable; all setpoints left unchanged, manual review recommended"

// GenerationConfig controls the completion request.
type GenerationConfig struct {
	Temperature float64
	MaxTokens   int
	JSONRepair  bool
}

// GeneratedDecision is the outcome of one LLM round trip. Draft is never nil.
type GeneratedDecision struct {
	Draft         *entities.DecisionDraft
	ParseStrategy string
	Model         string
	Latency       time.Duration
	RawText       string
	FinishReason  string
}

// DecisionGenerator calls the language model and parses its answer into a draft.
// Every failure becomes a fallback draft.
type DecisionGenerator struct {
	provider   providers.CompletionProvider
	spec       *entities.DeviceSpec
	cfg        GenerationConfig
	strategies []ParseStrategy
}

// NewDecisionGenerator creates a new decision generator
func NewDecisionGenerator(provider providers.CompletionProvider, spec *entities.DeviceSpec, cfg GenerationConfig) *DecisionGenerator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &DecisionGenerator{
		provider:   provider,
		spec:       spec,
		cfg:        cfg,
		strategies: DefaultParseStrategies(cfg.JSONRepair),
	}
}

// GenerateDecision sends the prompt once and parses the reply.
func (g *DecisionGenerator) GenerateDecision(ctx context.Context, prompt string) *GeneratedDecision {
	logger := observability.LoggerFromContext(ctx)
	result := &GeneratedDecision{}
	if g.provider != nil {
		result.Model = g.provider.Model()
	}

	if g.provider == nil {
		result.Draft = FallbackDraft(g.spec, "no language model configured")
		return result
	}

	start := time.Now()
	resp, err := g.provider.Complete(ctx, providers.CompletionRequest{
		Prompt:      prompt,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	result.Latency = time.Since(start)
	if err != nil {
		logger.Error().Err(err).
			Str("model", result.Model).
			Dur("latency", result.Latency).
			Msg("llm request failed, using fallback decision")
		result.Draft = FallbackDraft(g.spec, fmt.Sprintf("llm request failed: %v", err))
		return result
	}

	result.RawText = resp.Text
	result.FinishReason = resp.FinishReason
	if resp.Model != "" {
		result.Model = resp.Model
	}

	draft, strategy := g.ParseResponse(resp.Text)
	result.Draft = draft
	result.ParseStrategy = strategy

	if draft.Origin == entities.DecisionFallback {
		ev := logger.Warn().
			Str("model", result.Model).
			Int("response_chars", len(resp.Text))
		if resp.FinishReason == "length" {
			ev = ev.Str("finish_reason", resp.FinishReason)
		}
		ev.Msg("llm response could not be parsed, using fallback decision")
		return result
	}

	logger.Debug().
		Str("model", result.Model).
		Str("parse_strategy", strategy).
		Dur("latency", result.Latency).
		Msg("llm decision parsed")
	return result
}

// ParseResponse runs the parse strategies over raw model text.
func (g *DecisionGenerator) ParseResponse(text string) (*entities.DecisionDraft, string) {
	obj, strategy, ok := ParseWithStrategies(text, g.strategies)
	if !ok {
		return FallbackDraft(g.spec, "llm response is not parseable JSON"), ""
	}
	draft := entities.DraftFromMap(obj)
	if strategy != "direct_json" {
		draft.Warnings = append(draft.Warnings, fmt.Sprintf("llm response parsed with %s strategy", strategy))
	}
	return draft, strategy
}

// FallbackDraft is the conservative "change nothing" decision: every device
// capability field is present with a nil value.
func FallbackDraft(spec *entities.DeviceSpec, reason string) *entities.DecisionDraft {
	devices := make(map[string]entities.DeviceDraft)
	if spec != nil {
		for _, dev := range spec.Devices() {
			values := make(map[string]any, len(dev.Fields))
			for _, f := range dev.Fields {
				values[f.Name] = nil
			}
			devices[dev.Type] = entities.DeviceDraft{
				Values:    values,
				Rationale: []string{"keep current settings until the decision can be reviewed"},
			}
		}
	}

	return &entities.DecisionDraft{
		Origin:         entities.DecisionFallback,
		FallbackReason: reason,
		Strategy: &entities.ControlStrategy{
			CoreObjective: "Hold all current setpoints; no automatic decision could be produced",
			Priorities:    []string{"stability", "manual review"},
			RiskPoints:    []string{reason},
		},
		DeviceRecommendations: devices,
		MonitoringPlan: &entities.MonitoringPlan{
			KeyTimeWindows:    []string{"until the next successful analysis"},
			WarningThresholds: map[string]entities.ThresholdRange{},
			EmergencyActions:  []string{"have an operator review room conditions and device settings"},
		},
		Warnings: []string{ManualReviewWarning},
	}
}
