package evaluation

import "fmt"

type GuardrailConfig struct {
	MinParseSuccessRate  float64
	MinCorrectionHitRate float64
	MaxViolations        int
}

type Guardrails struct {
	config GuardrailConfig
}

func NewGuardrails(config GuardrailConfig) *Guardrails {
	if config.MinParseSuccessRate <= 0 {
		config.MinParseSuccessRate = 0.5
	}
	if config.MinCorrectionHitRate <= 0 {
		config.MinCorrectionHitRate = 1.0
	}
	return &Guardrails{config: config}
}

// Check returns one message per breached threshold; empty means the run passes.
func (g *Guardrails) Check(s *EvalSummary) []string {
	var breaches []string
	if s.ParseSuccessRate < g.config.MinParseSuccessRate {
		breaches = append(breaches, fmt.Sprintf("parse success rate %.2f below %.2f", s.ParseSuccessRate, g.config.MinParseSuccessRate))
	}
	if s.CorrectionHitRate < g.config.MinCorrectionHitRate {
		breaches = append(breaches, fmt.Sprintf("correction hit rate %.2f below %.2f", s.CorrectionHitRate, g.config.MinCorrectionHitRate))
	}
	if s.InvariantViolations > g.config.MaxViolations {
		breaches = append(breaches, fmt.Sprintf("%d invariant violations (max %d)", s.InvariantViolations, g.config.MaxViolations))
	}
	return breaches
}
