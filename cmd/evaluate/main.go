package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mycogrow/growroom-advisor/internal/application/services"
	"github.com/mycogrow/growroom-advisor/internal/evaluation"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/devicespec"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/observability"
	"github.com/mycogrow/growroom-advisor/pkg/config"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-evaluate", cfg.Env, false)

	spec, err := devicespec.Load(cfg.Paths.DeviceSpec)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load device spec")
	}

	// Load Golden Decisions
	goldenPath := cfg.Paths.GoldenCases
	cases, err := evaluation.LoadGoldenDecisions(goldenPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", goldenPath).Msg("Failed to load golden decisions")
	}
	if err := evaluation.ValidateGoldenDecisions(cases, spec); err != nil {
		log.Fatal().Err(err).Msg("Invalid golden decisions")
	}

	// Responses are replayed, so no completion provider is needed
	generator := services.NewDecisionGenerator(nil, spec, services.GenerationConfig{JSONRepair: cfg.LLM.JSONRepair})
	validator := services.NewOutputValidator(spec)

	runner := evaluation.NewRunner(generator, validator, spec)
	summary := runner.Run(context.Background(), cases)

	// Output results as JSON
	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))

	if breaches := evaluation.NewGuardrails(evaluation.GuardrailConfig{}).Check(summary); len(breaches) > 0 {
		for _, b := range breaches {
			log.Error().Str("guardrail", b).Msg("evaluation guardrail breached")
		}
		os.Exit(1)
	}
}
