package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mycogrow/growroom-advisor/internal/adapters/cache"
	"github.com/mycogrow/growroom-advisor/internal/adapters/database"
	"github.com/mycogrow/growroom-advisor/internal/adapters/events"
	"github.com/mycogrow/growroom-advisor/internal/application/services"
	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
	"github.com/mycogrow/growroom-advisor/internal/domain/providers"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/clients/llm"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/clients/postgres"
	redisclient "github.com/mycogrow/growroom-advisor/internal/infrastructure/clients/redis"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/devicespec"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/observability"
	"github.com/mycogrow/growroom-advisor/pkg/config"
	"github.com/mycogrow/growroom-advisor/pkg/secrets"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type options struct {
	roomID    string
	datetime  string
	output    string
	verbose   bool
	noConsole bool
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "run-decision-analysis",
		Short: "Produce a validated climate-control decision for one growing room",
		Example: `  run-decision-analysis --room-id 611
  run-decision-analysis --room-id 611 --datetime "2024-11-20 10:00:00" --output decision.json
  run-decision-analysis --room-id 611 --datetime 2024-11-20T10:00:00+08:00 --no-console`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.roomID, "room-id", "", "Room to analyze (required)")
	cmd.Flags().StringVar(&opts.datetime, "datetime", "", `Analysis time: RFC3339, "2006-01-02 15:04:05" or "2006-01-02" (default now)`)
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the decision JSON to this file instead of stdout")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.Flags().BoolVar(&opts.noConsole, "no-console", false, "Do not print the console summary")
	_ = cmd.MarkFlagRequired("room-id")

	return cmd
}

var dateTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"}

// parseDateTime reads the --datetime flag; layouts without a zone use local time.
func parseDateTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --datetime %q: use RFC3339, \"2006-01-02 15:04:05\" or \"2006-01-02\"", s)
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	roomID := strings.TrimSpace(opts.roomID)
	if roomID == "" {
		return fmt.Errorf("--room-id must not be empty")
	}
	at, err := parseDateTime(opts.datetime, time.Now())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	vault, err := secrets.ApplyVaultSecrets(ctx, secrets.LoadVaultConfigFromEnv())
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Env, opts.verbose)
	if vault.Loaded > 0 {
		log.Debug().Int("loaded", vault.Loaded).Int("skipped", vault.Skipped).Msg("secrets loaded from vault")
	}

	shutdown, err := observability.Setup(ctx, &cfg.OTEL)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("OpenTelemetry shutdown failed")
		}
	}()

	spec, err := devicespec.Load(cfg.Paths.DeviceSpec)
	if err != nil {
		return err
	}
	template, err := services.LoadPromptTemplate(cfg.Paths.PromptTemplate)
	if err != nil {
		return err
	}

	pgClient, err := postgres.NewClient(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer pgClient.Close()

	llmClient, err := llm.NewClient(&cfg.LLM)
	if err != nil {
		return err
	}

	orchestrator := newOrchestrator(cfg, spec, template, pgClient, llmClient)
	out := orchestrator.Analyze(ctx, roomID, at)

	if cfg.Redis.Enabled {
		publishDecision(ctx, &cfg.Redis, out)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}
	data = append(data, '\n')

	if opts.output != "" {
		if err := os.WriteFile(opts.output, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.output, err)
		}
		log.Info().Str("path", opts.output).Msg("decision written")
	} else if _, err := stdout.Write(data); err != nil {
		return fmt.Errorf("failed to write decision: %w", err)
	}

	if !opts.noConsole {
		printSummary(stderr, out, spec)
	}
	return nil
}

func newOrchestrator(cfg *config.Config, spec *entities.DeviceSpec, template string, pgClient *postgres.Client, llmClient *llm.Client) *services.DecisionOrchestrator {
	a := cfg.Analysis

	// Setup repos
	embeddingRepo := database.NewEmbeddingAdapter(pgClient)
	envStatsRepo := database.NewEnvStatsAdapter(pgClient)
	changeRepo := database.NewDeviceChangeAdapter(pgClient)

	// Setup services
	extractor := services.NewDataExtractor(embeddingRepo, envStatsRepo, changeRepo, services.TrendThresholds{
		Temperature: a.TemperatureTrendPct,
		Humidity:    a.HumidityTrendPct,
		CO2:         a.CO2TrendPct,
	})
	matcher := services.NewCaseMatcher(embeddingRepo, services.ConfidenceBands{High: a.HighConfidence, Low: a.LowConfidence})
	renderer := services.NewPromptRenderer(spec, template)
	generator := services.NewDecisionGenerator(llmClient, spec, services.GenerationConfig{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		JSONRepair:  cfg.LLM.JSONRepair,
	})
	validator := services.NewOutputValidator(spec)

	return services.NewDecisionOrchestrator(extractor, matcher, renderer, generator, validator, spec, analysisConfig(a))
}

func analysisConfig(a config.AnalysisConfig) services.AnalysisConfig {
	return services.AnalysisConfig{
		DateWindowDays:       a.DateWindowDays,
		GrowthDayWindow:      a.GrowthDayWindow,
		EnvStatsDaysRange:    a.EnvStatsDaysRange,
		DeviceChangeLookback: a.DeviceChangeLookback,
		TopK:                 a.TopK,
		DeviceTypes:          a.DeviceTypes,
	}
}

// publishDecision stores the decision as the room's latest and announces it on
// the decision channels. Failures only log.
func publishDecision(ctx context.Context, cfg *config.RedisConfig, out *entities.DecisionOutput) {
	client, err := redisclient.NewClient(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, decision not published")
		return
	}
	defer client.Close()

	store := cache.NewDecisionStore(cache.NewRedisAdapter(client), cfg.DecisionTTL)
	if err := store.SaveLatest(ctx, out); err != nil {
		log.Warn().Err(err).Str("room_id", out.RoomID).Msg("failed to store decision")
		return
	}

	bus := events.NewRedisEventBus(client)
	defer bus.Close()

	event := entities.NewDecisionEvent(out)
	for _, channel := range []string{providers.EventChannelDecisions, providers.GetRoomChannel(out.RoomID)} {
		if err := bus.Publish(ctx, channel, event); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("failed to publish decision event")
		}
	}
	log.Debug().Str("room_id", out.RoomID).Str("event_id", event.ID).Msg("decision published")
}
