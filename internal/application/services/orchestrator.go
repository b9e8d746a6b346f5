package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/observability"
	"go.opentelemetry.io/otel/attribute"
)

// AnalysisConfig holds the windows and limits of one analysis.
type AnalysisConfig struct {
	DateWindowDays       int
	GrowthDayWindow      int
	EnvStatsDaysRange    int
	DeviceChangeLookback time.Duration
	TopK                 int
	// DeviceTypes limits device-change history; empty means all.
	DeviceTypes []string
}

// DefaultAnalysisConfig returns 7 days / 3 growth days / 1 stats day / 7 days of changes / top 3.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		DateWindowDays:       7,
		GrowthDayWindow:      3,
		EnvStatsDaysRange:    1,
		DeviceChangeLookback: 7 * 24 * time.Hour,
		TopK:                 3,
	}
}

// analysis is the state carried between pipeline steps.
type analysis struct {
	roomID string
	at     time.Time

	current  *entities.CurrentStateRecord
	envStats []*entities.EnvStatsRecord
	changes  []*entities.DeviceChangeRecord
	cases    []*entities.SimilarCase
	prompt   string
	decision *GeneratedDecision
	output   *entities.DecisionOutput

	meta entities.DecisionMetadata
}

func (a *analysis) promptInput() PromptInput {
	return PromptInput{
		RoomID:        a.roomID,
		AnalysisTime:  a.at,
		Current:       a.current,
		EnvStats:      a.envStats,
		DeviceChanges: a.changes,
		SimilarCases:  a.cases,
		Warnings:      a.meta.Warnings,
	}
}

// pipelineStep is one state of the machine. run reports whether it finished
// with degraded input; onFailure supplies the input the next state continues with.
type pipelineStep struct {
	state     entities.AnalysisState
	run       func(ctx context.Context, a *analysis) (degraded bool, err error)
	onFailure func(ctx context.Context, a *analysis, err error)
}

// DecisionOrchestrator runs extracting → matching → rendering → generating →
// validating → done for one room and always returns a decision.
type DecisionOrchestrator struct {
	extractor *DataExtractor
	matcher   *CaseMatcher
	renderer  *PromptRenderer
	generator *DecisionGenerator
	validator *OutputValidator
	spec      *entities.DeviceSpec
	cfg       AnalysisConfig

	steps []pipelineStep
	now   func() time.Time
	newID func() string
}

// NewDecisionOrchestrator wires the pipeline components.
func NewDecisionOrchestrator(
	extractor *DataExtractor,
	matcher *CaseMatcher,
	renderer *PromptRenderer,
	generator *DecisionGenerator,
	validator *OutputValidator,
	spec *entities.DeviceSpec,
	cfg AnalysisConfig,
) *DecisionOrchestrator {
	o := &DecisionOrchestrator{
		extractor: extractor,
		matcher:   matcher,
		renderer:  renderer,
		generator: generator,
		validator: validator,
		spec:      spec,
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	o.steps = []pipelineStep{
		{state: entities.StateExtracting, run: o.extract, onFailure: o.extractFailed},
		{state: entities.StateMatching, run: o.match, onFailure: o.matchFailed},
		{state: entities.StateRendering, run: o.render, onFailure: o.renderFailed},
		{state: entities.StateGenerating, run: o.generate, onFailure: o.generateFailed},
		{state: entities.StateValidating, run: o.validate, onFailure: o.validateFailed},
	}
	return o
}

// Analyze produces a decision for roomID at the given time. It never returns nil
// and never panics; failures are recorded in the decision metadata.
func (o *DecisionOrchestrator) Analyze(ctx context.Context, roomID string, at time.Time) *entities.DecisionOutput {
	started := o.now()
	ctx, span := observability.StartSpan(ctx, "decision.analyze",
		attribute.String("room.id", roomID),
		attribute.String("analysis.time", at.Format(time.RFC3339)),
	)
	defer span.End()

	a := &analysis{
		roomID: roomID,
		at:     at,
		meta: entities.DecisionMetadata{
			AnalysisID:   o.newID(),
			RoomID:       roomID,
			AnalysisTime: at,
			Warnings:     []string{},
			Errors:       []string{},
		},
	}
	if o.spec != nil {
		a.meta.DeviceSpecVersion = o.spec.Version
	}

	logger := observability.LoggerFromContext(ctx).With().
		Str("room_id", roomID).
		Str("analysis_id", a.meta.AnalysisID).
		Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Time("analysis_time", at).Msg("decision analysis started")

	for _, step := range o.steps {
		o.runStep(ctx, a, step)
	}

	out := a.output
	if out == nil {
		out = o.errorOutput(a, "validation produced no decision")
	}
	out.Metadata.GeneratedAt = o.now()
	out.Metadata.TotalLatencyMs = out.Metadata.GeneratedAt.Sub(started).Milliseconds()
	out.Metadata.Steps = append(out.Metadata.Steps, entities.StepOutcome{State: entities.StateDone, OK: true})

	observability.RecordDecision(ctx, roomID, string(out.Status))
	span.SetAttributes(attribute.String("decision.status", string(out.Status)))

	logger.Info().
		Str("status", string(out.Status)).
		Int("changed_parameters", out.ChangedParameters()).
		Int("warnings", len(out.Metadata.Warnings)).
		Int("errors", len(out.Metadata.Errors)).
		Int64("total_latency_ms", out.Metadata.TotalLatencyMs).
		Msg("decision analysis finished")
	return out
}

func (o *DecisionOrchestrator) runStep(ctx context.Context, a *analysis, step pipelineStep) {
	ctx, span := observability.StartSpan(ctx, "decision."+string(step.state))
	defer span.End()
	logger := observability.LoggerFromContext(ctx).With().Str("state", string(step.state)).Logger()

	start := o.now()
	degraded, err := o.safeRun(ctx, a, step)
	outcome := entities.StepOutcome{State: step.state, OK: err == nil, Degraded: degraded || err != nil}

	if err != nil {
		observability.RecordError(span, err)
		logger.Error().Err(err).Msg("pipeline step failed, continuing with degraded input")
		a.meta.AddError(fmt.Sprintf("%s: %v", step.state, err))
		outcome.Error = err.Error()
		o.safeRecover(ctx, a, step, err)
	} else if degraded {
		logger.Warn().Msg("pipeline step degraded")
	}

	outcome.DurationMs = o.now().Sub(start).Milliseconds()
	observability.RecordStep(ctx, string(step.state), time.Duration(outcome.DurationMs)*time.Millisecond, outcome.Degraded)
	span.SetAttributes(attribute.Bool("pipeline.degraded", outcome.Degraded))

	if a.output != nil && step.state == entities.StateValidating {
		a.output.Metadata.Steps = append(a.output.Metadata.Steps, outcome)
		return
	}
	a.meta.Steps = append(a.meta.Steps, outcome)
}

func (o *DecisionOrchestrator) safeRun(ctx context.Context, a *analysis, step pipelineStep) (degraded bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			observability.LoggerFromContext(ctx).Error().
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("pipeline step panicked")
			degraded, err = true, fmt.Errorf("panic: %v", r)
		}
	}()
	return step.run(ctx, a)
}

func (o *DecisionOrchestrator) safeRecover(ctx context.Context, a *analysis, step pipelineStep, cause error) {
	defer func() {
		if r := recover(); r != nil {
			observability.LoggerFromContext(ctx).Error().Str("panic", fmt.Sprint(r)).Msg("degradation handler panicked")
			a.meta.AddError(fmt.Sprintf("%s: degradation failed: %v", step.state, r))
		}
	}()
	step.onFailure(ctx, a, cause)
}

func (o *DecisionOrchestrator) extract(ctx context.Context, a *analysis) (bool, error) {
	current, currentReport := o.extractor.ExtractCurrentState(ctx, a.roomID, a.at, o.cfg.DateWindowDays, o.cfg.GrowthDayWindow)
	a.current = current
	a.meta.AddWarning(currentReport.Warnings...)
	a.meta.DataSources.CurrentStateFound = current != nil
	a.meta.DataSources.WindowCandidates = currentReport.Candidates

	stats, statsReport := o.extractor.ExtractEnvStats(ctx, a.roomID, a.at, o.cfg.EnvStatsDaysRange)
	a.envStats = stats
	a.meta.AddWarning(statsReport.Warnings...)
	a.meta.DataSources.EnvStatsRecords = len(stats)

	changes, changesReport := o.extractor.ExtractDeviceChanges(ctx, a.roomID, a.at.Add(-o.cfg.DeviceChangeLookback), a.at, o.cfg.DeviceTypes)
	a.changes = changes
	a.meta.AddWarning(changesReport.Warnings...)
	a.meta.DataSources.DeviceChanges = len(changes)

	a.meta.AddWarning(ValidateEnvParams(current, stats)...)
	return current == nil, nil
}

func (o *DecisionOrchestrator) extractFailed(_ context.Context, a *analysis, _ error) {
	a.current, a.envStats, a.changes = nil, nil, nil
	a.meta.DataSources = entities.DataSourceCounts{}
}

func (o *DecisionOrchestrator) match(ctx context.Context, a *analysis) (bool, error) {
	if !a.current.HasEmbedding() {
		a.meta.AddWarning("similar cases skipped: no current embedding available")
		return true, nil
	}
	at := a.at
	cases, warnings := o.matcher.FindSimilarCases(ctx, CaseQuery{
		Embedding:       a.current.Embedding.Slice(),
		RoomID:          a.roomID,
		EntryDate:       a.current.EntryDate,
		GrowthDay:       a.current.GrowthDay,
		TopK:            o.cfg.TopK,
		DateWindowDays:  o.cfg.DateWindowDays,
		GrowthDayWindow: o.cfg.GrowthDayWindow,
		CollectedBefore: &at,
		ExcludeRecordID: a.current.ID,
	})
	a.cases = cases
	a.meta.AddWarning(warnings...)
	a.meta.DataSources.SimilarCases = len(cases)
	a.meta.AvgSimilarity = AverageSimilarity(cases)
	return len(cases) == 0, nil
}

func (o *DecisionOrchestrator) matchFailed(_ context.Context, a *analysis, _ error) {
	a.cases = nil
	a.meta.DataSources.SimilarCases = 0
	a.meta.AvgSimilarity = 0
}

func (o *DecisionOrchestrator) render(ctx context.Context, a *analysis) (bool, error) {
	prompt, err := o.renderer.Render(ctx, a.promptInput())
	if err != nil {
		return true, err
	}
	a.prompt = prompt
	return false, nil
}

func (o *DecisionOrchestrator) renderFailed(_ context.Context, a *analysis, _ error) {
	a.prompt = o.renderer.RenderSimplified(a.promptInput())
	a.meta.AddWarning("full prompt could not be rendered; simplified prompt used")
}

func (o *DecisionOrchestrator) generate(ctx context.Context, a *analysis) (bool, error) {
	d := o.generator.GenerateDecision(ctx, a.prompt)
	a.decision = d
	a.meta.LLMModel = d.Model
	a.meta.LLMLatencyMs = d.Latency.Milliseconds()
	a.meta.LLMStatus = d.Draft.Origin
	if d.Draft.Origin == entities.DecisionFallback {
		a.meta.FallbackReason = d.Draft.FallbackReason
		return true, nil
	}
	return false, nil
}

func (o *DecisionOrchestrator) generateFailed(_ context.Context, a *analysis, err error) {
	reason := fmt.Sprintf("decision generation failed: %v", err)
	a.decision = &GeneratedDecision{Draft: FallbackDraft(o.spec, reason)}
	a.meta.LLMStatus = entities.DecisionFallback
	a.meta.FallbackReason = reason
}

func (o *DecisionOrchestrator) validate(ctx context.Context, a *analysis) (bool, error) {
	var draft *entities.DecisionDraft
	if a.decision != nil {
		draft = a.decision.Draft
	}
	a.output = o.validator.ValidateAndFormat(ctx, draft, a.roomID, a.meta)
	return a.output.Status != entities.DecisionSuccess, nil
}

// validateFailed keeps the central contract when validation itself breaks:
// nothing unvalidated is passed on, every parameter becomes "no change".
func (o *DecisionOrchestrator) validateFailed(_ context.Context, a *analysis, err error) {
	reason := fmt.Sprintf("output validation failed: %v", err)
	a.meta.FallbackReason = reason
	a.meta.AddWarning(ManualReviewWarning)
	a.output = o.noChangeOutput(a, entities.DecisionFallback)
}

func (o *DecisionOrchestrator) errorOutput(a *analysis, msg string) *entities.DecisionOutput {
	a.meta.AddError(msg)
	return o.noChangeOutput(a, entities.DecisionError)
}

func (o *DecisionOrchestrator) noChangeOutput(a *analysis, status entities.DecisionStatus) *entities.DecisionOutput {
	recs := make(map[string]entities.RecommendationBlock)
	if o.spec != nil {
		for _, dev := range o.spec.Devices() {
			params := make(map[string]*float64, len(dev.Fields))
			for _, f := range dev.Fields {
				params[f.Name] = nil
			}
			recs[dev.Type] = entities.RecommendationBlock{Parameters: params, Rationale: []string{}}
		}
	}
	return &entities.DecisionOutput{
		Status:                status,
		RoomID:                a.roomID,
		DeviceRecommendations: recs,
		Strategy: entities.ControlStrategy{
			CoreObjective: "Hold all current setpoints; no validated decision could be produced",
			Priorities:    []string{"stability", "manual review"},
			RiskPoints:    []string{},
		},
		MonitoringPlan: entities.MonitoringPlan{
			KeyTimeWindows:    []string{},
			WarningThresholds: map[string]entities.ThresholdRange{},
			EmergencyActions:  []string{"have an operator review room conditions and device settings"},
		},
		Metadata: a.meta,
	}
}
