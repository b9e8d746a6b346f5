package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type pipelineMetrics struct {
	dbQueryDuration metric.Float64Histogram
	dbQueryErrors   metric.Int64Counter
	stepDuration    metric.Float64Histogram
	stepDegraded    metric.Int64Counter
	decisionStatus  metric.Int64Counter
	corrections     metric.Int64Counter
	llmRequests     metric.Int64Counter
	llmDuration     metric.Float64Histogram
	llmErrors       metric.Int64Counter
	llmTokens       metric.Int64Counter
}

var (
	metricsOnce sync.Once
	metricsOK   bool
	metrics     pipelineMetrics
)

func ensureMetrics() bool {
	metricsOnce.Do(func() {
		meter := otel.Meter(instrumentationName)
		var err error

		if metrics.dbQueryDuration, err = meter.Float64Histogram(
			"db.query.duration",
			metric.WithDescription("Database query duration in milliseconds"),
			metric.WithUnit("ms"),
		); err != nil {
			return
		}
		if metrics.dbQueryErrors, err = meter.Int64Counter(
			"db.query.errors",
			metric.WithDescription("Number of failed database queries"),
		); err != nil {
			return
		}
		if metrics.stepDuration, err = meter.Float64Histogram(
			"pipeline.step.duration",
			metric.WithDescription("Decision pipeline step duration in milliseconds"),
			metric.WithUnit("ms"),
		); err != nil {
			return
		}
		if metrics.stepDegraded, err = meter.Int64Counter(
			"pipeline.step.degraded",
			metric.WithDescription("Number of pipeline steps that continued with degraded input"),
		); err != nil {
			return
		}
		if metrics.decisionStatus, err = meter.Int64Counter(
			"decision.status",
			metric.WithDescription("Number of decisions by final status"),
		); err != nil {
			return
		}
		if metrics.corrections, err = meter.Int64Counter(
			"decision.corrections",
			metric.WithDescription("Number of automatic corrections applied by output validation"),
		); err != nil {
			return
		}
		if metrics.llmRequests, err = meter.Int64Counter(
			"ai.llm.request.count",
			metric.WithDescription("Number of LLM completion requests"),
		); err != nil {
			return
		}
		if metrics.llmDuration, err = meter.Float64Histogram(
			"ai.llm.request.duration",
			metric.WithDescription("LLM request duration in milliseconds"),
			metric.WithUnit("ms"),
		); err != nil {
			return
		}
		if metrics.llmErrors, err = meter.Int64Counter(
			"ai.llm.request.errors",
			metric.WithDescription("Number of LLM request errors"),
		); err != nil {
			return
		}
		if metrics.llmTokens, err = meter.Int64Counter(
			"ai.llm.tokens",
			metric.WithDescription("Tokens reported by the LLM endpoint"),
		); err != nil {
			return
		}
		metricsOK = true
	})
	return metricsOK
}

// RecordDBQuery records a storage read
func RecordDBQuery(ctx context.Context, operation string, duration time.Duration, err error) {
	if !ensureMetrics() {
		return
	}
	attrs := metric.WithAttributes(attribute.String("db.operation", operation))
	metrics.dbQueryDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		metrics.dbQueryErrors.Add(ctx, 1, attrs)
	}
}

// RecordStep records one pipeline state transition
func RecordStep(ctx context.Context, state string, duration time.Duration, degraded bool) {
	if !ensureMetrics() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("pipeline.state", state),
		attribute.Bool("pipeline.degraded", degraded),
	)
	metrics.stepDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if degraded {
		metrics.stepDegraded.Add(ctx, 1, metric.WithAttributes(attribute.String("pipeline.state", state)))
	}
}

// RecordDecision counts a finished analysis by status
func RecordDecision(ctx context.Context, roomID, status string) {
	if !ensureMetrics() {
		return
	}
	metrics.decisionStatus.Add(ctx, 1, metric.WithAttributes(
		attribute.String("room.id", roomID),
		attribute.String("decision.status", status),
	))
}

// RecordCorrections counts corrections applied to one device
func RecordCorrections(ctx context.Context, device string, n int) {
	if n <= 0 || !ensureMetrics() {
		return
	}
	metrics.corrections.Add(ctx, int64(n), metric.WithAttributes(attribute.String("device.type", device)))
}

// RecordLLMRequest records one completion call
func RecordLLMRequest(ctx context.Context, model string, statusCode int, duration time.Duration, promptTokens, outputTokens int, err error) {
	if !ensureMetrics() {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("ai.model", model),
	}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", statusCode))
	}
	opt := metric.WithAttributes(attrs...)

	metrics.llmRequests.Add(ctx, 1, opt)
	metrics.llmDuration.Record(ctx, float64(duration.Milliseconds()), opt)
	if err != nil {
		metrics.llmErrors.Add(ctx, 1, opt)
	}
	if promptTokens > 0 {
		metrics.llmTokens.Add(ctx, int64(promptTokens), metric.WithAttributes(attribute.String("ai.model", model), attribute.String("ai.token.kind", "prompt")))
	}
	if outputTokens > 0 {
		metrics.llmTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(attribute.String("ai.model", model), attribute.String("ai.token.kind", "output")))
	}
}
