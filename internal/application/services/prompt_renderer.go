package services

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/observability"
	apperrors "github.com/mycogrow/growroom-advisor/pkg/errors"
)

// MissingMarker fills every slot whose underlying value is absent.
const MissingMarker = "[data missing]"

const (
	maxSimilarCaseSlots = 3
	maxChangeLines      = 20
	promptTimeLayout    = "2006-01-02 15:04"
)

//go:embed templates/decision_prompt.txt
var defaultPromptTemplate string

// DefaultPromptTemplate returns the built-in decision prompt.
func DefaultPromptTemplate() string {
	return defaultPromptTemplate
}

// LoadPromptTemplate reads a template override, or returns the built-in one for an empty path.
func LoadPromptTemplate(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return defaultPromptTemplate, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperrors.NewConfigError(fmt.Sprintf("failed to read prompt template %s", path), err)
	}
	return string(data), nil
}

var requiredSlots = []string{"room_id", "analysis_time"}

// SlotError reports a template slot that could not be resolved.
type SlotError struct {
	Slot   string
	Reason string
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("prompt slot %q: %s", e.Slot, e.Reason)
}

// PromptInput is everything one prompt is rendered from.
type PromptInput struct {
	RoomID        string
	AnalysisTime  time.Time
	Current       *entities.CurrentStateRecord
	EnvStats      []*entities.EnvStatsRecord
	DeviceChanges []*entities.DeviceChangeRecord
	SimilarCases  []*entities.SimilarCase
	Warnings      []string
}

// PromptRenderer turns extracted data into the LLM prompt.
type PromptRenderer struct {
	spec     *entities.DeviceSpec
	template string
	// device -> field -> code -> label; built once, read-only afterwards.
	enumLabels map[string]map[string]map[int]string
}

// NewPromptRenderer builds the enum label cache from the device spec.
// An empty template selects the built-in one.
func NewPromptRenderer(spec *entities.DeviceSpec, template string) *PromptRenderer {
	if template == "" {
		template = defaultPromptTemplate
	}
	labels := make(map[string]map[string]map[int]string)
	for _, dev := range spec.Devices() {
		fields := make(map[string]map[int]string)
		for _, f := range dev.Fields {
			if f.Kind != entities.FieldKindEnum {
				continue
			}
			codes := make(map[int]string, len(f.Options))
			for _, opt := range f.Options {
				codes[opt.Value] = opt.Label
			}
			fields[f.Name] = codes
		}
		labels[dev.Type] = fields
	}
	return &PromptRenderer{spec: spec, template: template, enumLabels: labels}
}

// EnumLabel returns the display label for a device field code.
func (r *PromptRenderer) EnumLabel(device, field string, code int) (string, bool) {
	label, ok := r.enumLabels[device][field][code]
	return label, ok
}

// Render builds the slot map and interpolates the template.
func (r *PromptRenderer) Render(ctx context.Context, in PromptInput) (string, error) {
	slots := r.BuildSlots(in)
	for _, name := range requiredSlots {
		if v := slots[name]; strings.TrimSpace(v) == "" || v == MissingMarker {
			err := &SlotError{Slot: name, Reason: "required value is empty"}
			observability.LoggerFromContext(ctx).Error().Str("slot", name).Msg("prompt rendering failed")
			return "", err
		}
	}

	prompt, err := interpolate(r.template, slots)
	if err != nil {
		ev := observability.LoggerFromContext(ctx).Error().Err(err)
		if se, ok := err.(*SlotError); ok {
			ev = ev.Str("slot", se.Slot)
		}
		ev.Msg("prompt rendering failed")
		return "", err
	}
	return prompt, nil
}

// BuildSlots returns the flat slot map; every value is non-empty.
func (r *PromptRenderer) BuildSlots(in PromptInput) map[string]string {
	slots := make(map[string]string, 96)
	slots["room_id"] = strings.TrimSpace(in.RoomID)
	if !in.AnalysisTime.IsZero() {
		slots["analysis_time"] = in.AnalysisTime.Format(promptTimeLayout)
	}

	r.currentStateSlots(slots, in.Current)
	r.similarCaseSlots(slots, in.SimilarCases)
	envStatsSlots(slots, in.EnvStats)
	deviceChangeSlots(slots, in.DeviceChanges)
	slots["device_capabilities"] = r.capabilitySummary()
	slots["device_schema"] = r.deviceSchema()
	slots["data_warnings"] = bulletLines(in.Warnings, "none")

	for k, v := range slots {
		if strings.TrimSpace(v) == "" {
			slots[k] = MissingMarker
		}
	}
	return slots
}

func (r *PromptRenderer) currentStateSlots(slots map[string]string, cur *entities.CurrentStateRecord) {
	for _, dev := range r.spec.Devices() {
		var cfg entities.DeviceConfig
		if cur != nil {
			cfg = cur.DeviceConfigs[dev.Type]
		}
		for _, f := range dev.Fields {
			slots[dev.Type+"_"+f.Name] = r.fieldValue(dev.Type, f, cfg)
		}
		slots[dev.Type+"_config"] = r.deviceSummary(dev, cfg)
	}

	if cur == nil {
		for _, k := range []string{"collection_time", "entry_date", "entry_batch", "growth_day", "growth_phase",
			"temperature", "humidity", "co2", "image_quality", "semantic_description"} {
			slots[k] = MissingMarker
		}
		return
	}

	slots["collection_time"] = cur.CollectedAt.Format(promptTimeLayout)
	slots["entry_date"] = formatDate(cur.EntryDate)
	slots["entry_batch"] = fmt.Sprintf("%d", cur.EntryBatch)
	slots["growth_day"] = fmt.Sprintf("%d", cur.GrowthDay)
	slots["growth_phase"] = growthPhase(cur.GrowthDay)
	slots["temperature"] = formatPtr(cur.Sensors.Temperature, "°C")
	slots["humidity"] = formatPtr(cur.Sensors.Humidity, "%")
	slots["co2"] = formatPtr(cur.Sensors.CO2, "ppm")
	slots["image_quality"] = formatPtr(cur.ImageQuality, "")
	slots["semantic_description"] = strings.TrimSpace(cur.SemanticDescription)
}

func (r *PromptRenderer) similarCaseSlots(slots map[string]string, cases []*entities.SimilarCase) {
	slots["similar_case_count"] = fmt.Sprintf("%d", len(cases))
	if len(cases) == 0 {
		slots["avg_similarity"] = MissingMarker
	} else {
		slots["avg_similarity"] = formatNumber(AverageSimilarity(cases)) + "%"
	}

	for i := 0; i < maxSimilarCaseSlots; i++ {
		prefix := fmt.Sprintf("case%d_", i+1)
		if i >= len(cases) || cases[i] == nil {
			for _, k := range []string{"similarity", "confidence", "room_id", "growth_day", "collection_time",
				"temperature", "humidity", "co2", "device_summary", "description"} {
				slots[prefix+k] = MissingMarker
			}
			continue
		}
		c := cases[i]
		slots[prefix+"similarity"] = formatNumber(c.Similarity) + "%"
		slots[prefix+"confidence"] = string(c.Confidence)
		slots[prefix+"room_id"] = c.RoomID
		slots[prefix+"growth_day"] = fmt.Sprintf("%d", c.GrowthDay)
		slots[prefix+"collection_time"] = c.CollectedAt.Format(promptTimeLayout)
		slots[prefix+"temperature"] = formatPtr(c.Sensors.Temperature, "°C")
		slots[prefix+"humidity"] = formatPtr(c.Sensors.Humidity, "%")
		slots[prefix+"co2"] = formatPtr(c.Sensors.CO2, "ppm")
		slots[prefix+"description"] = strings.TrimSpace(c.SemanticSummary)

		parts := make([]string, 0, len(c.DeviceConfigs))
		for _, dev := range r.spec.Devices() {
			cfg, ok := c.DeviceConfigs[dev.Type]
			if !ok {
				continue
			}
			parts = append(parts, dev.Type+" "+r.deviceSummary(dev, cfg))
		}
		slots[prefix+"device_summary"] = strings.Join(parts, "; ")
	}
}

func envStatsSlots(slots map[string]string, stats []*entities.EnvStatsRecord) {
	lines := make([]string, 0, len(stats))
	for _, row := range stats {
		if row == nil {
			continue
		}
		phase := "not in growth phase"
		if row.IsGrowthPhase {
			phase = "growth phase"
		}
		day := ""
		if row.DayInBatch != nil {
			day = fmt.Sprintf("day %d, ", *row.DayInBatch)
		}
		lines = append(lines, fmt.Sprintf("- %s (%s%s): temperature %s; humidity %s; CO2 %s",
			formatDate(row.StatDate), day, phase,
			statLine(row, entities.ParamTemperature, "°C"),
			statLine(row, entities.ParamHumidity, "%"),
			statLine(row, entities.ParamCO2, "ppm"),
		))
	}
	slots["env_stats_summary"] = strings.Join(lines, "\n")

	for _, p := range entities.EnvParameters() {
		slots[string(p)+"_trend"] = MissingMarker
	}
	if len(stats) > 0 && stats[len(stats)-1] != nil {
		last := stats[len(stats)-1]
		for _, p := range entities.EnvParameters() {
			slots[string(p)+"_trend"] = trendText(last.TrendFor(p))
		}
	}
}

func statLine(row *entities.EnvStatsRecord, p entities.EnvParameter, unit string) string {
	s := row.Summary(p)
	line := fmt.Sprintf("median %s [min %s, max %s, IQR %s-%s]",
		formatPtr(s.Median, unit), formatPtr(s.Min, unit), formatPtr(s.Max, unit),
		formatPtr(s.Q25, ""), formatPtr(s.Q75, ""))
	if t := row.TrendFor(p); t.Direction != nil {
		line += ", " + trendText(t)
	}
	return line
}

func trendText(t entities.Trend) string {
	if t.ChangePct == nil || t.Direction == nil {
		return MissingMarker
	}
	sign := ""
	if *t.ChangePct > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%s%% (%s)", sign, formatNumber(*t.ChangePct), *t.Direction)
}

func deviceChangeSlots(slots map[string]string, changes []*entities.DeviceChangeRecord) {
	slots["device_change_count"] = fmt.Sprintf("%d", len(changes))
	lines := make([]string, 0, len(changes))
	for i, c := range changes {
		if i == maxChangeLines {
			lines = append(lines, fmt.Sprintf("- ... %d older changes omitted", len(changes)-maxChangeLines))
			break
		}
		desc := c.PointDescription
		if desc == "" {
			desc = c.PointName
		}
		delta := ""
		if c.ChangeMagnitude != nil {
			delta = fmt.Sprintf(", change %s", formatNumber(roundTo(*c.ChangeMagnitude, 2)))
		}
		lines = append(lines, fmt.Sprintf("- %s %s.%s (%s): %s -> %s%s [%s]",
			c.ChangedAt.Format(promptTimeLayout), c.DeviceType, c.PointName, desc,
			formatPtr(c.PreviousValue, ""), formatPtr(c.CurrentValue, ""), delta, c.ChangeType))
	}
	slots["device_changes_summary"] = bulletLinesRaw(lines, "- no setpoint changes recorded")
}

func (r *PromptRenderer) fieldValue(device string, f entities.FieldSpec, cfg entities.DeviceConfig) string {
	v, ok := cfg.Value(f.Name)
	if !ok {
		return MissingMarker
	}
	if f.Kind == entities.FieldKindEnum {
		if label, ok := r.EnumLabel(device, f.Name, int(v)); ok && v == float64(int(v)) {
			return fmt.Sprintf("%s (%d)", label, int(v))
		}
		return formatNumber(v)
	}
	return formatNumber(roundTo(v, 2)) + f.Unit
}

func (r *PromptRenderer) deviceSummary(dev *entities.DeviceTypeSpec, cfg entities.DeviceConfig) string {
	if len(cfg) == 0 {
		return MissingMarker
	}
	parts := make([]string, 0, len(dev.Fields))
	for _, f := range dev.Fields {
		if _, ok := cfg.Value(f.Name); !ok {
			continue
		}
		parts = append(parts, f.Name+"="+r.fieldValue(dev.Type, f, cfg))
	}
	if len(parts) == 0 {
		return MissingMarker
	}
	return strings.Join(parts, ", ")
}

func (r *PromptRenderer) capabilitySummary() string {
	var lines []string
	for _, dev := range r.spec.Devices() {
		for _, f := range dev.Fields {
			req := ""
			if f.Required {
				req = ", required"
			}
			switch f.Kind {
			case entities.FieldKindNumeric:
				lines = append(lines, fmt.Sprintf("- %s.%s (%s): number %s-%s%s, default %s%s",
					dev.Type, f.Name, f.Label, formatNumber(f.Min), formatNumber(f.Max), f.Unit, formatNumber(f.Default), req))
			case entities.FieldKindEnum:
				opts := make([]string, len(f.Options))
				for i, o := range f.Options {
					opts[i] = fmt.Sprintf("%d=%s", o.Value, o.Label)
				}
				lines = append(lines, fmt.Sprintf("- %s.%s (%s): one of %s, default %s%s",
					dev.Type, f.Name, f.Label, strings.Join(opts, ", "), formatNumber(f.Default), req))
			}
		}
		for _, c := range dev.Constraints {
			op := ">"
			if c.Kind == entities.ConstraintLessThan {
				op = "<"
			}
			line := fmt.Sprintf("- %s: %s must be %s %s", dev.Type, c.Field, op, c.Other)
			if c.MinGap > 0 {
				line += fmt.Sprintf(" by at least %s", formatNumber(c.MinGap))
			}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// deviceSchema renders the expected device_recommendations object.
func (r *PromptRenderer) deviceSchema() string {
	var b strings.Builder
	b.WriteString("{\n")
	devices := r.spec.Devices()
	for i, dev := range devices {
		fmt.Fprintf(&b, "    %q: {", dev.Type)
		for _, f := range dev.Fields {
			fmt.Fprintf(&b, "%q: <value or null>, ", f.Name)
		}
		b.WriteString(`"rationale": ["reason"]}`)
		if i < len(devices)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("  }")
	return b.String()
}

// RenderSimplified builds a minimal prompt from the current readings only.
// It never fails and is used when the full template cannot be rendered.
func (r *PromptRenderer) RenderSimplified(in PromptInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You control the climate of mushroom growing room %s.\n", orMissing(in.RoomID))
	if !in.AnalysisTime.IsZero() {
		fmt.Fprintf(&b, "Analysis time: %s.\n", in.AnalysisTime.Format(promptTimeLayout))
	}
	if cur := in.Current; cur != nil {
		fmt.Fprintf(&b, "Growth day %d. Temperature %s, humidity %s, CO2 %s.\n",
			cur.GrowthDay,
			formatPtr(cur.Sensors.Temperature, "°C"),
			formatPtr(cur.Sensors.Humidity, "%"),
			formatPtr(cur.Sensors.CO2, "ppm"))
		for _, dev := range r.spec.Devices() {
			fmt.Fprintf(&b, "Current %s: %s.\n", dev.Type, r.deviceSummary(dev, cur.DeviceConfigs[dev.Type]))
		}
	} else {
		b.WriteString("No current observation is available.\n")
	}
	b.WriteString("\nAllowed values:\n")
	b.WriteString(r.capabilitySummary())
	b.WriteString("\n\nReply with one JSON object with keys \"strategy\" (core_objective, priority_ranking, key_risk_points), ")
	b.WriteString("\"device_recommendations\" and \"monitoring_points\" (key_time_periods, warning_thresholds, emergency_measures). ")
	b.WriteString("Use null for every parameter that should keep its current value.\n")
	b.WriteString("device_recommendations format:\n  ")
	b.WriteString(r.deviceSchema())
	b.WriteString("\n")
	return b.String()
}

func growthPhase(day int) string {
	switch {
	case day < 0:
		return MissingMarker
	case day <= 3:
		return "inoculation / colonisation"
	case day <= 10:
		return "primordia formation"
	default:
		return "fruiting body growth"
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return MissingMarker
	}
	return t.Format("2006-01-02")
}

func orMissing(s string) string {
	if strings.TrimSpace(s) == "" {
		return MissingMarker
	}
	return s
}

func bulletLines(items []string, empty string) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			lines = append(lines, "- "+it)
		}
	}
	return bulletLinesRaw(lines, "- "+empty)
}

func bulletLinesRaw(lines []string, empty string) string {
	if len(lines) == 0 {
		return empty
	}
	return strings.Join(lines, "\n")
}

// SlotNames returns the sorted placeholder names a template references.
func SlotNames(template string) []string {
	seen := map[string]struct{}{}
	for i := 0; i < len(template); i++ {
		if template[i] != '{' {
			continue
		}
		if name, end, ok := placeholderAt(template, i); ok {
			seen[name] = struct{}{}
			i = end
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
