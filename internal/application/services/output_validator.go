package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/observability"
)

// noChangeWords are text answers that mean "keep the current value".
var noChangeWords = map[string]struct{}{
	"":          {},
	"null":      {},
	"none":      {},
	"n/a":       {},
	"no change": {},
	"unchanged": {},
	"keep":      {},
}

// OutputValidator checks a decision draft against the device spec and corrects
// it so that every returned parameter is nil or inside its declared domain.
type OutputValidator struct {
	spec *entities.DeviceSpec
}

// NewOutputValidator creates a new output validator
func NewOutputValidator(spec *entities.DeviceSpec) *OutputValidator {
	return &OutputValidator{spec: spec}
}

// ValidateAndFormat validates the draft and assembles the final decision.
// upstream carries metadata collected by earlier pipeline steps; its warnings
// and errors are kept ahead of the ones added here.
func (v *OutputValidator) ValidateAndFormat(ctx context.Context, draft *entities.DecisionDraft, roomID string, upstream entities.DecisionMetadata) *entities.DecisionOutput {
	logger := observability.LoggerFromContext(ctx).With().Str("room_id", roomID).Logger()

	meta := upstream
	meta.Warnings = append([]string{}, upstream.Warnings...)
	meta.Errors = append([]string{}, upstream.Errors...)
	meta.Corrections = append([]entities.Correction(nil), upstream.Corrections...)
	meta.Steps = append([]entities.StepOutcome(nil), upstream.Steps...)
	if meta.RoomID == "" {
		meta.RoomID = roomID
	}

	out := &entities.DecisionOutput{
		RoomID:   roomID,
		Metadata: meta,
	}

	if draft == nil {
		out.Status = entities.DecisionError
		out.DeviceRecommendations = v.NoChangeRecommendations()
		out.Metadata.AddError("decision is empty")
		logger.Error().Msg("decision structure check failed: empty decision")
		return out
	}

	out.Metadata.AddWarning(draft.Warnings...)
	if draft.Strategy != nil {
		out.Strategy = copyStrategy(*draft.Strategy)
	}
	if draft.MonitoringPlan != nil {
		out.MonitoringPlan = copyPlan(*draft.MonitoringPlan)
	}

	if missing := missingSections(draft); len(missing) > 0 {
		out.Status = entities.DecisionError
		out.DeviceRecommendations = v.NoChangeRecommendations()
		out.Metadata.AddError(fmt.Sprintf("decision is missing required sections: %s", strings.Join(missing, ", ")))
		logger.Error().Strs("missing_sections", missing).Msg("decision structure check failed")
		return out
	}

	out.Status = draft.Origin
	if out.Status == "" {
		out.Status = entities.DecisionSuccess
	}
	if out.Status == entities.DecisionFallback && out.Metadata.FallbackReason == "" {
		out.Metadata.FallbackReason = draft.FallbackReason
	}

	recs, corrections, messages := v.validateDevices(ctx, draft.DeviceRecommendations)
	out.DeviceRecommendations = recs
	out.Metadata.Corrections = append(out.Metadata.Corrections, corrections...)
	out.Metadata.AddWarning(messages...)

	if len(corrections) > 0 {
		logger.Warn().
			Int("corrections", len(corrections)).
			Msg("decision auto-corrected against device spec")
	}
	return out
}

// NoChangeRecommendations returns a block per device with every field nil.
func (v *OutputValidator) NoChangeRecommendations() map[string]entities.RecommendationBlock {
	recs := make(map[string]entities.RecommendationBlock)
	for _, dev := range v.spec.Devices() {
		params := make(map[string]*float64, len(dev.Fields))
		for _, f := range dev.Fields {
			params[f.Name] = nil
		}
		recs[dev.Type] = entities.RecommendationBlock{Parameters: params, Rationale: []string{}}
	}
	return recs
}

func missingSections(d *entities.DecisionDraft) []string {
	var missing []string
	if d.Strategy == nil {
		missing = append(missing, "strategy")
	}
	if d.DeviceRecommendations == nil {
		missing = append(missing, "device_recommendations")
	}
	if d.MonitoringPlan == nil {
		missing = append(missing, "monitoring_points")
	}
	return missing
}

func (v *OutputValidator) validateDevices(ctx context.Context, drafts map[string]entities.DeviceDraft) (map[string]entities.RecommendationBlock, []entities.Correction, []string) {
	recs := make(map[string]entities.RecommendationBlock, len(v.spec.Devices()))
	var corrections []entities.Correction
	var messages []string

	for _, name := range sortedDraftKeys(drafts) {
		if _, ok := v.spec.Device(name); !ok {
			messages = append(messages, fmt.Sprintf("%s: unknown device type dropped", name))
		}
	}

	for _, dev := range v.spec.Devices() {
		draft, ok := drafts[dev.Type]
		if !ok {
			block := entities.RecommendationBlock{Parameters: make(map[string]*float64, len(dev.Fields)), Rationale: []string{}}
			for _, f := range dev.Fields {
				block.Parameters[f.Name] = nil
			}
			recs[dev.Type] = block
			messages = append(messages, fmt.Sprintf("%s: no recommendation in decision, all parameters left unchanged", dev.Type))
			continue
		}

		block := entities.RecommendationBlock{
			Parameters: make(map[string]*float64, len(dev.Fields)),
			Rationale:  append([]string{}, draft.Rationale...),
		}
		var devCorrections []entities.Correction

		for _, key := range sortedAnyKeys(draft.Values) {
			if _, known := dev.Field(key); !known {
				messages = append(messages, fmt.Sprintf("%s.%s: unknown field dropped", dev.Type, key))
			}
		}

		for _, f := range dev.Fields {
			raw, present := draft.Values[f.Name]
			value, fixes := validateField(dev.Type, f, raw, present)
			block.Parameters[f.Name] = value
			devCorrections = append(devCorrections, fixes...)
		}

		for _, c := range dev.Constraints {
			fixes, msg := enforceConstraint(dev, c, block.Parameters)
			devCorrections = append(devCorrections, fixes...)
			if msg != "" {
				messages = append(messages, msg)
			}
		}

		for _, c := range devCorrections {
			if c.Reason != constraintReason {
				messages = append(messages, describeCorrection(c))
			}
		}
		corrections = append(corrections, devCorrections...)
		observability.RecordCorrections(ctx, dev.Type, len(devCorrections))
		recs[dev.Type] = block
	}

	return recs, corrections, messages
}

// validateField returns the corrected value (nil means no change) and the corrections applied.
func validateField(device string, f entities.FieldSpec, raw any, present bool) (*float64, []entities.Correction) {
	fix := func(original any, corrected *float64, reason string) []entities.Correction {
		var c any
		if corrected != nil {
			c = *corrected
		}
		return []entities.Correction{{Device: device, Field: f.Name, Original: original, Corrected: c, Reason: reason}}
	}

	if !present {
		if f.Required {
			d := f.Default
			return &d, fix(nil, &d, "missing required field, default applied")
		}
		return nil, nil
	}
	if raw == nil {
		return nil, nil
	}

	value, outcome := coerce(f, raw)
	switch outcome {
	case coerceNoChange:
		return nil, fix(raw, nil, "text read as no change")
	case coerceInvalid:
		if f.Required {
			d := f.Default
			return &d, fix(raw, &d, "not a valid value, default applied")
		}
		return nil, fix(raw, nil, "not a valid value, left unchanged")
	}

	var fixes []entities.Correction
	if outcome == coerceConverted {
		fixes = fix(raw, &value, "converted to number")
	}

	switch f.Kind {
	case entities.FieldKindNumeric:
		if value < f.Min || value > f.Max {
			clamped := f.Clamp(value)
			reason := fmt.Sprintf("above maximum %s, clamped", formatNumber(f.Max))
			if value < f.Min {
				reason = fmt.Sprintf("below minimum %s, clamped", formatNumber(f.Min))
			}
			return &clamped, append(fixes, fix(value, &clamped, reason)...)
		}
	case entities.FieldKindEnum:
		if !f.Contains(value) {
			d := f.Default
			return &d, append(fixes, fix(value, &d, "not an allowed option, default applied")...)
		}
	}
	return &value, fixes
}

type coerceOutcome int

const (
	coerceExact coerceOutcome = iota
	coerceConverted
	coerceNoChange
	coerceInvalid
)

func coerce(f entities.FieldSpec, raw any) (float64, coerceOutcome) {
	switch t := raw.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, coerceInvalid
		}
		return t, coerceExact
	case int:
		return float64(t), coerceExact
	case int64:
		return float64(t), coerceExact
	case json.Number:
		v, err := t.Float64()
		if err != nil {
			return 0, coerceInvalid
		}
		return v, coerceExact
	case bool:
		if t {
			return 1, coerceConverted
		}
		return 0, coerceConverted
	case string:
		s := strings.TrimSpace(t)
		if _, ok := noChangeWords[strings.ToLower(s)]; ok {
			return 0, coerceNoChange
		}
		if v, err := strconv.ParseFloat(strings.TrimRight(s, "%°CcPpMm "), 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v, coerceConverted
		}
		if f.Kind == entities.FieldKindEnum {
			for _, opt := range f.Options {
				if strings.EqualFold(opt.Label, s) {
					return float64(opt.Value), coerceConverted
				}
			}
		}
	}
	return 0, coerceInvalid
}

const constraintReason = "cross-field constraint"

// enforceConstraint repairs an ordering violation between two numeric fields:
// inverted pairs are swapped, pairs closer than MinGap are pushed apart inside
// their bounds, and anything still invalid falls back to the defaults.
// Pairs with a nil side are left alone.
func enforceConstraint(dev *entities.DeviceTypeSpec, c entities.Constraint, params map[string]*float64) ([]entities.Correction, string) {
	a, b := params[c.Field], params[c.Other]
	if a == nil || b == nil || c.Satisfied(*a, *b) {
		return nil, ""
	}
	fa, _ := dev.Field(c.Field)
	fb, _ := dev.Field(c.Other)

	origA, origB := *a, *b
	na, nb := origA, origB
	var actions []string

	inverted := (c.Kind == entities.ConstraintGreaterThan && na < nb) ||
		(c.Kind == entities.ConstraintLessThan && na > nb)
	if inverted {
		na, nb = fa.Clamp(nb), fb.Clamp(na)
		actions = append(actions, "swapped")
	}

	if !c.Satisfied(na, nb) {
		gap := c.MinGap
		if gap <= 0 {
			gap = 1
		}
		if c.Kind == entities.ConstraintGreaterThan {
			na = fa.Clamp(nb + gap)
			if !c.Satisfied(na, nb) {
				nb = fb.Clamp(na - gap)
			}
		} else {
			nb = fb.Clamp(na + gap)
			if !c.Satisfied(na, nb) {
				na = fa.Clamp(nb - gap)
			}
		}
		actions = append(actions, fmt.Sprintf("separated by %s", formatNumber(gap)))
	}

	if !c.Satisfied(na, nb) {
		na, nb = fa.Default, fb.Default
		actions = []string{"reset to defaults"}
	}

	*a, *b = na, nb

	op := ">"
	if c.Kind == entities.ConstraintLessThan {
		op = "<"
	}
	msg := fmt.Sprintf("%s: %s=%s, %s=%s violates %s %s %s; corrected to %s=%s, %s=%s (%s)",
		dev.Type,
		c.Field, formatNumber(origA), c.Other, formatNumber(origB),
		c.Field, op, c.Other,
		c.Field, formatNumber(na), c.Other, formatNumber(nb),
		strings.Join(actions, ", "))

	var fixes []entities.Correction
	if na != origA {
		fixes = append(fixes, entities.Correction{Device: dev.Type, Field: c.Field, Original: origA, Corrected: na, Reason: constraintReason})
	}
	if nb != origB {
		fixes = append(fixes, entities.Correction{Device: dev.Type, Field: c.Other, Original: origB, Corrected: nb, Reason: constraintReason})
	}
	return fixes, msg
}

func describeCorrection(c entities.Correction) string {
	return fmt.Sprintf("%s.%s: %s -> %s (%s)", c.Device, c.Field, describeValue(c.Original), describeValue(c.Corrected), c.Reason)
}

func describeValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "no change"
	case float64:
		return formatNumber(t)
	case string:
		return strconv.Quote(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func copyStrategy(s entities.ControlStrategy) entities.ControlStrategy {
	return entities.ControlStrategy{
		CoreObjective: s.CoreObjective,
		Priorities:    append([]string{}, s.Priorities...),
		RiskPoints:    append([]string{}, s.RiskPoints...),
	}
}

func copyPlan(p entities.MonitoringPlan) entities.MonitoringPlan {
	out := entities.MonitoringPlan{
		KeyTimeWindows:    append([]string{}, p.KeyTimeWindows...),
		EmergencyActions:  append([]string{}, p.EmergencyActions...),
		WarningThresholds: make(map[string]entities.ThresholdRange, len(p.WarningThresholds)),
	}
	for k, v := range p.WarningThresholds {
		out.WarningThresholds[k] = v
	}
	return out
}

func sortedDraftKeys(m map[string]entities.DeviceDraft) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedAnyKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
