package entities

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DeviceDraft is one device's unvalidated recommendation. Values keeps the raw
// JSON value per field: an absent key means "not mentioned", a nil value means
// "explicitly no change".
type DeviceDraft struct {
	Values    map[string]any
	Rationale []string
}

// DecisionDraft is a decision as produced by the language model (or the
// fallback), before output validation.
type DecisionDraft struct {
	Origin                DecisionStatus
	FallbackReason        string
	Strategy              *ControlStrategy
	DeviceRecommendations map[string]DeviceDraft
	MonitoringPlan        *MonitoringPlan
	Warnings              []string
}

var (
	strategyKeys   = []string{"strategy", "control_strategy"}
	devicesKeys    = []string{"device_recommendations", "devices"}
	monitoringKeys = []string{"monitoring_points", "monitoring_plan"}
	rationaleKeys  = []string{"rationale", "adjustment_reason", "reasons"}
)

const parametersKey = "parameters"

// DraftFromMap converts a parsed JSON object into a draft. Sections that are
// missing or of the wrong shape stay nil so validation can detect them.
func DraftFromMap(m map[string]any) *DecisionDraft {
	d := &DecisionDraft{Origin: DecisionSuccess}
	if m == nil {
		return d
	}

	if raw, ok := lookup(m, strategyKeys); ok {
		d.Strategy = strategyFrom(raw)
	}

	if raw, ok := lookup(m, devicesKeys); ok {
		if devices, ok := raw.(map[string]any); ok {
			d.DeviceRecommendations = make(map[string]DeviceDraft, len(devices))
			for _, name := range sortedKeys(devices) {
				block, ok := devices[name].(map[string]any)
				if !ok {
					d.Warnings = append(d.Warnings, fmt.Sprintf("device_recommendations.%s is not an object, ignored", name))
					continue
				}
				d.DeviceRecommendations[name] = deviceDraftFrom(block)
			}
		}
	}

	if raw, ok := lookup(m, monitoringKeys); ok {
		d.MonitoringPlan = monitoringFrom(raw)
	}

	return d
}

// DraftFromOutput turns a validated output back into a draft.
func DraftFromOutput(out *DecisionOutput) *DecisionDraft {
	if out == nil {
		return &DecisionDraft{}
	}
	strategy := out.Strategy
	plan := out.MonitoringPlan
	d := &DecisionDraft{
		Origin:                out.Status,
		FallbackReason:        out.Metadata.FallbackReason,
		Strategy:              &strategy,
		MonitoringPlan:        &plan,
		DeviceRecommendations: make(map[string]DeviceDraft, len(out.DeviceRecommendations)),
	}
	for device, block := range out.DeviceRecommendations {
		values := make(map[string]any, len(block.Parameters))
		for field, v := range block.Parameters {
			if v == nil {
				values[field] = nil
				continue
			}
			values[field] = *v
		}
		d.DeviceRecommendations[device] = DeviceDraft{
			Values:    values,
			Rationale: append([]string(nil), block.Rationale...),
		}
	}
	return d
}

// deviceDraftFrom accepts both flat blocks ({"co2_on": 1400}) and the
// validated output shape ({"parameters": {"co2_on": 1400}, "rationale": [...]}).
// Nested parameters win over flat keys of the same name.
func deviceDraftFrom(block map[string]any) DeviceDraft {
	dd := DeviceDraft{Values: make(map[string]any, len(block))}
	var nested map[string]any
	for key, v := range block {
		if contains(rationaleKeys, key) {
			dd.Rationale = append(dd.Rationale, stringList(v)...)
			continue
		}
		if key == parametersKey {
			if params, ok := v.(map[string]any); ok {
				nested = params
				continue
			}
		}
		dd.Values[key] = v
	}
	for field, v := range nested {
		dd.Values[field] = v
	}
	return dd
}

func strategyFrom(raw any) *ControlStrategy {
	switch v := raw.(type) {
	case map[string]any:
		s := &ControlStrategy{}
		if obj, ok := lookup(v, []string{"core_objective", "objective"}); ok {
			s.CoreObjective = scalarString(obj)
		}
		if p, ok := lookup(v, []string{"priority_ranking", "priorities"}); ok {
			s.Priorities = stringList(p)
		}
		if r, ok := lookup(v, []string{"key_risk_points", "risk_points", "risks"}); ok {
			s.RiskPoints = stringList(r)
		}
		return s
	case string:
		return &ControlStrategy{CoreObjective: v}
	}
	return nil
}

func monitoringFrom(raw any) *MonitoringPlan {
	v, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	plan := &MonitoringPlan{}
	if w, ok := lookup(v, []string{"key_time_periods", "key_time_windows"}); ok {
		plan.KeyTimeWindows = stringList(w)
	}
	if e, ok := lookup(v, []string{"emergency_measures", "emergency_actions"}); ok {
		plan.EmergencyActions = stringList(e)
	}
	if t, ok := lookup(v, []string{"warning_thresholds", "thresholds"}); ok {
		if tm, ok := t.(map[string]any); ok {
			plan.WarningThresholds = make(map[string]ThresholdRange, len(tm))
			for name, tv := range tm {
				plan.WarningThresholds[name] = thresholdFrom(tv)
			}
		}
	}
	return plan
}

func thresholdFrom(raw any) ThresholdRange {
	switch v := raw.(type) {
	case map[string]any:
		tr := ThresholdRange{}
		if lo, ok := lookup(v, []string{"min", "lower", "low"}); ok {
			tr.Min = numberPtr(lo)
		}
		if hi, ok := lookup(v, []string{"max", "upper", "high"}); ok {
			tr.Max = numberPtr(hi)
		}
		if note, ok := lookup(v, []string{"note", "description"}); ok {
			tr.Note = scalarString(note)
		}
		return tr
	case []any:
		tr := ThresholdRange{}
		if len(v) == 2 {
			tr.Min = numberPtr(v[0])
			tr.Max = numberPtr(v[1])
		}
		if tr.Min == nil && tr.Max == nil {
			tr.Note = strings.Join(stringList(v), ", ")
		}
		return tr
	case nil:
		return ThresholdRange{}
	default:
		return ThresholdRange{Note: scalarString(v)}
	}
}

func lookup(m map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func stringList(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := scalarString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return append([]string(nil), v...)
	default:
		if s := scalarString(v); s != "" {
			return []string{s}
		}
	}
	return nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func numberPtr(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case int:
		f := float64(t)
		return &f
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return &f
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
