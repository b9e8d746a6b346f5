package evaluation

import (
	"fmt"
	"math"
	"sort"

	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
)

const valueTolerance = 1e-9

// Rate returns part/total, or 0 when total is zero.
func Rate(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total)
}

// CompareValues checks a validated decision against expected per-field values.
// It returns the number of checks, the number of hits and a description of each miss.
func CompareValues(expected map[string]map[string]*float64, recs map[string]entities.RecommendationBlock) (int, int, []string) {
	checks, hits := 0, 0
	var misses []string

	for _, device := range sortedDevices(expected) {
		fields := expected[device]
		names := make([]string, 0, len(fields))
		for f := range fields {
			names = append(names, f)
		}
		sort.Strings(names)

		block, ok := recs[device]
		for _, field := range names {
			checks++
			want := fields[field]
			var got *float64
			if ok {
				got = block.Parameters[field]
			}
			if sameValue(want, got) {
				hits++
				continue
			}
			misses = append(misses, fmt.Sprintf("%s.%s: want %s, got %s", device, field, showValue(want), showValue(got)))
		}
	}
	return checks, hits, misses
}

// InvariantViolations lists every way out breaks the decision contract for spec:
// known status, full device and field coverage, values inside their domain,
// cross-field constraints holding, and no changes on non-success decisions.
func InvariantViolations(out *entities.DecisionOutput, spec *entities.DeviceSpec) []string {
	if out == nil {
		return []string{"decision is nil"}
	}
	var v []string

	switch out.Status {
	case entities.DecisionSuccess, entities.DecisionFallback, entities.DecisionError:
	default:
		v = append(v, fmt.Sprintf("unknown status %q", out.Status))
	}

	for device := range out.DeviceRecommendations {
		if _, ok := spec.Device(device); !ok {
			v = append(v, fmt.Sprintf("%s: device not in spec", device))
		}
	}

	for _, dev := range spec.Devices() {
		block, ok := out.DeviceRecommendations[dev.Type]
		if !ok {
			v = append(v, fmt.Sprintf("%s: device missing", dev.Type))
			continue
		}
		for name := range block.Parameters {
			if _, known := dev.Field(name); !known {
				v = append(v, fmt.Sprintf("%s.%s: field not in spec", dev.Type, name))
			}
		}
		for _, f := range dev.Fields {
			val, present := block.Parameters[f.Name]
			if !present {
				v = append(v, fmt.Sprintf("%s.%s: field missing", dev.Type, f.Name))
				continue
			}
			if val != nil && !f.Contains(*val) {
				v = append(v, fmt.Sprintf("%s.%s: %v outside domain", dev.Type, f.Name, *val))
			}
		}
		for _, c := range dev.Constraints {
			a, b := block.Parameters[c.Field], block.Parameters[c.Other]
			if a != nil && b != nil && !c.Satisfied(*a, *b) {
				v = append(v, fmt.Sprintf("%s: %s=%v, %s=%v break %s constraint", dev.Type, c.Field, *a, c.Other, *b, c.Kind))
			}
		}
	}

	if out.Status != entities.DecisionSuccess && out.ChangedParameters() > 0 {
		v = append(v, fmt.Sprintf("%s decision changes %d parameters", out.Status, out.ChangedParameters()))
	}
	return v
}

func sameValue(want, got *float64) bool {
	if want == nil || got == nil {
		return want == nil && got == nil
	}
	return math.Abs(*want-*got) < valueTolerance
}

func showValue(v *float64) string {
	if v == nil {
		return "no change"
	}
	return fmt.Sprintf("%v", *v)
}

func sortedDevices(m map[string]map[string]*float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
