package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
)

// printSummary writes a short operator-facing view of a decision.
func printSummary(w io.Writer, out *entities.DecisionOutput, spec *entities.DeviceSpec) {
	var b strings.Builder
	meta := out.Metadata

	fmt.Fprintf(&b, "Room %s | status %s | analysis %s\n", out.RoomID, strings.ToUpper(string(out.Status)),
		meta.AnalysisTime.Format("2006-01-02 15:04"))
	if meta.FallbackReason != "" {
		fmt.Fprintf(&b, "Fallback: %s\n", meta.FallbackReason)
	}
	if out.Strategy.CoreObjective != "" {
		fmt.Fprintf(&b, "Objective: %s\n", out.Strategy.CoreObjective)
	}
	if len(out.Strategy.Priorities) > 0 {
		fmt.Fprintf(&b, "Priorities: %s\n", strings.Join(out.Strategy.Priorities, " > "))
	}

	changes := changeLines(out, spec)
	if len(changes) == 0 {
		b.WriteString("Changes: none, keep all current setpoints\n")
	} else {
		fmt.Fprintf(&b, "Changes (%d):\n", len(changes))
		for _, line := range changes {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}

	fmt.Fprintf(&b, "Data: current state %s, %d stats days, %d setpoint changes, %d similar cases (avg %s%%)\n",
		foundText(meta.DataSources.CurrentStateFound),
		meta.DataSources.EnvStatsRecords,
		meta.DataSources.DeviceChanges,
		meta.DataSources.SimilarCases,
		strconv.FormatFloat(meta.AvgSimilarity, 'f', -1, 64))

	writeList(&b, "Warnings", meta.Warnings)
	writeList(&b, "Errors", meta.Errors)
	fmt.Fprintf(&b, "Analysis %s finished in %dms\n", meta.AnalysisID, meta.TotalLatencyMs)

	_, _ = io.WriteString(w, b.String())
}

func changeLines(out *entities.DecisionOutput, spec *entities.DeviceSpec) []string {
	var lines []string
	devices := make([]string, 0, len(out.DeviceRecommendations))
	for d := range out.DeviceRecommendations {
		devices = append(devices, d)
	}
	sort.Strings(devices)

	for _, device := range devices {
		block := out.DeviceRecommendations[device]
		fields := make([]string, 0, len(block.Parameters))
		for f, v := range block.Parameters {
			if v != nil {
				fields = append(fields, f)
			}
		}
		sort.Strings(fields)
		for _, field := range fields {
			lines = append(lines, fmt.Sprintf("%s.%s = %s", device, field, displayValue(spec, device, field, *block.Parameters[field])))
		}
	}
	return lines
}

func displayValue(spec *entities.DeviceSpec, device, field string, v float64) string {
	text := strconv.FormatFloat(v, 'f', -1, 64)
	if spec == nil {
		return text
	}
	dev, ok := spec.Device(device)
	if !ok {
		return text
	}
	f, ok := dev.Field(field)
	if !ok {
		return text
	}
	if f.Kind == entities.FieldKindEnum {
		if label, ok := f.LabelFor(v); ok {
			return fmt.Sprintf("%s (%s)", label, text)
		}
	}
	return text + f.Unit
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s (%d):\n", title, len(items))
	for _, it := range items {
		fmt.Fprintf(b, "  - %s\n", it)
	}
}

func foundText(found bool) string {
	if found {
		return "found"
	}
	return "missing"
}
