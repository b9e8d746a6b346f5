package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/devicespec"
	"github.com/mycogrow/growroom-advisor/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateTime(t *testing.T) {
	now := time.Date(2024, 11, 20, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"", now, false},
		{"2024-11-20T08:30:00Z", time.Date(2024, 11, 20, 8, 30, 0, 0, time.UTC), false},
		{"2024-11-20 08:30:00", time.Date(2024, 11, 20, 8, 30, 0, 0, time.Local), false},
		{"2024-11-20 08:30", time.Date(2024, 11, 20, 8, 30, 0, 0, time.Local), false},
		{"2024-11-20", time.Date(2024, 11, 20, 0, 0, 0, 0, time.Local), false},
		{"20/11/2024", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDateTime(tt.in, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestRootCmd_ArgumentErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing room id", []string{}},
		{"bad datetime", []string{"--room-id", "611", "--datetime", "yesterday"}},
		{"blank room id", []string{"--room-id", "  "}},
		{"positional argument", []string{"--room-id", "611", "extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			var out, errOut bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetErr(&errOut)
			cmd.SetArgs(tt.args)

			err := cmd.ExecuteContext(context.Background())

			assert.Error(t, err)
			assert.Empty(t, out.String())
		})
	}
}

func TestPrintSummary(t *testing.T) {
	spec, err := devicespec.Load("../../config/device_capabilities.yaml")
	require.NoError(t, err)

	set := 25.0
	mode := 1.0
	out := &entities.DecisionOutput{
		Status: entities.DecisionSuccess,
		RoomID: "611",
		Strategy: entities.ControlStrategy{
			CoreObjective: "Cool the room",
			Priorities:    []string{"temperature", "co2"},
		},
		DeviceRecommendations: map[string]entities.RecommendationBlock{
			"air_cooler":    {Parameters: map[string]*float64{"tem_set": &set, "tem_diff_set": nil}},
			"fresh_air_fan": {Parameters: map[string]*float64{"model": &mode}},
		},
		Metadata: entities.DecisionMetadata{
			AnalysisID:   "a-1",
			AnalysisTime: time.Date(2024, 11, 20, 10, 0, 0, 0, time.UTC),
			Warnings:     []string{"air_cooler.tem_set: 45 -> 25 (above maximum 25, clamped)"},
		},
	}

	var buf bytes.Buffer
	printSummary(&buf, out, spec)
	text := buf.String()

	assert.Contains(t, text, "Room 611 | status SUCCESS | analysis 2024-11-20 10:00")
	assert.Contains(t, text, "Priorities: temperature > co2")
	assert.Contains(t, text, "Changes (2):")
	assert.Contains(t, text, "air_cooler.tem_set = 25°C")
	assert.Contains(t, text, "fresh_air_fan.model = Auto (1)")
	assert.NotContains(t, text, "tem_diff_set")
	assert.Contains(t, text, "Warnings (1):")
	assert.NotContains(t, text, "Errors")

	buf.Reset()
	out.DeviceRecommendations = nil
	printSummary(&buf, out, spec)
	assert.Contains(t, buf.String(), "Changes: none, keep all current setpoints")
}

func TestAnalysisConfig_PassesDeviceTypes(t *testing.T) {
	got := analysisConfig(config.AnalysisConfig{
		DateWindowDays:       5,
		GrowthDayWindow:      2,
		EnvStatsDaysRange:    3,
		DeviceChangeLookback: 48 * time.Hour,
		TopK:                 4,
		DeviceTypes:          []string{"fresh_air_fan"},
	})

	assert.Equal(t, 5, got.DateWindowDays)
	assert.Equal(t, 2, got.GrowthDayWindow)
	assert.Equal(t, 3, got.EnvStatsDaysRange)
	assert.Equal(t, 48*time.Hour, got.DeviceChangeLookback)
	assert.Equal(t, 4, got.TopK)
	assert.Equal(t, []string{"fresh_air_fan"}, got.DeviceTypes)
}
