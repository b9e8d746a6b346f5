package entities

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftFromMap_FullDecision(t *testing.T) {
	raw := `{
		"strategy": {
			"core_objective": "Hold temperature while lowering CO2",
			"priority_ranking": ["co2", "humidity"],
			"key_risk_points": ["condensation at night"]
		},
		"device_recommendations": {
			"fresh_air_fan": {"mode": 1, "co2_on": 1800, "co2_off": null, "rationale": ["CO2 rising"]},
			"humidifier": "not an object"
		},
		"monitoring_points": {
			"key_time_periods": ["02:00-06:00"],
			"warning_thresholds": {"temperature": {"min": 14, "max": 20}, "co2": "keep below 2500"},
			"emergency_measures": ["open door"]
		}
	}`
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	d := DraftFromMap(m)

	require.NotNil(t, d.Strategy)
	assert.Equal(t, "Hold temperature while lowering CO2", d.Strategy.CoreObjective)
	assert.Equal(t, []string{"co2", "humidity"}, d.Strategy.Priorities)

	require.Contains(t, d.DeviceRecommendations, "fresh_air_fan")
	fan := d.DeviceRecommendations["fresh_air_fan"]
	assert.Equal(t, 1800.0, fan.Values["co2_on"])
	v, present := fan.Values["co2_off"]
	assert.True(t, present)
	assert.Nil(t, v)
	assert.Equal(t, []string{"CO2 rising"}, fan.Rationale)
	assert.NotContains(t, d.DeviceRecommendations, "humidifier")
	assert.Len(t, d.Warnings, 1)

	require.NotNil(t, d.MonitoringPlan)
	temp := d.MonitoringPlan.WarningThresholds["temperature"]
	require.NotNil(t, temp.Min)
	assert.Equal(t, 14.0, *temp.Min)
	assert.Equal(t, "keep below 2500", d.MonitoringPlan.WarningThresholds["co2"].Note)
}

func TestDraftFromMap_MissingSectionsStayNil(t *testing.T) {
	d := DraftFromMap(map[string]any{"analysis": "looks fine"})

	assert.Nil(t, d.Strategy)
	assert.Nil(t, d.DeviceRecommendations)
	assert.Nil(t, d.MonitoringPlan)
	assert.Equal(t, DecisionSuccess, d.Origin)
}

func TestDraftFromOutput_KeepsNoChangeMarkers(t *testing.T) {
	set := 18.5
	out := &DecisionOutput{
		Status: DecisionFallback,
		DeviceRecommendations: map[string]RecommendationBlock{
			"air_cooler": {Parameters: map[string]*float64{"tem_set": &set, "on_off": nil}},
		},
	}

	d := DraftFromOutput(out)

	assert.Equal(t, DecisionFallback, d.Origin)
	values := d.DeviceRecommendations["air_cooler"].Values
	assert.Equal(t, 18.5, values["tem_set"])
	v, present := values["on_off"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestDraftFromMap_UnwrapsParametersBlock(t *testing.T) {
	raw := `{
		"device_recommendations": {
			"fresh_air_fan": {
				"parameters": {"model": 1, "co2_on": 1400, "co2_off": null},
				"rationale": ["CO2 rising"]
			},
			"air_cooler": {"tem_set": 19, "parameters": {"tem_set": 18}}
		}
	}`
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	d := DraftFromMap(m)

	fan := d.DeviceRecommendations["fresh_air_fan"]
	assert.NotContains(t, fan.Values, "parameters")
	assert.Equal(t, 1400.0, fan.Values["co2_on"])
	assert.Equal(t, 1.0, fan.Values["model"])
	v, present := fan.Values["co2_off"]
	assert.True(t, present)
	assert.Nil(t, v)
	assert.Equal(t, []string{"CO2 rising"}, fan.Rationale)

	assert.Equal(t, 18.0, d.DeviceRecommendations["air_cooler"].Values["tem_set"])
}
