package services_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mycogrow/growroom-advisor/internal/application/services"
	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
	apperrors "github.com/mycogrow/growroom-advisor/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func currentState() *entities.CurrentStateRecord {
	return &entities.CurrentStateRecord{
		ID:                  42,
		RoomID:              "611",
		CollectedAt:         at("2024-11-20 09:30"),
		EntryDate:           day("2024-11-08"),
		EntryBatch:          2,
		GrowthDay:           12,
		SemanticDescription: "caps opening evenly, slight drying at edges",
		ImageQuality:        f64(0.87),
		Sensors:             entities.SensorReadings{Temperature: f64(18.8), Humidity: f64(91.5), CO2: f64(1320)},
		DeviceConfigs: map[string]entities.DeviceConfig{
			"air_cooler":    {"tem_set": 18, "tem_diff_set": 1, "cyc_on_off": 0},
			"fresh_air_fan": {"model": 1, "control": 1, "co2_on": 1500, "co2_off": 1000},
		},
	}
}

func promptInput() services.PromptInput {
	rising := entities.TrendRising
	return services.PromptInput{
		RoomID:       "611",
		AnalysisTime: at("2024-11-20 10:00"),
		Current:      currentState(),
		EnvStats: []*entities.EnvStatsRecord{{
			RoomID:           "611",
			StatDate:         day("2024-11-20"),
			IsGrowthPhase:    true,
			Temperature:      entities.StatSummary{Median: f64(18.6), Min: f64(17.9), Max: f64(19.4)},
			TemperatureTrend: entities.Trend{ChangePct: f64(2.5), Direction: &rising},
		}},
		DeviceChanges: []*entities.DeviceChangeRecord{{
			RoomID:        "611",
			DeviceType:    "humidifier",
			PointName:     "on",
			ChangedAt:     at("2024-11-19 22:00"),
			PreviousValue: f64(83),
			CurrentValue:  f64(85),
			ChangeType:    entities.ChangeAnalogValue,
		}},
		SimilarCases: []*entities.SimilarCase{{
			RecordID:   7,
			RoomID:     "611",
			GrowthDay:  11,
			Similarity: 81,
			Confidence: entities.ConfidenceHigh,
			Sensors:    entities.SensorReadings{Temperature: f64(18.2)},
		}},
		Warnings: []string{"no env stats for 2024-11-21"},
	}
}

func TestPromptRenderer_Render(t *testing.T) {
	r := services.NewPromptRenderer(loadSpec(t), "")

	prompt, err := r.Render(context.Background(), promptInput())

	require.NoError(t, err)
	for _, name := range services.SlotNames(services.DefaultPromptTemplate()) {
		assert.NotContains(t, prompt, "{"+name+"}", "unresolved slot %s", name)
	}
	assert.Contains(t, prompt, "- Room: 611")
	assert.Contains(t, prompt, "- Temperature: 18.8°C")
	assert.Contains(t, prompt, "model=Auto (1)")
	assert.Contains(t, prompt, "temperature +2.5% (rising)")
	assert.Contains(t, prompt, "humidifier.on (on): 83 -> 85 [analog_value]")
	assert.Contains(t, prompt, "### Case 1: similarity 81% (high confidence)")
	assert.Contains(t, prompt, "### Case 2: similarity [data missing] ([data missing] confidence)")
	assert.Contains(t, prompt, "- no env stats for 2024-11-21")
	assert.Contains(t, prompt, `"warning_thresholds": {"temperature": {"min": 0, "max": 0}, "humidity": {"min": 0, "max": 0}, "co2": {"min": 0, "max": 0}}`)
	assert.Contains(t, prompt, `"device_recommendations": {`+"\n"+`    "air_cooler": {"tem_set": <value or null>`)
}

func TestPromptRenderer_BuildSlots(t *testing.T) {
	r := services.NewPromptRenderer(loadSpec(t), "")

	t.Run("every slot is non-empty", func(t *testing.T) {
		slots := r.BuildSlots(promptInput())
		for name, v := range slots {
			assert.NotEmpty(t, strings.TrimSpace(v), name)
		}
		assert.Equal(t, "Auto (1)", slots["fresh_air_fan_model"])
		assert.Equal(t, "CO2 (1)", slots["fresh_air_fan_control"])
		assert.Equal(t, "18°C", slots["air_cooler_tem_set"])
		assert.Equal(t, services.MissingMarker, slots["humidifier_on"])
		assert.Equal(t, services.MissingMarker, slots["humidifier_config"])
		assert.Equal(t, "1", slots["similar_case_count"])
		assert.Equal(t, "81%", slots["avg_similarity"])
	})

	t.Run("no current state marks everything missing", func(t *testing.T) {
		in := promptInput()
		in.Current = nil
		in.SimilarCases = nil
		slots := r.BuildSlots(in)

		assert.Equal(t, services.MissingMarker, slots["temperature"])
		assert.Equal(t, services.MissingMarker, slots["growth_day"])
		assert.Equal(t, services.MissingMarker, slots["case1_similarity"])
		assert.Equal(t, services.MissingMarker, slots["avg_similarity"])
		assert.Equal(t, "0", slots["similar_case_count"])
	})
}

func TestPromptRenderer_EnumLabel(t *testing.T) {
	r := services.NewPromptRenderer(loadSpec(t), "")

	label, ok := r.EnumLabel("humidifier", "left_right_strategy", 3)
	assert.True(t, ok)
	assert.Equal(t, "Alternate", label)

	_, ok = r.EnumLabel("humidifier", "left_right_strategy", 9)
	assert.False(t, ok)
	_, ok = r.EnumLabel("air_cooler", "tem_set", 18)
	assert.False(t, ok)
}

func TestPromptRenderer_RenderErrors(t *testing.T) {
	spec := loadSpec(t)

	t.Run("unknown slot", func(t *testing.T) {
		r := services.NewPromptRenderer(spec, "Room {room_id} at {analysis_time}, weather {weather}")
		_, err := r.Render(context.Background(), promptInput())

		var se *services.SlotError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "weather", se.Slot)
	})

	t.Run("empty room id", func(t *testing.T) {
		r := services.NewPromptRenderer(spec, "")
		in := promptInput()
		in.RoomID = "  "
		_, err := r.Render(context.Background(), in)

		var se *services.SlotError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "room_id", se.Slot)
	})

	t.Run("missing analysis time", func(t *testing.T) {
		r := services.NewPromptRenderer(spec, "")
		in := promptInput()
		in.AnalysisTime = time.Time{}
		_, err := r.Render(context.Background(), in)

		var se *services.SlotError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "analysis_time", se.Slot)
	})
}

func TestPromptRenderer_RenderSimplified(t *testing.T) {
	r := services.NewPromptRenderer(loadSpec(t), "")

	prompt := r.RenderSimplified(promptInput())
	assert.Contains(t, prompt, "growing room 611")
	assert.Contains(t, prompt, "Temperature 18.8°C, humidity 91.5%, CO2 1320ppm")
	assert.Contains(t, prompt, "fresh_air_fan.co2_on (CO2 start threshold): number 500-5000ppm, default 1500, required")
	assert.Contains(t, prompt, "fresh_air_fan: co2_on must be > co2_off by at least 100")

	bare := r.RenderSimplified(services.PromptInput{})
	assert.Contains(t, bare, "growing room [data missing]")
	assert.Contains(t, bare, "No current observation is available.")
}

func TestLoadPromptTemplate(t *testing.T) {
	tmpl, err := services.LoadPromptTemplate("")
	require.NoError(t, err)
	assert.Equal(t, services.DefaultPromptTemplate(), tmpl)

	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("Room {room_id}"), 0o600))
	tmpl, err = services.LoadPromptTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "Room {room_id}", tmpl)

	_, err = services.LoadPromptTemplate(filepath.Join(t.TempDir(), "missing.txt"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfig))
}
