package entities

import "time"

// EnvParameter names one monitored climate parameter.
type EnvParameter string

const (
	ParamTemperature EnvParameter = "temperature"
	ParamHumidity    EnvParameter = "humidity"
	ParamCO2         EnvParameter = "co2"
)

// EnvParameters lists parameters in display order.
func EnvParameters() []EnvParameter {
	return []EnvParameter{ParamTemperature, ParamHumidity, ParamCO2}
}

// TrendDirection is the day-over-day movement of a parameter's median.
type TrendDirection string

const (
	TrendRising  TrendDirection = "rising"
	TrendFalling TrendDirection = "falling"
	TrendStable  TrendDirection = "stable"
)

// StatSummary is the daily distribution of one parameter.
type StatSummary struct {
	Median *float64 `json:"median,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Q25    *float64 `json:"q25,omitempty"`
	Q75    *float64 `json:"q75,omitempty"`
}

// Trend is derived, never stored. Both fields are nil when no comparison was possible.
type Trend struct {
	ChangePct *float64        `json:"change_pct,omitempty"`
	Direction *TrendDirection `json:"direction,omitempty"`
}

// EnvStatsRecord is one day of climate statistics for a room.
type EnvStatsRecord struct {
	RoomID        string    `json:"room_id"`
	StatDate      time.Time `json:"stat_date"`
	IsGrowthPhase bool      `json:"is_growth_phase"`
	DayInBatch    *int      `json:"day_in_batch,omitempty"`

	Temperature StatSummary `json:"temperature"`
	Humidity    StatSummary `json:"humidity"`
	CO2         StatSummary `json:"co2"`

	TemperatureTrend Trend `json:"temperature_trend"`
	HumidityTrend    Trend `json:"humidity_trend"`
	CO2Trend         Trend `json:"co2_trend"`
}

// Summary returns the statistics for a parameter.
func (r *EnvStatsRecord) Summary(p EnvParameter) StatSummary {
	switch p {
	case ParamTemperature:
		return r.Temperature
	case ParamHumidity:
		return r.Humidity
	case ParamCO2:
		return r.CO2
	}
	return StatSummary{}
}

// TrendFor returns the trend for a parameter.
func (r *EnvStatsRecord) TrendFor(p EnvParameter) Trend {
	switch p {
	case ParamTemperature:
		return r.TemperatureTrend
	case ParamHumidity:
		return r.HumidityTrend
	case ParamCO2:
		return r.CO2Trend
	}
	return Trend{}
}

// SetTrend stores the trend for a parameter.
func (r *EnvStatsRecord) SetTrend(p EnvParameter, t Trend) {
	switch p {
	case ParamTemperature:
		r.TemperatureTrend = t
	case ParamHumidity:
		r.HumidityTrend = t
	case ParamCO2:
		r.CO2Trend = t
	}
}

// EnvStatsFilter selects daily statistics rows for a room.
type EnvStatsFilter struct {
	RoomID   string
	DateFrom time.Time
	DateTo   time.Time
}
