package entities

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// DeviceConfig is one device category's setpoint snapshot, keyed by point name.
type DeviceConfig map[string]float64

// Value returns the configured value for a point and whether it was present.
func (c DeviceConfig) Value(point string) (float64, bool) {
	if c == nil {
		return 0, false
	}
	v, ok := c[point]
	return v, ok
}

// SensorReadings holds the room climate captured with an image.
type SensorReadings struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	CO2         *float64 `json:"co2,omitempty"`
}

// CurrentStateRecord is a room's most recent observation at or before an analysis time.
type CurrentStateRecord struct {
	ID                  int64                   `json:"id"`
	RoomID              string                  `json:"room_id"`
	CollectedAt         time.Time               `json:"collection_timestamp"`
	EntryDate           time.Time               `json:"entry_date"`
	EntryBatch          int                     `json:"entry_batch_number"`
	GrowthDay           int                     `json:"growth_day"`
	Embedding           pgvector.Vector         `json:"-"`
	SemanticDescription string                  `json:"semantic_description"`
	ImageQuality        *float64                `json:"image_quality_score,omitempty"`
	Sensors             SensorReadings          `json:"sensors"`
	DeviceConfigs       map[string]DeviceConfig `json:"device_configs"`
}

// HasEmbedding reports whether the record carries a usable embedding vector.
func (r *CurrentStateRecord) HasEmbedding() bool {
	return r != nil && len(r.Embedding.Slice()) > 0
}

// EmbeddingWindow selects embedding records around a reference entry date and growth day.
type EmbeddingWindow struct {
	RoomID        string
	EntryDateFrom time.Time
	EntryDateTo   time.Time
	GrowthDayFrom int
	GrowthDayTo   int
	// CollectedBefore, when set, excludes records collected after it.
	CollectedBefore *time.Time
	Limit           int
}

// Contains reports whether a record falls inside the window.
func (w EmbeddingWindow) Contains(r *CurrentStateRecord) bool {
	if r == nil || r.RoomID != w.RoomID {
		return false
	}
	if r.EntryDate.Before(w.EntryDateFrom) || r.EntryDate.After(w.EntryDateTo) {
		return false
	}
	if r.GrowthDay < w.GrowthDayFrom || r.GrowthDay > w.GrowthDayTo {
		return false
	}
	if w.CollectedBefore != nil && r.CollectedAt.After(*w.CollectedBefore) {
		return false
	}
	return true
}

// NewEmbeddingWindow builds a window of ±dateWindowDays around entryDate and
// ±growthDayWindow around growthDay. Growth days never go below zero.
func NewEmbeddingWindow(roomID string, entryDate time.Time, growthDay, dateWindowDays, growthDayWindow int) EmbeddingWindow {
	day := truncateDay(entryDate)
	from := growthDay - growthDayWindow
	if from < 0 {
		from = 0
	}
	return EmbeddingWindow{
		RoomID:        roomID,
		EntryDateFrom: day.AddDate(0, 0, -dateWindowDays),
		EntryDateTo:   day.AddDate(0, 0, dateWindowDays),
		GrowthDayFrom: from,
		GrowthDayTo:   growthDay + growthDayWindow,
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
