package entities

import "time"

// ConfidenceLevel is a coarse band over a similarity score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// SimilarCase is a historical observation retrieved as a neighbour of the current state.
type SimilarCase struct {
	RecordID        int64                   `json:"record_id"`
	RoomID          string                  `json:"room_id"`
	GrowthDay       int                     `json:"growth_day"`
	EntryDate       time.Time               `json:"entry_date"`
	CollectedAt     time.Time               `json:"collection_timestamp"`
	Distance        float64                 `json:"distance"`
	Similarity      float64                 `json:"similarity_score"`
	Confidence      ConfidenceLevel         `json:"confidence_level"`
	Sensors         SensorReadings          `json:"sensors"`
	DeviceConfigs   map[string]DeviceConfig `json:"device_configs"`
	SemanticSummary string                  `json:"semantic_description,omitempty"`
}

// NeighbourCandidate is a raw storage hit before scoring.
type NeighbourCandidate struct {
	Record   *CurrentStateRecord
	Distance float64
}

// NeighbourQuery ranks records in a window by distance to a query embedding.
type NeighbourQuery struct {
	Window    EmbeddingWindow
	Embedding []float32
	Limit     int
}
