package entities

import "time"

// DecisionStatus is the terminal status of one analysis.
type DecisionStatus string

const (
	DecisionSuccess  DecisionStatus = "success"
	DecisionFallback DecisionStatus = "fallback"
	DecisionError    DecisionStatus = "error"
)

// ControlStrategy is the overall plan for the next control period.
type ControlStrategy struct {
	CoreObjective string   `json:"core_objective"`
	Priorities    []string `json:"priority_ranking"`
	RiskPoints    []string `json:"key_risk_points"`
}

// RecommendationBlock holds one device type's recommended setpoints.
// A nil parameter means "no change, retain the current value".
type RecommendationBlock struct {
	Parameters map[string]*float64 `json:"parameters"`
	Rationale  []string            `json:"rationale"`
}

// ThresholdRange is a warning band for one monitored parameter.
type ThresholdRange struct {
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
	Note string   `json:"note,omitempty"`
}

// MonitoringPlan tells operators what to watch until the next analysis.
type MonitoringPlan struct {
	KeyTimeWindows    []string                  `json:"key_time_periods"`
	WarningThresholds map[string]ThresholdRange `json:"warning_thresholds"`
	EmergencyActions  []string                  `json:"emergency_measures"`
}

// AnalysisState is one state of the decision pipeline.
type AnalysisState string

const (
	StateExtracting AnalysisState = "extracting"
	StateMatching   AnalysisState = "matching"
	StateRendering  AnalysisState = "rendering"
	StateGenerating AnalysisState = "generating"
	StateValidating AnalysisState = "validating"
	StateDone       AnalysisState = "done"
)

// StepOutcome records how a pipeline state finished.
type StepOutcome struct {
	State      AnalysisState `json:"state"`
	OK         bool          `json:"ok"`
	Degraded   bool          `json:"degraded"`
	DurationMs int64         `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
}

// Correction documents one automatic change made by output validation.
type Correction struct {
	Device    string `json:"device"`
	Field     string `json:"field"`
	Original  any    `json:"original"`
	Corrected any    `json:"corrected"`
	Reason    string `json:"reason"`
}

// DataSourceCounts records how much input each source contributed.
type DataSourceCounts struct {
	CurrentStateFound bool `json:"current_state_found"`
	WindowCandidates  int  `json:"window_candidates"`
	EnvStatsRecords   int  `json:"env_stats_records"`
	DeviceChanges     int  `json:"device_changes"`
	SimilarCases      int  `json:"similar_cases"`
}

// DecisionMetadata carries audit information for one analysis.
type DecisionMetadata struct {
	AnalysisID        string           `json:"analysis_id"`
	RoomID            string           `json:"room_id"`
	AnalysisTime      time.Time        `json:"analysis_time"`
	GeneratedAt       time.Time        `json:"generated_at"`
	DeviceSpecVersion string           `json:"device_spec_version,omitempty"`
	DataSources       DataSourceCounts `json:"data_sources"`
	AvgSimilarity     float64          `json:"avg_similarity"`
	LLMModel          string           `json:"llm_model,omitempty"`
	LLMStatus         DecisionStatus   `json:"llm_status,omitempty"`
	FallbackReason    string           `json:"fallback_reason,omitempty"`
	LLMLatencyMs      int64            `json:"llm_latency_ms"`
	TotalLatencyMs    int64            `json:"total_latency_ms"`
	Steps             []StepOutcome    `json:"steps,omitempty"`
	Corrections       []Correction     `json:"corrections,omitempty"`
	Warnings          []string         `json:"warnings"`
	Errors            []string         `json:"errors"`
}

// AddWarning appends non-empty warnings.
func (m *DecisionMetadata) AddWarning(msgs ...string) {
	for _, msg := range msgs {
		if msg != "" {
			m.Warnings = append(m.Warnings, msg)
		}
	}
}

// AddError appends non-empty errors.
func (m *DecisionMetadata) AddError(msgs ...string) {
	for _, msg := range msgs {
		if msg != "" {
			m.Errors = append(m.Errors, msg)
		}
	}
}

// DecisionOutput is the validated, machine-consumable result of one analysis.
type DecisionOutput struct {
	Status                DecisionStatus                 `json:"status"`
	RoomID                string                         `json:"room_id"`
	Strategy              ControlStrategy                `json:"strategy"`
	DeviceRecommendations map[string]RecommendationBlock `json:"device_recommendations"`
	MonitoringPlan        MonitoringPlan                 `json:"monitoring_points"`
	Metadata              DecisionMetadata               `json:"metadata"`
}

// ChangedParameters counts recommendation parameters that request a change.
func (d *DecisionOutput) ChangedParameters() int {
	n := 0
	for _, block := range d.DeviceRecommendations {
		for _, v := range block.Parameters {
			if v != nil {
				n++
			}
		}
	}
	return n
}
