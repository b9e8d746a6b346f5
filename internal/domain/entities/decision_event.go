package entities

import (
	"time"

	"github.com/google/uuid"
)

// DecisionEventType represents the type of decision event
type DecisionEventType string

const (
	DecisionEventCompleted DecisionEventType = "decision_completed"
)

// DecisionEvent announces a finished analysis to downstream consumers.
// It carries a digest, not the decision itself; consumers read the full
// decision from the decision store.
type DecisionEvent struct {
	ID                string            `json:"id"`
	EventType         DecisionEventType `json:"event_type"`
	RoomID            string            `json:"room_id"`
	AnalysisID        string            `json:"analysis_id"`
	Status            DecisionStatus    `json:"status"`
	ChangedParameters int               `json:"changed_parameters"`
	Corrections       int               `json:"corrections"`
	Warnings          int               `json:"warnings"`
	FallbackReason    string            `json:"fallback_reason,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
}

// NewDecisionEvent creates a completion event for out
func NewDecisionEvent(out *DecisionOutput) *DecisionEvent {
	return &DecisionEvent{
		ID:                uuid.NewString(),
		EventType:         DecisionEventCompleted,
		RoomID:            out.RoomID,
		AnalysisID:        out.Metadata.AnalysisID,
		Status:            out.Status,
		ChangedParameters: out.ChangedParameters(),
		Corrections:       len(out.Metadata.Corrections),
		Warnings:          len(out.Metadata.Warnings),
		FallbackReason:    out.Metadata.FallbackReason,
		Timestamp:         time.Now(),
	}
}
