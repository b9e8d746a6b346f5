package providers

import (
	"context"

	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to decision events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.DecisionEvent) error

	// Subscribe subscribes to events on a channel until ctx is done
	Subscribe(ctx context.Context, channel string) (<-chan *entities.DecisionEvent, error)

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventChannel constants for decision events
const (
	// EventChannelDecisions receives every completed decision
	EventChannelDecisions = "growroom:decisions"

	// EventChannelRoomPrefix is the prefix for room-specific channels
	EventChannelRoomPrefix = "growroom:room:"
)

// GetRoomChannel returns the channel name for a specific room
func GetRoomChannel(roomID string) string {
	return EventChannelRoomPrefix + roomID
}
