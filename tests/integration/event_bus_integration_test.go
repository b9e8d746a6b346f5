//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/mycogrow/growroom-advisor/internal/adapters/events"
	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
	"github.com/mycogrow/growroom-advisor/internal/domain/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisEventBus_PublishSubscribe(t *testing.T) {
	client := maybeTestRedisClient(t)
	if client == nil {
		t.Skip("Redis not available")
	}
	defer client.Close()

	bus := events.NewRedisEventBus(client)
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channel := providers.GetRoomChannel("it-611")
	received, err := bus.Subscribe(ctx, channel)
	require.NoError(t, err)

	event := entities.NewDecisionEvent(&entities.DecisionOutput{
		Status:   entities.DecisionFallback,
		RoomID:   "it-611",
		Metadata: entities.DecisionMetadata{AnalysisID: "it-analysis", FallbackReason: "llm request failed"},
	})
	require.NoError(t, bus.Publish(ctx, channel, event))

	select {
	case got := <-received:
		require.NotNil(t, got)
		assert.Equal(t, event.ID, got.ID)
		assert.Equal(t, entities.DecisionFallback, got.Status)
		assert.Equal(t, "llm request failed", got.FallbackReason)
	case <-ctx.Done():
		t.Fatal("timed out waiting for decision event")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-received
		return !open
	}, 2*time.Second, 10*time.Millisecond)
}
