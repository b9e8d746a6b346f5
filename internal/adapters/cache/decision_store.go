package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
	"github.com/mycogrow/growroom-advisor/internal/domain/providers"
)

const defaultDecisionTTL = 24 * time.Hour

// DecisionStore keeps the latest validated decision per room for downstream consumers.
type DecisionStore struct {
	cache providers.CacheProvider
	ttl   time.Duration
}

// NewDecisionStore creates a store; a non-positive ttl falls back to 24h.
func NewDecisionStore(cache providers.CacheProvider, ttl time.Duration) *DecisionStore {
	if ttl <= 0 {
		ttl = defaultDecisionTTL
	}
	return &DecisionStore{cache: cache, ttl: ttl}
}

func latestDecisionKey(roomID string) string {
	return fmt.Sprintf("decision:latest:%s", roomID)
}

// SaveLatest overwrites the room's latest decision.
func (s *DecisionStore) SaveLatest(ctx context.Context, out *entities.DecisionOutput) error {
	if out == nil || out.RoomID == "" {
		return fmt.Errorf("decision with a room id is required")
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}
	return s.cache.Set(ctx, latestDecisionKey(out.RoomID), data, s.ttl)
}

// Latest returns the room's latest decision, or providers.ErrCacheMiss.
func (s *DecisionStore) Latest(ctx context.Context, roomID string) (*entities.DecisionOutput, error) {
	data, err := s.cache.Get(ctx, latestDecisionKey(roomID))
	if err != nil {
		return nil, err
	}
	var out entities.DecisionOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode cached decision for room %s: %w", roomID, err)
	}
	return &out, nil
}
