package repositories

import (
	"context"
	"time"

	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
)

// EmbeddingRepository reads image-embedding records. Implementations never write.
type EmbeddingRepository interface {
	// LatestBefore returns the most recent record for a room collected at or before t,
	// or nil when the room has none.
	LatestBefore(ctx context.Context, roomID string, t time.Time) (*entities.CurrentStateRecord, error)

	// ListInWindow returns records inside the window, most recent first.
	ListInWindow(ctx context.Context, window entities.EmbeddingWindow) ([]*entities.CurrentStateRecord, error)

	// Nearest ranks records inside the query window by ascending vector distance.
	Nearest(ctx context.Context, query entities.NeighbourQuery) ([]entities.NeighbourCandidate, error)
}
