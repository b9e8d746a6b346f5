package repositories

import (
	"context"

	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
)

// EnvStatsRepository reads daily environmental statistics.
type EnvStatsRepository interface {
	// ListByDateRange returns rows in [DateFrom, DateTo] ordered by date ascending.
	ListByDateRange(ctx context.Context, filter entities.EnvStatsFilter) ([]*entities.EnvStatsRecord, error)
}
