package repositories

import (
	"context"

	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
)

// DeviceChangeRepository reads the device setpoint-change log.
type DeviceChangeRepository interface {
	// List returns changes inside the inclusive time range, newest first.
	List(ctx context.Context, filter entities.DeviceChangeFilter) ([]*entities.DeviceChangeRecord, error)
}
