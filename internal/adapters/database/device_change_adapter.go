package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
	"github.com/mycogrow/growroom-advisor/internal/domain/repositories"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/clients/postgres"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/observability"
	apperrors "github.com/mycogrow/growroom-advisor/pkg/errors"
)

const deviceChangeTable = "device_setpoint_changes"

// DeviceChangeAdapter implements DeviceChangeRepository
type DeviceChangeAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewDeviceChangeAdapter creates a new device change adapter
func NewDeviceChangeAdapter(client *postgres.Client) repositories.DeviceChangeRepository {
	return &DeviceChangeAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// List returns setpoint changes in the inclusive range, newest first
func (a *DeviceChangeAdapter) List(ctx context.Context, filter entities.DeviceChangeFilter) ([]*entities.DeviceChangeRecord, error) {
	ds := a.db.From(deviceChangeTable).Prepared(true).
		Select(
			"id", "room_id", "device_type", "device_name", "point_name", "point_description",
			"change_time", "previous_value", "current_value", "change_magnitude", "change_type",
		).
		Where(
			goqu.Ex{"room_id": filter.RoomID},
			goqu.C("change_time").Between(goqu.Range(filter.From, filter.To)),
		)

	if len(filter.DeviceTypes) > 0 {
		ds = ds.Where(goqu.Ex{"device_type": filter.DeviceTypes})
	}

	query, args, err := ds.Order(goqu.I("change_time").Desc()).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build device change query", err)
	}

	start := time.Now()
	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	observability.RecordDBQuery(ctx, "device_changes.list", time.Since(start), err)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list device changes", err)
	}
	defer rows.Close()

	var changes []*entities.DeviceChangeRecord
	for rows.Next() {
		change := &entities.DeviceChangeRecord{}
		var deviceName, pointDescription, changeType sql.NullString
		var previous, current, magnitude sql.NullFloat64

		err := rows.Scan(
			&change.ID,
			&change.RoomID,
			&change.DeviceType,
			&deviceName,
			&change.PointName,
			&pointDescription,
			&change.ChangedAt,
			&previous,
			&current,
			&magnitude,
			&changeType,
		)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan device change", err)
		}

		change.DeviceName = deviceName.String
		change.PointDescription = pointDescription.String
		change.PreviousValue = nullFloat(previous)
		change.CurrentValue = nullFloat(current)
		change.ChangeMagnitude = nullFloat(magnitude)
		change.ChangeType = entities.ChangeType(changeType.String)

		changes = append(changes, change)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate device changes", err)
	}

	return changes, nil
}
