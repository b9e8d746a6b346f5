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

const envStatsTable = "mushroom_env_daily_stats"

// EnvStatsAdapter implements EnvStatsRepository
type EnvStatsAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewEnvStatsAdapter creates a new daily statistics adapter
func NewEnvStatsAdapter(client *postgres.Client) repositories.EnvStatsRepository {
	return &EnvStatsAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// ListByDateRange returns rows in the inclusive date range, oldest first.
func (a *EnvStatsAdapter) ListByDateRange(ctx context.Context, filter entities.EnvStatsFilter) ([]*entities.EnvStatsRecord, error) {
	query, args, err := a.db.From(envStatsTable).Prepared(true).
		Select(
			"room_id", "stat_date", "is_growth_phase", "in_day_num",
			"temp_median", "temp_min", "temp_max", "temp_q25", "temp_q75",
			"humidity_median", "humidity_min", "humidity_max", "humidity_q25", "humidity_q75",
			"co2_median", "co2_min", "co2_max", "co2_q25", "co2_q75",
		).
		Where(
			goqu.Ex{"room_id": filter.RoomID},
			goqu.C("stat_date").Between(goqu.Range(filter.DateFrom, filter.DateTo)),
		).
		Order(goqu.I("stat_date").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build env stats query", err)
	}

	start := time.Now()
	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	observability.RecordDBQuery(ctx, "env_stats.list", time.Since(start), err)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list env stats", err)
	}
	defer rows.Close()

	var records []*entities.EnvStatsRecord
	for rows.Next() {
		record := &entities.EnvStatsRecord{}
		var growthPhase sql.NullBool
		var dayNum sql.NullInt64
		var temp, hum, co2 [5]sql.NullFloat64

		err := rows.Scan(
			&record.RoomID,
			&record.StatDate,
			&growthPhase,
			&dayNum,
			&temp[0], &temp[1], &temp[2], &temp[3], &temp[4],
			&hum[0], &hum[1], &hum[2], &hum[3], &hum[4],
			&co2[0], &co2[1], &co2[2], &co2[3], &co2[4],
		)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan env stats row", err)
		}

		record.IsGrowthPhase = growthPhase.Bool
		record.DayInBatch = nullInt(dayNum)
		record.Temperature = summaryFrom(temp)
		record.Humidity = summaryFrom(hum)
		record.CO2 = summaryFrom(co2)

		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate env stats", err)
	}

	return records, nil
}

// summaryFrom maps median, min, max, q25, q75 columns in that order.
func summaryFrom(cols [5]sql.NullFloat64) entities.StatSummary {
	return entities.StatSummary{
		Median: nullFloat(cols[0]),
		Min:    nullFloat(cols[1]),
		Max:    nullFloat(cols[2]),
		Q25:    nullFloat(cols[3]),
		Q75:    nullFloat(cols[4]),
	}
}
