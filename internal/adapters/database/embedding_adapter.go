package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
	"github.com/mycogrow/growroom-advisor/internal/domain/repositories"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/clients/postgres"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/observability"
	apperrors "github.com/mycogrow/growroom-advisor/pkg/errors"
	"github.com/pgvector/pgvector-go"
)

const embeddingTable = "mushroom_embedding"

var embeddingColumns = []interface{}{
	"id",
	"room_id",
	"collection_datetime",
	"in_date",
	"in_num",
	"growth_day",
	"embedding",
	"semantic_description",
	"image_quality_score",
	"env_temperature",
	"env_humidity",
	"env_co2",
	"device_config",
}

// EmbeddingAdapter implements EmbeddingRepository on a pgvector table.
type EmbeddingAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewEmbeddingAdapter creates a new embedding adapter
func NewEmbeddingAdapter(client *postgres.Client) repositories.EmbeddingRepository {
	return &EmbeddingAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// LatestBefore returns the most recent record collected at or before t.
func (a *EmbeddingAdapter) LatestBefore(ctx context.Context, roomID string, t time.Time) (*entities.CurrentStateRecord, error) {
	query, args, err := a.db.From(embeddingTable).Prepared(true).
		Select(embeddingColumns...).
		Where(
			goqu.Ex{"room_id": roomID},
			goqu.C("collection_datetime").Lte(t),
		).
		Order(goqu.I("collection_datetime").Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build latest embedding query", err)
	}

	start := time.Now()
	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	observability.RecordDBQuery(ctx, "embedding.latest_before", time.Since(start), err)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query latest embedding record", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, apperrors.NewInternalError("failed to read latest embedding record", err)
		}
		return nil, nil
	}

	record, _, err := scanEmbeddingRow(rows, false)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListInWindow returns records inside the window, most recent first.
func (a *EmbeddingAdapter) ListInWindow(ctx context.Context, window entities.EmbeddingWindow) ([]*entities.CurrentStateRecord, error) {
	ds := a.db.From(embeddingTable).Prepared(true).
		Select(embeddingColumns...).
		Where(windowExpressions(window)...).
		Order(goqu.I("collection_datetime").Desc())

	if window.Limit > 0 {
		ds = ds.Limit(uint(window.Limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build embedding window query", err)
	}

	start := time.Now()
	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	observability.RecordDBQuery(ctx, "embedding.list_window", time.Since(start), err)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list embedding records", err)
	}
	defer rows.Close()

	var records []*entities.CurrentStateRecord
	for rows.Next() {
		record, _, err := scanEmbeddingRow(rows, false)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate embedding records", err)
	}

	return records, nil
}

// Nearest ranks in-window records by cosine distance (pgvector <=>) to the query embedding.
// Filtering happens in the WHERE clause, so distance is only computed for in-scope rows.
func (a *EmbeddingAdapter) Nearest(ctx context.Context, q entities.NeighbourQuery) ([]entities.NeighbourCandidate, error) {
	if len(q.Embedding) == 0 {
		return nil, apperrors.NewValidationError("query embedding is required")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 3
	}

	vec := pgvector.NewVector(q.Embedding)
	columns := append(append([]interface{}{}, embeddingColumns...),
		goqu.L("embedding <=> ?::vector", vec).As("distance"),
	)

	where := append(windowExpressions(q.Window), goqu.C("embedding").IsNotNull())

	query, args, err := a.db.From(embeddingTable).Prepared(true).
		Select(columns...).
		Where(where...).
		Order(goqu.I("distance").Asc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build nearest-neighbour query", err)
	}

	start := time.Now()
	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	observability.RecordDBQuery(ctx, "embedding.nearest", time.Since(start), err)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query nearest embeddings", err)
	}
	defer rows.Close()

	var candidates []entities.NeighbourCandidate
	for rows.Next() {
		record, distance, err := scanEmbeddingRow(rows, true)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, entities.NeighbourCandidate{Record: record, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate nearest embeddings", err)
	}

	return candidates, nil
}

func windowExpressions(w entities.EmbeddingWindow) []exp.Expression {
	exprs := []exp.Expression{
		goqu.Ex{"room_id": w.RoomID},
		goqu.C("in_date").Between(goqu.Range(w.EntryDateFrom, w.EntryDateTo)),
		goqu.C("growth_day").Between(goqu.Range(w.GrowthDayFrom, w.GrowthDayTo)),
	}
	if w.CollectedBefore != nil {
		exprs = append(exprs, goqu.C("collection_datetime").Lte(*w.CollectedBefore))
	}
	return exprs
}

func scanEmbeddingRow(rows *sql.Rows, withDistance bool) (*entities.CurrentStateRecord, float64, error) {
	record := &entities.CurrentStateRecord{}
	var (
		embeddingRaw    []byte
		description     sql.NullString
		quality         sql.NullFloat64
		temperature     sql.NullFloat64
		humidity        sql.NullFloat64
		co2             sql.NullFloat64
		deviceConfigRaw []byte
		batch           sql.NullInt64
		distance        sql.NullFloat64
	)

	dest := []interface{}{
		&record.ID,
		&record.RoomID,
		&record.CollectedAt,
		&record.EntryDate,
		&batch,
		&record.GrowthDay,
		&embeddingRaw,
		&description,
		&quality,
		&temperature,
		&humidity,
		&co2,
		&deviceConfigRaw,
	}
	if withDistance {
		dest = append(dest, &distance)
	}

	if err := rows.Scan(dest...); err != nil {
		return nil, 0, apperrors.NewInternalError("failed to scan embedding record", err)
	}

	if len(embeddingRaw) > 0 {
		if err := record.Embedding.Scan(embeddingRaw); err != nil {
			return nil, 0, apperrors.NewInternalError(fmt.Sprintf("failed to decode embedding of record %d", record.ID), err)
		}
	}

	configs, err := decodeDeviceConfigs(deviceConfigRaw)
	if err != nil {
		return nil, 0, apperrors.NewInternalError(fmt.Sprintf("failed to decode device config of record %d", record.ID), err)
	}

	record.EntryBatch = int(batch.Int64)
	record.SemanticDescription = description.String
	record.ImageQuality = nullFloat(quality)
	record.Sensors = entities.SensorReadings{
		Temperature: nullFloat(temperature),
		Humidity:    nullFloat(humidity),
		CO2:         nullFloat(co2),
	}
	record.DeviceConfigs = configs

	return record, distance.Float64, nil
}
