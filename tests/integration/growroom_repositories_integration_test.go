//go:build integration

package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/mycogrow/growroom-advisor/internal/adapters/database"
	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
	"github.com/mycogrow/growroom-advisor/internal/domain/repositories"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/clients/postgres"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const testRoom = "611"

// GrowroomRepositoriesIntegrationTestSuite exercises the pgvector-backed repositories
type GrowroomRepositoriesIntegrationTestSuite struct {
	suite.Suite
	client     *postgres.Client
	db         *sql.DB
	embeddings repositories.EmbeddingRepository
	envStats   repositories.EnvStatsRepository
	changes    repositories.DeviceChangeRepository
}

// SetupSuite runs once before the suite
func (suite *GrowroomRepositoriesIntegrationTestSuite) SetupSuite() {
	suite.client = newTestPostgresClient(suite.T())
	suite.db = suite.client.DB()
	suite.embeddings = database.NewEmbeddingAdapter(suite.client)
	suite.envStats = database.NewEnvStatsAdapter(suite.client)
	suite.changes = database.NewDeviceChangeAdapter(suite.client)

	migrationSQL, err := os.ReadFile("../../migrations/001_growroom_schema.sql")
	require.NoError(suite.T(), err, "Failed to read migration file")
	_, err = suite.db.Exec(string(migrationSQL))
	require.NoError(suite.T(), err, "Failed to execute migrations")
}

// TearDownSuite runs once after the suite
func (suite *GrowroomRepositoriesIntegrationTestSuite) TearDownSuite() {
	if suite.client != nil {
		suite.client.Close()
	}
}

// SetupTest runs before each test
func (suite *GrowroomRepositoriesIntegrationTestSuite) SetupTest() {
	for _, table := range []string{"mushroom_embedding", "mushroom_env_daily_stats", "device_setpoint_changes"} {
		_, err := suite.db.Exec(fmt.Sprintf("DELETE FROM %s", table))
		require.NoError(suite.T(), err, fmt.Sprintf("Failed to clean up %s table", table))
	}
}

// unitVector returns a 512-d vector pointing mostly along axis with a small tilt.
func unitVector(axis int, tilt float32) pgvector.Vector {
	v := make([]float32, 512)
	v[axis] = 1
	v[(axis+1)%512] = tilt
	return pgvector.NewVector(v)
}

func (suite *GrowroomRepositoriesIntegrationTestSuite) insertObservation(room string, collected time.Time, entry string, growthDay int, vec pgvector.Vector) {
	query, args, err := goqu.Dialect("postgres").Insert("mushroom_embedding").Prepared(true).Rows(goqu.Record{
		"room_id":              room,
		"collection_datetime":  collected,
		"in_date":              entry,
		"in_num":               120,
		"growth_day":           growthDay,
		"embedding":            vec,
		"semantic_description": fmt.Sprintf("day %d caps forming", growthDay),
		"env_temperature":      18.5,
		"env_humidity":         91.0,
		"device_config":        `{"air_cooler": {"tem_set": 18, "on_off": true}, "fresh_air_fan": {"co2_on": "1500"}}`,
	}).ToSQL()
	require.NoError(suite.T(), err)
	_, err = suite.db.Exec(query, args...)
	require.NoError(suite.T(), err)
}

func (suite *GrowroomRepositoriesIntegrationTestSuite) TestLatestBefore() {
	ctx := context.Background()
	t0 := time.Date(2024, 11, 15, 8, 0, 0, 0, time.UTC)
	suite.insertObservation(testRoom, t0, "2024-11-01", 14, unitVector(0, 0))
	suite.insertObservation(testRoom, t0.Add(2*time.Hour), "2024-11-01", 14, unitVector(0, 0.1))
	suite.insertObservation(testRoom, t0.Add(26*time.Hour), "2024-11-01", 15, unitVector(0, 0.2))
	suite.insertObservation("612", t0.Add(3*time.Hour), "2024-11-01", 14, unitVector(1, 0))

	record, err := suite.embeddings.LatestBefore(ctx, testRoom, t0.Add(3*time.Hour))

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), record)
	assert.True(suite.T(), record.CollectedAt.Equal(t0.Add(2*time.Hour)))
	assert.Equal(suite.T(), 14, record.GrowthDay)
	assert.Equal(suite.T(), 120, record.EntryBatch)
	assert.True(suite.T(), record.HasEmbedding())
	assert.Equal(suite.T(), 18.0, record.DeviceConfigs["air_cooler"]["tem_set"])
	assert.Equal(suite.T(), 1.0, record.DeviceConfigs["air_cooler"]["on_off"])
	assert.Equal(suite.T(), 1500.0, record.DeviceConfigs["fresh_air_fan"]["co2_on"])

	none, err := suite.embeddings.LatestBefore(ctx, testRoom, t0.Add(-time.Minute))
	require.NoError(suite.T(), err)
	assert.Nil(suite.T(), none)
}

func (suite *GrowroomRepositoriesIntegrationTestSuite) TestNearestRanksByCosineDistanceInsideWindow() {
	ctx := context.Background()
	t0 := time.Date(2024, 11, 10, 8, 0, 0, 0, time.UTC)
	suite.insertObservation(testRoom, t0, "2024-11-01", 10, unitVector(0, 0.5))
	suite.insertObservation(testRoom, t0.Add(time.Hour), "2024-11-02", 11, unitVector(0, 0.1))
	suite.insertObservation(testRoom, t0.Add(2*time.Hour), "2024-11-02", 11, unitVector(5, 0))
	suite.insertObservation(testRoom, t0.Add(3*time.Hour), "2024-10-01", 11, unitVector(0, 0)) // outside entry window
	suite.insertObservation(testRoom, t0.Add(4*time.Hour), "2024-11-02", 30, unitVector(0, 0)) // outside growth window
	suite.insertObservation("612", t0.Add(5*time.Hour), "2024-11-02", 11, unitVector(0, 0))    // other room

	window := entities.NewEmbeddingWindow(testRoom, time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC), 11, 7, 3)
	candidates, err := suite.embeddings.Nearest(ctx, entities.NeighbourQuery{
		Embedding: unitVector(0, 0).Slice(),
		Window:    window,
		Limit:     3,
	})

	require.NoError(suite.T(), err)
	require.Len(suite.T(), candidates, 3)
	assert.Equal(suite.T(), 11, candidates[0].Record.GrowthDay)
	assert.Less(suite.T(), candidates[0].Distance, candidates[1].Distance)
	assert.Less(suite.T(), candidates[1].Distance, candidates[2].Distance)
	assert.InDelta(suite.T(), 1.0, candidates[2].Distance, 1e-6)

	listed, err := suite.embeddings.ListInWindow(ctx, window)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), listed, 3)
}

func (suite *GrowroomRepositoriesIntegrationTestSuite) TestEnvStatsOrderedByDate() {
	ctx := context.Background()
	for i, day := range []string{"2024-11-15", "2024-11-13", "2024-11-14"} {
		_, err := suite.db.Exec(`INSERT INTO mushroom_env_daily_stats (room_id, stat_date, is_growth_phase, in_day_num, temp_median, humidity_median)
			VALUES ($1, $2, TRUE, $3, $4, NULL)`, testRoom, day, 12+i, 18.0+float64(i))
		require.NoError(suite.T(), err)
	}

	records, err := suite.envStats.ListByDateRange(ctx, entities.EnvStatsFilter{
		RoomID:   testRoom,
		DateFrom: time.Date(2024, 11, 14, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2024, 11, 15, 0, 0, 0, 0, time.UTC),
	})

	require.NoError(suite.T(), err)
	require.Len(suite.T(), records, 2)
	assert.Equal(suite.T(), "2024-11-14", records[0].StatDate.Format("2006-01-02"))
	assert.Equal(suite.T(), "2024-11-15", records[1].StatDate.Format("2006-01-02"))
	require.NotNil(suite.T(), records[1].Temperature.Median)
	assert.Equal(suite.T(), 18.0, *records[1].Temperature.Median)
	assert.Nil(suite.T(), records[1].Humidity.Median)
}

func (suite *GrowroomRepositoriesIntegrationTestSuite) TestDeviceChangesNewestFirstWithFilter() {
	ctx := context.Background()
	t0 := time.Date(2024, 11, 14, 0, 0, 0, 0, time.UTC)
	rows := []struct {
		device string
		at     time.Time
	}{
		{"air_cooler", t0},
		{"fresh_air_fan", t0.Add(6 * time.Hour)},
		{"air_cooler", t0.Add(12 * time.Hour)},
		{"air_cooler", t0.Add(48 * time.Hour)},
	}
	for _, r := range rows {
		_, err := suite.db.Exec(`INSERT INTO device_setpoint_changes (room_id, device_type, point_name, change_time, previous_value, current_value, change_magnitude, change_type)
			VALUES ($1, $2, 'tem_set', $3, 18, 17, -1, 'analog_value')`, testRoom, r.device, r.at)
		require.NoError(suite.T(), err)
	}

	changes, err := suite.changes.List(ctx, entities.DeviceChangeFilter{
		RoomID:      testRoom,
		From:        t0,
		To:          t0.Add(12 * time.Hour),
		DeviceTypes: []string{"air_cooler"},
	})

	require.NoError(suite.T(), err)
	require.Len(suite.T(), changes, 2)
	assert.True(suite.T(), changes[0].ChangedAt.Equal(t0.Add(12*time.Hour)))
	assert.True(suite.T(), changes[1].ChangedAt.Equal(t0))
	assert.Equal(suite.T(), entities.ChangeAnalogValue, changes[0].ChangeType)
	assert.Empty(suite.T(), changes[0].DeviceName)
}

func TestGrowroomRepositoriesIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(GrowroomRepositoriesIntegrationTestSuite))
}
