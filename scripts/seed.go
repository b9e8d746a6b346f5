package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/clients/postgres"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/observability"
	"github.com/mycogrow/growroom-advisor/pkg/config"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
)

const (
	seedDays       = 21
	embeddingDim   = 512
	samplesPerDay  = 4
	seedEntryBatch = 120
)

var seedRooms = []string{"607", "611", "612"}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger("growroom-seed", cfg.Env, false)

	ctx := context.Background()
	pgClient, err := postgres.NewClient(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to DB")
	}
	defer pgClient.Close()

	if os.Getenv("RESET_DB") == "true" {
		log.Info().Msg("RESET_DB=true detected, truncating tables before seeding")
		_, err := pgClient.DB().ExecContext(ctx, `
			TRUNCATE TABLE
				mushroom_embedding,
				mushroom_env_daily_stats,
				device_setpoint_changes
			RESTART IDENTITY
		`)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to reset tables")
		}
	}

	db := goqu.New("postgres", pgClient.DB())
	entry := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -seedDays)
	rng := rand.New(rand.NewSource(611))

	for i, room := range seedRooms {
		base := randomDirection(rng)
		observations, stats, changes := roomRows(rng, room, entry, base, float64(i)*0.4)

		for _, rows := range []struct {
			table string
			rows  []goqu.Record
		}{
			{"mushroom_embedding", observations},
			{"mushroom_env_daily_stats", stats},
			{"device_setpoint_changes", changes},
		} {
			if err := insertAll(ctx, db, rows.table, rows.rows); err != nil {
				log.Fatal().Err(err).Str("room_id", room).Str("table", rows.table).Msg("Failed to seed rows")
			}
		}
		log.Info().
			Str("room_id", room).
			Int("observations", len(observations)).
			Int("stats_days", len(stats)).
			Int("changes", len(changes)).
			Msg("room seeded")
	}

	log.Info().Msg("Seeding completed successfully")
}

func insertAll(ctx context.Context, db *goqu.Database, table string, rows []goqu.Record) error {
	if len(rows) == 0 {
		return nil
	}
	values := make([]interface{}, len(rows))
	for i, r := range rows {
		values[i] = r
	}
	_, err := db.Insert(table).Prepared(true).Rows(values...).Executor().ExecContext(ctx)
	return err
}

// roomRows simulates one batch: temperature drifts down slowly while CO2 climbs
// with the growth day, and the fan CO2 threshold is lowered once mid-batch.
func roomRows(rng *rand.Rand, room string, entry time.Time, base []float32, offset float64) ([]goqu.Record, []goqu.Record, []goqu.Record) {
	var observations, stats, changes []goqu.Record
	co2On := 1600.0

	for day := 0; day < seedDays; day++ {
		date := entry.AddDate(0, 0, day)
		temp := 19.0 - 0.05*float64(day) + offset
		humidity := 88.0 + 0.2*float64(day)
		co2 := 900.0 + 35.0*float64(day)

		if day == seedDays/2 {
			changes = append(changes, goqu.Record{
				"room_id":           room,
				"device_type":       "fresh_air_fan",
				"device_name":       fmt.Sprintf("FAN-%s-1", room),
				"point_name":        "co2_on",
				"point_description": "CO2 start threshold",
				"change_time":       date.Add(9 * time.Hour),
				"previous_value":    co2On,
				"current_value":     co2On - 200,
				"change_magnitude":  -200.0,
				"change_type":       "analog_value",
			})
			co2On -= 200
		}

		for s := 0; s < samplesPerDay; s++ {
			configs, _ := json.Marshal(map[string]map[string]float64{
				"air_cooler":    {"tem_set": 18, "tem_diff_set": 1},
				"fresh_air_fan": {"model": 1, "control": 1, "co2_on": co2On, "co2_off": co2On - 400},
				"humidifier":    {"model": 1, "on": 85, "off": 92},
				"grow_light":    {"model": 1, "on_mset": 60, "off_mset": 180},
			})
			observations = append(observations, goqu.Record{
				"room_id":              room,
				"collection_datetime":  date.Add(time.Duration(6*s+2) * time.Hour),
				"in_date":              entry.Format("2006-01-02"),
				"in_num":               seedEntryBatch,
				"growth_day":           day,
				"embedding":            pgvector.NewVector(drift(rng, base, day)),
				"semantic_description": fmt.Sprintf("growth day %d, caps %s", day, stage(day)),
				"image_quality_score":  70 + rng.Float64()*25,
				"env_temperature":      temp + rng.NormFloat64()*0.3,
				"env_humidity":         humidity + rng.NormFloat64(),
				"env_co2":              co2 + rng.NormFloat64()*40,
				"device_config":        string(configs),
			})
		}

		stats = append(stats, goqu.Record{
			"room_id":         room,
			"stat_date":       date.Format("2006-01-02"),
			"is_growth_phase": day > 2,
			"in_day_num":      day,
			"temp_median":     temp,
			"temp_min":        temp - 0.8,
			"temp_max":        temp + 0.9,
			"temp_q25":        temp - 0.3,
			"temp_q75":        temp + 0.3,
			"humidity_median": humidity,
			"humidity_min":    humidity - 4,
			"humidity_max":    math.Min(humidity+3, 100),
			"humidity_q25":    humidity - 1.5,
			"humidity_q75":    humidity + 1.5,
			"co2_median":      co2,
			"co2_min":         co2 - 250,
			"co2_max":         co2 + 400,
			"co2_q25":         co2 - 100,
			"co2_q75":         co2 + 120,
		})
	}
	return observations, stats, changes
}

func randomDirection(rng *rand.Rand) []float32 {
	v := make([]float32, embeddingDim)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return v
}

// drift moves the room's base embedding further away as the batch ages.
func drift(rng *rand.Rand, base []float32, day int) []float32 {
	v := make([]float32, len(base))
	scale := 0.05 + 0.03*float64(day)
	for i := range base {
		v[i] = base[i] + float32(rng.NormFloat64()*scale)
	}
	return v
}

func stage(day int) string {
	switch {
	case day < 5:
		return "not yet visible"
	case day < 12:
		return "pinning"
	default:
		return "expanding"
	}
}
