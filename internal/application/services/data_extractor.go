package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
	"github.com/mycogrow/growroom-advisor/internal/domain/repositories"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/observability"
)

// TrendThresholds are the percent changes above which a day-over-day move counts as rising or falling.
type TrendThresholds struct {
	Temperature float64
	Humidity    float64
	CO2         float64
}

// DefaultTrendThresholds returns ±2% temperature, ±3% humidity, ±5% CO2.
func DefaultTrendThresholds() TrendThresholds {
	return TrendThresholds{Temperature: 2, Humidity: 3, CO2: 5}
}

func (t TrendThresholds) forParam(p entities.EnvParameter) float64 {
	switch p {
	case entities.ParamTemperature:
		return t.Temperature
	case entities.ParamHumidity:
		return t.Humidity
	case entities.ParamCO2:
		return t.CO2
	}
	return 0
}

// EnvRange is a sane physical range for one parameter.
type EnvRange struct {
	Min float64
	Max float64
}

var envSanityRanges = map[entities.EnvParameter]EnvRange{
	entities.ParamTemperature: {Min: 0, Max: 40},
	entities.ParamHumidity:    {Min: 0, Max: 100},
	entities.ParamCO2:         {Min: 0, Max: 5000},
}

// ExtractionReport describes what one extraction returned.
type ExtractionReport struct {
	// Candidates is the number of rows storage returned before in-memory checks.
	Candidates int
	Discarded  int
	Warnings   []string
}

func (r *ExtractionReport) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// DataExtractor reads the three source tables and returns windowed, checked subsets.
// Storage failures never escape: they become empty results plus warnings.
type DataExtractor struct {
	embeddings repositories.EmbeddingRepository
	envStats   repositories.EnvStatsRepository
	changes    repositories.DeviceChangeRepository
	thresholds TrendThresholds
}

// NewDataExtractor creates a new data extractor
func NewDataExtractor(
	embeddings repositories.EmbeddingRepository,
	envStats repositories.EnvStatsRepository,
	changes repositories.DeviceChangeRepository,
	thresholds TrendThresholds,
) *DataExtractor {
	return &DataExtractor{
		embeddings: embeddings,
		envStats:   envStats,
		changes:    changes,
		thresholds: thresholds,
	}
}

// ExtractCurrentState finds the room's reference record at or before target, then
// returns the most recent record within ±dateWindowDays of its entry date and
// ±growthDayWindow of its growth day. A nil record means nothing matched.
func (e *DataExtractor) ExtractCurrentState(ctx context.Context, roomID string, target time.Time, dateWindowDays, growthDayWindow int) (*entities.CurrentStateRecord, ExtractionReport) {
	logger := observability.LoggerFromContext(ctx).With().
		Str("room_id", roomID).
		Time("target", target).
		Logger()
	var report ExtractionReport

	reference, err := e.embeddings.LatestBefore(ctx, roomID, target)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load reference embedding record")
		report.warn("current state unavailable for room %s: %v", roomID, err)
		return nil, report
	}
	if reference == nil {
		logger.Warn().Msg("no embedding record at or before target time")
		report.warn("no observation found for room %s at or before %s", roomID, target.Format(time.RFC3339))
		return nil, report
	}

	window := entities.NewEmbeddingWindow(roomID, reference.EntryDate, reference.GrowthDay, dateWindowDays, growthDayWindow)
	window.CollectedBefore = &target

	records, err := e.embeddings.ListInWindow(ctx, window)
	if err != nil {
		logger.Error().Err(err).
			Int("growth_day", reference.GrowthDay).
			Msg("failed to list embedding records in window")
		report.warn("current state window query failed for room %s: %v", roomID, err)
		return nil, report
	}
	report.Candidates = len(records)

	var latest *entities.CurrentStateRecord
	for _, r := range records {
		if !window.Contains(r) {
			report.Discarded++
			continue
		}
		if latest == nil || r.CollectedAt.After(latest.CollectedAt) {
			latest = r
		}
	}
	if report.Discarded > 0 {
		logger.Warn().Int("discarded", report.Discarded).Msg("storage returned records outside the requested window")
		report.warn("%d embedding records outside the requested window were ignored", report.Discarded)
	}

	if latest == nil {
		logger.Warn().
			Int("growth_day", reference.GrowthDay).
			Time("entry_date", reference.EntryDate).
			Msg("no embedding record inside the window")
		report.warn("no observation for room %s within ±%d days / ±%d growth days of the reference record",
			roomID, dateWindowDays, growthDayWindow)
		return nil, report
	}

	if latest.GrowthDay < 0 {
		report.warn("record %d has negative growth day %d", latest.ID, latest.GrowthDay)
	}

	logger.Debug().
		Int64("record_id", latest.ID).
		Int("candidates", report.Candidates).
		Msg("current state extracted")
	return latest, report
}

// ExtractEnvStats returns daily statistics for [targetDate-daysRange, targetDate+daysRange],
// oldest first, with day-over-day trends filled in.
func (e *DataExtractor) ExtractEnvStats(ctx context.Context, roomID string, targetDate time.Time, daysRange int) ([]*entities.EnvStatsRecord, ExtractionReport) {
	logger := observability.LoggerFromContext(ctx).With().Str("room_id", roomID).Logger()
	var report ExtractionReport

	if daysRange < 0 {
		daysRange = 0
	}
	day := calendarDay(targetDate)
	filter := entities.EnvStatsFilter{
		RoomID:   roomID,
		DateFrom: day.AddDate(0, 0, -daysRange),
		DateTo:   day.AddDate(0, 0, daysRange),
	}

	rows, err := e.envStats.ListByDateRange(ctx, filter)
	if err != nil {
		logger.Error().Err(err).
			Time("date_from", filter.DateFrom).
			Time("date_to", filter.DateTo).
			Msg("failed to load env stats")
		report.warn("environment statistics unavailable for room %s: %v", roomID, err)
		return nil, report
	}
	report.Candidates = len(rows)

	kept := make([]*entities.EnvStatsRecord, 0, len(rows))
	for _, r := range rows {
		if r == nil || r.RoomID != roomID {
			report.Discarded++
			continue
		}
		d := calendarDay(r.StatDate)
		if d.Before(filter.DateFrom) || d.After(filter.DateTo) {
			report.Discarded++
			continue
		}
		kept = append(kept, r)
	}
	if report.Discarded > 0 {
		logger.Warn().Int("discarded", report.Discarded).Msg("storage returned env stats outside the requested window")
		report.warn("%d env stats rows outside the requested window were ignored", report.Discarded)
	}
	if len(kept) == 0 {
		logger.Warn().Msg("no env stats in window")
		report.warn("no environment statistics for room %s between %s and %s",
			roomID, filter.DateFrom.Format("2006-01-02"), filter.DateTo.Format("2006-01-02"))
		return kept, report
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].StatDate.Before(kept[j].StatDate) })
	ApplyTrends(kept, e.thresholds)

	return kept, report
}

// ApplyTrends fills each row's trend fields by comparing its medians with the
// previous row. Rows must be sorted ascending by date. Trends stay nil when the
// previous row is not the preceding calendar day or its median is missing or zero.
func ApplyTrends(rows []*entities.EnvStatsRecord, thresholds TrendThresholds) {
	for i, row := range rows {
		for _, p := range entities.EnvParameters() {
			row.SetTrend(p, entities.Trend{})
		}
		if i == 0 {
			continue
		}
		prev := rows[i-1]
		if !calendarDay(prev.StatDate).AddDate(0, 0, 1).Equal(calendarDay(row.StatDate)) {
			continue
		}
		for _, p := range entities.EnvParameters() {
			row.SetTrend(p, computeTrend(prev.Summary(p).Median, row.Summary(p).Median, thresholds.forParam(p)))
		}
	}
}

func computeTrend(prev, cur *float64, threshold float64) entities.Trend {
	if prev == nil || cur == nil || *prev == 0 {
		return entities.Trend{}
	}
	pct := roundTo((*cur-*prev)/math.Abs(*prev)*100, 2)
	dir := entities.TrendStable
	switch {
	case pct > threshold:
		dir = entities.TrendRising
	case pct < -threshold:
		dir = entities.TrendFalling
	}
	return entities.Trend{ChangePct: &pct, Direction: &dir}
}

// ExtractDeviceChanges returns setpoint changes in [start, end], newest first.
// An empty deviceTypes list means every device type.
func (e *DataExtractor) ExtractDeviceChanges(ctx context.Context, roomID string, start, end time.Time, deviceTypes []string) ([]*entities.DeviceChangeRecord, ExtractionReport) {
	logger := observability.LoggerFromContext(ctx).With().Str("room_id", roomID).Logger()
	var report ExtractionReport

	if end.Before(start) {
		report.warn("device change range is empty: %s is after %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
		return nil, report
	}

	filter := entities.DeviceChangeFilter{
		RoomID:      roomID,
		From:        start,
		To:          end,
		DeviceTypes: deviceTypes,
	}
	rows, err := e.changes.List(ctx, filter)
	if err != nil {
		logger.Error().Err(err).
			Time("from", start).
			Time("to", end).
			Strs("device_types", deviceTypes).
			Msg("failed to load device changes")
		report.warn("device change history unavailable for room %s: %v", roomID, err)
		return nil, report
	}
	report.Candidates = len(rows)

	kept := make([]*entities.DeviceChangeRecord, 0, len(rows))
	for _, r := range rows {
		if !filter.Matches(r) {
			report.Discarded++
			continue
		}
		kept = append(kept, r)
	}
	if report.Discarded > 0 {
		logger.Warn().Int("discarded", report.Discarded).Msg("storage returned device changes outside the filter")
		report.warn("%d device changes outside the requested range were ignored", report.Discarded)
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].ChangedAt.After(kept[j].ChangedAt) })
	return kept, report
}

// ValidateEnvParams reports readings outside sane physical ranges. Missing values
// are skipped and nothing is removed.
func ValidateEnvParams(current *entities.CurrentStateRecord, stats []*entities.EnvStatsRecord) []string {
	var warnings []string
	check := func(source string, p entities.EnvParameter, stat string, v *float64) {
		if v == nil {
			return
		}
		r := envSanityRanges[p]
		if math.IsNaN(*v) || *v < r.Min || *v > r.Max {
			name := string(p)
			if stat != "" {
				name += "." + stat
			}
			warnings = append(warnings, fmt.Sprintf("%s: %s=%s outside sane range [%s, %s]",
				source, name, formatNumber(*v), formatNumber(r.Min), formatNumber(r.Max)))
		}
	}

	if current != nil {
		source := fmt.Sprintf("current state %s", current.CollectedAt.Format(time.RFC3339))
		check(source, entities.ParamTemperature, "", current.Sensors.Temperature)
		check(source, entities.ParamHumidity, "", current.Sensors.Humidity)
		check(source, entities.ParamCO2, "", current.Sensors.CO2)
	}

	for _, row := range stats {
		if row == nil {
			continue
		}
		source := fmt.Sprintf("env stats %s", row.StatDate.Format("2006-01-02"))
		for _, p := range entities.EnvParameters() {
			s := row.Summary(p)
			check(source, p, "median", s.Median)
			check(source, p, "min", s.Min)
			check(source, p, "max", s.Max)
			check(source, p, "q25", s.Q25)
			check(source, p, "q75", s.Q75)
		}
	}
	return warnings
}

// calendarDay keeps t's calendar date in its own location and pins it to UTC
// midnight so DATE columns and local analysis times compare by date.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
