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

// ConfidenceBands split similarity scores into high (> High), medium and low (< Low).
type ConfidenceBands struct {
	High float64
	Low  float64
}

// DefaultConfidenceBands returns the 60 / 20 bands.
func DefaultConfidenceBands() ConfidenceBands {
	return ConfidenceBands{High: 60, Low: 20}
}

// Classify maps a similarity score to a confidence level.
func (b ConfidenceBands) Classify(similarity float64) entities.ConfidenceLevel {
	switch {
	case similarity > b.High:
		return entities.ConfidenceHigh
	case similarity >= b.Low:
		return entities.ConfidenceMedium
	default:
		return entities.ConfidenceLow
	}
}

// ClassifyConfidence classifies with the default bands.
func ClassifyConfidence(similarity float64) entities.ConfidenceLevel {
	return DefaultConfidenceBands().Classify(similarity)
}

// SimilarityFromDistance converts a cosine distance into a 0-100 score:
// 100 × (1 − d/2)², with d clamped to [0, 2], rounded to two decimals.
func SimilarityFromDistance(distance float64) float64 {
	d := distance
	switch {
	case math.IsNaN(d) || d > 2:
		d = 2
	case d < 0:
		d = 0
	}
	r := 1 - d/2
	return roundTo(100*r*r, 2)
}

// CaseQuery describes one similarity lookup.
type CaseQuery struct {
	Embedding       []float32
	RoomID          string
	EntryDate       time.Time
	GrowthDay       int
	TopK            int
	DateWindowDays  int
	GrowthDayWindow int
	// CollectedBefore excludes records collected after the analysis time.
	CollectedBefore *time.Time
	// ExcludeRecordID drops the query record itself from the neighbours.
	ExcludeRecordID int64
}

// CaseMatcher retrieves the most similar historical observations of a room.
type CaseMatcher struct {
	repo  repositories.EmbeddingRepository
	bands ConfidenceBands
}

// NewCaseMatcher creates a new case matcher
func NewCaseMatcher(repo repositories.EmbeddingRepository, bands ConfidenceBands) *CaseMatcher {
	return &CaseMatcher{repo: repo, bands: bands}
}

// FindSimilarCases returns up to TopK neighbours ordered by decreasing similarity.
// Candidates are restricted to the room, entry date window and growth-day window
// before ranking. Failures yield an empty list and a warning.
func (m *CaseMatcher) FindSimilarCases(ctx context.Context, q CaseQuery) ([]*entities.SimilarCase, []string) {
	logger := observability.LoggerFromContext(ctx).With().
		Str("room_id", q.RoomID).
		Int("growth_day", q.GrowthDay).
		Logger()

	if len(q.Embedding) == 0 {
		logger.Warn().Msg("no query embedding, skipping similarity search")
		return nil, []string{"similar cases unavailable: current state has no embedding"}
	}
	topK := q.TopK
	if topK <= 0 {
		topK = 3
	}

	window := entities.NewEmbeddingWindow(q.RoomID, q.EntryDate, q.GrowthDay, q.DateWindowDays, q.GrowthDayWindow)
	window.CollectedBefore = q.CollectedBefore

	// Over-fetch so rows dropped by the scope re-check below do not starve TopK.
	limit := topK * 2
	if q.ExcludeRecordID != 0 {
		limit++
	}

	candidates, err := m.repo.Nearest(ctx, entities.NeighbourQuery{
		Window:    window,
		Embedding: q.Embedding,
		Limit:     limit,
	})
	if err != nil {
		logger.Error().Err(err).Msg("similarity search failed")
		return nil, []string{fmt.Sprintf("similar cases unavailable: %v", err)}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Distance < candidates[j].Distance })

	var warnings []string
	cases := make([]*entities.SimilarCase, 0, topK)
	for _, c := range candidates {
		if len(cases) == topK {
			break
		}
		if c.Record == nil || (q.ExcludeRecordID != 0 && c.Record.ID == q.ExcludeRecordID) {
			continue
		}
		if !window.Contains(c.Record) {
			logger.Warn().Int64("record_id", c.Record.ID).Msg("neighbour outside the requested window ignored")
			continue
		}

		sc := m.toSimilarCase(c)
		if sc.Confidence == entities.ConfidenceLow {
			logger.Warn().
				Int64("record_id", sc.RecordID).
				Float64("similarity", sc.Similarity).
				Msg("low-confidence similar case")
			warnings = append(warnings, fmt.Sprintf("similar case %d has low confidence (similarity %s%%)",
				sc.RecordID, formatNumber(sc.Similarity)))
		}
		cases = append(cases, sc)
	}

	if len(cases) == 0 {
		logger.Warn().Msg("no similar cases in window")
		warnings = append(warnings, fmt.Sprintf("no similar historical cases for room %s within ±%d days / ±%d growth days",
			q.RoomID, q.DateWindowDays, q.GrowthDayWindow))
	}
	return cases, warnings
}

func (m *CaseMatcher) toSimilarCase(c entities.NeighbourCandidate) *entities.SimilarCase {
	similarity := SimilarityFromDistance(c.Distance)
	r := c.Record
	return &entities.SimilarCase{
		RecordID:        r.ID,
		RoomID:          r.RoomID,
		GrowthDay:       r.GrowthDay,
		EntryDate:       r.EntryDate,
		CollectedAt:     r.CollectedAt,
		Distance:        c.Distance,
		Similarity:      similarity,
		Confidence:      m.bands.Classify(similarity),
		Sensors:         r.Sensors,
		DeviceConfigs:   r.DeviceConfigs,
		SemanticSummary: r.SemanticDescription,
	}
}

// AverageSimilarity returns the mean score of cases, or 0 for none.
func AverageSimilarity(cases []*entities.SimilarCase) float64 {
	if len(cases) == 0 {
		return 0
	}
	var sum float64
	for _, c := range cases {
		sum += c.Similarity
	}
	return roundTo(sum/float64(len(cases)), 2)
}
