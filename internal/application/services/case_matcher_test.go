package services_test

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/mycogrow/growroom-advisor/internal/application/services"
	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSimilarityFromDistance(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{0, 100},
		{2, 0},
		{1, 25},
		{0.5, 56.25},
		{0.2, 81},
		{-0.3, 100},
		{3.7, 0},
		{math.NaN(), 0},
		{0.123, 88.08},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, services.SimilarityFromDistance(tt.distance), "distance %v", tt.distance)
	}
}

func TestSimilarityFromDistance_BoundedAndMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		a := rng.Float64()*4 - 1
		b := rng.Float64()*4 - 1
		sa, sb := services.SimilarityFromDistance(a), services.SimilarityFromDistance(b)
		assert.GreaterOrEqual(t, sa, 0.0)
		assert.LessOrEqual(t, sa, 100.0)
		if a <= b {
			assert.GreaterOrEqual(t, sa, sb)
		}
	}
}

func TestClassifyConfidence(t *testing.T) {
	tests := []struct {
		similarity float64
		want       entities.ConfidenceLevel
	}{
		{100, entities.ConfidenceHigh},
		{61, entities.ConfidenceHigh},
		{60.01, entities.ConfidenceHigh},
		{60, entities.ConfidenceMedium},
		{20, entities.ConfidenceMedium},
		{19.99, entities.ConfidenceLow},
		{19.9, entities.ConfidenceLow},
		{0, entities.ConfidenceLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, services.ClassifyConfidence(tt.similarity), "similarity %v", tt.similarity)
	}
}

func candidate(id int64, room string, distance float64) entities.NeighbourCandidate {
	return entities.NeighbourCandidate{
		Record: &entities.CurrentStateRecord{
			ID:          id,
			RoomID:      room,
			EntryDate:   day("2024-11-08"),
			GrowthDay:   12,
			CollectedAt: at("2024-11-15 09:00"),
		},
		Distance: distance,
	}
}

func caseQuery() services.CaseQuery {
	before := at("2024-11-20 10:00")
	return services.CaseQuery{
		Embedding:       []float32{0.1, 0.2, 0.3},
		RoomID:          "611",
		EntryDate:       day("2024-11-08"),
		GrowthDay:       12,
		TopK:            3,
		DateWindowDays:  7,
		GrowthDayWindow: 3,
		CollectedBefore: &before,
		ExcludeRecordID: 100,
	}
}

func TestCaseMatcher_FindSimilarCases(t *testing.T) {
	t.Run("ranks by similarity and drops the query record", func(t *testing.T) {
		repo := new(MockEmbeddingRepository)
		matcher := services.NewCaseMatcher(repo, services.DefaultConfidenceBands())
		q := caseQuery()

		repo.On("Nearest", mock.Anything, mock.MatchedBy(func(nq entities.NeighbourQuery) bool {
			return nq.Limit == 7 && nq.Window.RoomID == "611" &&
				nq.Window.GrowthDayFrom == 9 && nq.Window.GrowthDayTo == 15 &&
				nq.Window.CollectedBefore != nil && len(nq.Embedding) == 3
		})).Return([]entities.NeighbourCandidate{
			candidate(3, "611", 0.5),
			candidate(100, "611", 0),
			candidate(1, "611", 0.1),
			candidate(2, "611", 0.3),
		}, nil)

		cases, warnings := matcher.FindSimilarCases(context.Background(), q)

		require.Len(t, cases, 3)
		assert.Equal(t, []int64{1, 2, 3}, []int64{cases[0].RecordID, cases[1].RecordID, cases[2].RecordID})
		assert.Equal(t, 90.25, cases[0].Similarity)
		assert.Equal(t, entities.ConfidenceHigh, cases[0].Confidence)
		assert.Equal(t, entities.ConfidenceMedium, cases[2].Confidence)
		for i := 1; i < len(cases); i++ {
			assert.GreaterOrEqual(t, cases[i-1].Similarity, cases[i].Similarity)
		}
		assert.Empty(t, warnings)
		repo.AssertExpectations(t)
	})

	t.Run("neighbours outside the window are ignored", func(t *testing.T) {
		repo := new(MockEmbeddingRepository)
		matcher := services.NewCaseMatcher(repo, services.DefaultConfidenceBands())

		outOfWindow := candidate(5, "611", 0.05)
		outOfWindow.Record.GrowthDay = 30
		repo.On("Nearest", mock.Anything, mock.Anything).Return([]entities.NeighbourCandidate{
			outOfWindow,
			candidate(6, "612", 0.06),
			candidate(7, "611", 0.4),
		}, nil)

		cases, _ := matcher.FindSimilarCases(context.Background(), caseQuery())

		require.Len(t, cases, 1)
		assert.Equal(t, int64(7), cases[0].RecordID)
	})

	t.Run("rejected neighbours do not shrink the result below top k", func(t *testing.T) {
		repo := new(MockEmbeddingRepository)
		matcher := services.NewCaseMatcher(repo, services.DefaultConfidenceBands())

		tooLate := candidate(10, "611", 0.01)
		tooLate.Record.CollectedAt = at("2024-11-21 08:00")
		otherBatch := candidate(11, "611", 0.02)
		otherBatch.Record.EntryDate = day("2024-09-01")
		repo.On("Nearest", mock.Anything, mock.MatchedBy(func(nq entities.NeighbourQuery) bool {
			return nq.Limit > 3+2
		})).Return([]entities.NeighbourCandidate{
			tooLate,
			otherBatch,
			candidate(12, "611", 0.1),
			candidate(13, "611", 0.2),
			candidate(14, "611", 0.3),
			candidate(15, "611", 0.4),
		}, nil)

		cases, _ := matcher.FindSimilarCases(context.Background(), caseQuery())

		require.Len(t, cases, 3)
		assert.Equal(t, []int64{12, 13, 14}, []int64{cases[0].RecordID, cases[1].RecordID, cases[2].RecordID})
		repo.AssertExpectations(t)
	})

	t.Run("low confidence neighbours are kept with a warning", func(t *testing.T) {
		repo := new(MockEmbeddingRepository)
		matcher := services.NewCaseMatcher(repo, services.DefaultConfidenceBands())
		repo.On("Nearest", mock.Anything, mock.Anything).Return([]entities.NeighbourCandidate{
			candidate(8, "611", 1.2),
		}, nil)

		cases, warnings := matcher.FindSimilarCases(context.Background(), caseQuery())

		require.Len(t, cases, 1)
		assert.Equal(t, 16.0, cases[0].Similarity)
		assert.Equal(t, entities.ConfidenceLow, cases[0].Confidence)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "low confidence")
	})

	t.Run("no neighbours is a warning, not an error", func(t *testing.T) {
		repo := new(MockEmbeddingRepository)
		matcher := services.NewCaseMatcher(repo, services.DefaultConfidenceBands())
		repo.On("Nearest", mock.Anything, mock.Anything).Return([]entities.NeighbourCandidate{}, nil)

		cases, warnings := matcher.FindSimilarCases(context.Background(), caseQuery())

		assert.Empty(t, cases)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "no similar historical cases")
	})

	t.Run("missing embedding skips the lookup", func(t *testing.T) {
		repo := new(MockEmbeddingRepository)
		matcher := services.NewCaseMatcher(repo, services.DefaultConfidenceBands())
		q := caseQuery()
		q.Embedding = nil

		cases, warnings := matcher.FindSimilarCases(context.Background(), q)

		assert.Empty(t, cases)
		assert.Len(t, warnings, 1)
		repo.AssertNotCalled(t, "Nearest", mock.Anything, mock.Anything)
	})

	t.Run("storage failure yields no cases", func(t *testing.T) {
		repo := new(MockEmbeddingRepository)
		matcher := services.NewCaseMatcher(repo, services.DefaultConfidenceBands())
		repo.On("Nearest", mock.Anything, mock.Anything).Return(nil, errors.New("index missing"))

		cases, warnings := matcher.FindSimilarCases(context.Background(), caseQuery())

		assert.Empty(t, cases)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "index missing")
	})
}

func TestAverageSimilarity(t *testing.T) {
	assert.Equal(t, 0.0, services.AverageSimilarity(nil))
	assert.Equal(t, 50.33, services.AverageSimilarity([]*entities.SimilarCase{
		{Similarity: 81}, {Similarity: 56.25}, {Similarity: 13.75},
	}))
}
