package services_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mycogrow/growroom-advisor/internal/domain/entities"
	"github.com/mycogrow/growroom-advisor/internal/domain/providers"
	"github.com/mycogrow/growroom-advisor/internal/infrastructure/devicespec"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mocks

type MockEmbeddingRepository struct {
	mock.Mock
}

func (m *MockEmbeddingRepository) LatestBefore(ctx context.Context, roomID string, t time.Time) (*entities.CurrentStateRecord, error) {
	args := m.Called(ctx, roomID, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.CurrentStateRecord), args.Error(1)
}

func (m *MockEmbeddingRepository) ListInWindow(ctx context.Context, window entities.EmbeddingWindow) ([]*entities.CurrentStateRecord, error) {
	args := m.Called(ctx, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.CurrentStateRecord), args.Error(1)
}

func (m *MockEmbeddingRepository) Nearest(ctx context.Context, q entities.NeighbourQuery) ([]entities.NeighbourCandidate, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.NeighbourCandidate), args.Error(1)
}

type MockEnvStatsRepository struct {
	mock.Mock
}

func (m *MockEnvStatsRepository) ListByDateRange(ctx context.Context, filter entities.EnvStatsFilter) ([]*entities.EnvStatsRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.EnvStatsRecord), args.Error(1)
}

type MockDeviceChangeRepository struct {
	mock.Mock
}

func (m *MockDeviceChangeRepository) List(ctx context.Context, filter entities.DeviceChangeFilter) ([]*entities.DeviceChangeRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.DeviceChangeRecord), args.Error(1)
}

type MockCompletionProvider struct {
	mock.Mock
	model string
}

func (m *MockCompletionProvider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.CompletionResponse), args.Error(1)
}

func (m *MockCompletionProvider) Model() string {
	if m.model == "" {
		return "test-model"
	}
	return m.model
}

// Fixtures

func loadSpec(t *testing.T) *entities.DeviceSpec {
	t.Helper()
	spec, err := devicespec.Load(filepath.Join("..", "..", "..", "config", "device_capabilities.yaml"))
	require.NoError(t, err)
	return spec
}

func f64(v float64) *float64 { return &v }

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}
