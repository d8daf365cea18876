package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dump-sleuth/internal/repository"
	"github.com/dump-sleuth/pkg/model"
)

// MockRunRepository is a mock implementation of the RunRepository interface.
type MockRunRepository struct {
	mock.Mock
}

// SaveRun mocks the SaveRun method.
func (m *MockRunRepository) SaveRun(ctx context.Context, result *model.AggregateResult, reportURL string) error {
	args := m.Called(ctx, result, reportURL)
	return args.Error(0)
}

// GetRun mocks the GetRun method.
func (m *MockRunRepository) GetRun(ctx context.Context, runID string) (*repository.AnalysisRun, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.AnalysisRun), args.Error(1)
}

// ListRuns mocks the ListRuns method.
func (m *MockRunRepository) ListRuns(ctx context.Context, limit int) ([]repository.AnalysisRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.AnalysisRun), args.Error(1)
}

// GetModuleResults mocks the GetModuleResults method.
func (m *MockRunRepository) GetModuleResults(ctx context.Context, runID string) ([]repository.ModuleOutcome, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.ModuleOutcome), args.Error(1)
}

// FindArtifacts mocks the FindArtifacts method.
func (m *MockRunRepository) FindArtifacts(ctx context.Context, q repository.ArtifactQuery) ([]repository.Artifact, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.Artifact), args.Error(1)
}

// DeleteRun mocks the DeleteRun method.
func (m *MockRunRepository) DeleteRun(ctx context.Context, runID string) error {
	args := m.Called(ctx, runID)
	return args.Error(0)
}

// ExpectSaveRun sets up an expectation for SaveRun with the given report URL.
func (m *MockRunRepository) ExpectSaveRun(reportURL string, err error) *mock.Call {
	return m.On("SaveRun", mock.Anything, mock.Anything, reportURL).Return(err)
}

// Repositories wraps m so it can stand in for a database connection.
func (m *MockRunRepository) Repositories() *repository.Repositories {
	return &repository.Repositories{Runs: m}
}

var _ repository.RunRepository = (*MockRunRepository)(nil)
