package mocks

import (
	"context"

	"github.com/dukex/journey/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) Journeys(ctx context.Context) ([]*models.Journey, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Journey), args.Error(1)
}

func (m *MockPersistence) SaveJourney(ctx context.Context, journey *models.Journey) error {
	args := m.Called(ctx, journey)

	return args.Error(0)
}

func (m *MockPersistence) GetJourney(ctx context.Context, id string) (*models.Journey, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Journey), args.Error(1)
}

func (m *MockPersistence) CreateRun(ctx context.Context, run *models.Run) error {
	args := m.Called(ctx, run)

	return args.Error(0)
}

func (m *MockPersistence) GetRun(ctx context.Context, id string) (*models.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Run), args.Error(1)
}

func (m *MockPersistence) UpdateRunStatusAndNode(ctx context.Context, id string, status models.RunStatus, nodeID *string) error {
	args := m.Called(ctx, id, status, nodeID)

	return args.Error(0)
}

func (m *MockPersistence) RunsByJourney(ctx context.Context, journeyID string) ([]*models.Run, error) {
	args := m.Called(ctx, journeyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Run), args.Error(1)
}

func (m *MockPersistence) RunsByStatus(ctx context.Context, status models.RunStatus) ([]*models.Run, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Run), args.Error(1)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
