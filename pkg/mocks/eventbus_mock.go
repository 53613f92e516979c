package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/jobflow/pkg/eventbus"
)

// MockEventBus is a mock implementation of eventbus.EventBus.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, key string, event eventbus.Event) error {
	args := m.Called(ctx, key, event)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context, handler eventbus.EventHandler) error {
	args := m.Called(ctx, handler)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

func (m *MockEventBus) GenerateID() string {
	args := m.Called()

	return args.String(0)
}
