// Package mocks provides testify mocks of the engine and event bus boundaries.
package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/jobflow/pkg/models"
)

// MockEngine mocks the arm/disarm surface of the trigger engine.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Arm(job *models.Job) (time.Time, error) {
	args := m.Called(job)

	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockEngine) Disarm(jobID string) {
	m.Called(jobID)
}

func (m *MockEngine) IsArmed(jobID string) bool {
	args := m.Called(jobID)

	return args.Bool(0)
}
