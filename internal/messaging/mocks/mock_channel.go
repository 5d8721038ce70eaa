package mocks

import (
	"context"

	"docsearch/internal/messaging"
	"docsearch/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockChannel struct {
	mock.Mock
}

func (m *MockChannel) Publish(ctx context.Context, job model.ProcessingJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockChannel) Consume(ctx context.Context, h messaging.Handler) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

func (m *MockChannel) Close() error {
	args := m.Called()
	return args.Error(0)
}
