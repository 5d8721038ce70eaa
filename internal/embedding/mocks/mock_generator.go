package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	var vec []float32
	if v := args.Get(0); v != nil {
		vec = v.([]float32)
	}
	return vec, args.Error(1)
}

func (m *MockGenerator) Dimension() int {
	args := m.Called()
	return args.Int(0)
}
