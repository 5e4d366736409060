package scanner

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockScanner struct {
	mock.Mock
}

func (m *MockScanner) Scan(ctx context.Context, data []byte) (bool, error) {
	args := m.Called(ctx, data)
	return args.Bool(0), args.Error(1)
}
