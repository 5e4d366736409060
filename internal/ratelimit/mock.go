package ratelimit

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Allow(ctx context.Context, identity string, class Class) bool {
	args := m.Called(ctx, identity, class)
	return args.Bool(0)
}
