package ratelimiter_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/entitlements/pkg/ratelimiter"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ConsumeTokens(ctx context.Context, key string, tokens int, config ratelimiter.Config) (int, time.Time, error) {
	args := m.Called(ctx, key, tokens, config)
	return args.Int(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockStore) Reset(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
