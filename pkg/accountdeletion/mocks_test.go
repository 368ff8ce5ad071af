package accountdeletion_test

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
)

type MockIdentityStore struct {
	mock.Mock
}

func (m *MockIdentityStore) Delete(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// flakyEntitlements fails Delete while err is set.
type flakyEntitlements struct {
	*entitlement.Service
	err error
}

func (f *flakyEntitlements) Delete(ctx context.Context, userID uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	return f.Service.Delete(ctx, userID)
}
