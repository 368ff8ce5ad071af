package accountdeletion_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/accountdeletion"
	"github.com/dmitrymomot/entitlements/pkg/audit"
	"github.com/dmitrymomot/entitlements/pkg/billing"
	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/fault"
)

type fixture struct {
	store      *entitlement.MemoryStore
	ents       *flakyEntitlements
	identities *MockIdentityStore
	repo       *billing.MemoryRepository
	provider   *billing.MemoryProvider
	usage      *accountdeletion.MemoryRows
	feedback   *accountdeletion.MemoryRows
	audit      *audit.MemoryStorage
	orch       *accountdeletion.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := entitlement.NewMemoryStore()
	f := &fixture{
		store:      store,
		ents:       &flakyEntitlements{Service: entitlement.NewService(store)},
		identities: &MockIdentityStore{},
		repo:       billing.NewMemoryRepository(),
		provider:   billing.NewMemoryProvider("test", "whsec"),
		usage:      accountdeletion.NewMemoryRows(),
		feedback:   accountdeletion.NewMemoryRows(),
		audit:      audit.NewMemoryStorage(),
	}
	f.orch = accountdeletion.NewOrchestrator(f.ents, f.identities, f.repo, f.provider,
		accountdeletion.WithRetryDelay(0),
		accountdeletion.WithChildTables(
			accountdeletion.ChildTable{Name: accountdeletion.TableUsageHistory, Rows: f.usage},
			accountdeletion.ChildTable{Name: accountdeletion.TableFeedback, Rows: f.feedback},
			accountdeletion.ChildTable{Name: accountdeletion.TableAuditLog, Rows: f.audit},
		),
	)
	return f
}

// seedCardUser creates a premium card user with a mapping, a live
// subscription, a record, an order and some child rows.
func (f *fixture) seedCardUser(t *testing.T, userID uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	_, created, err := f.repo.InsertMapping(ctx, userID, "cus_1", "test")
	require.NoError(t, err)
	require.True(t, created)

	end := time.Now().Add(30 * 24 * time.Hour).UTC()
	f.provider.AddSubscription(billing.Subscription{
		ID: "sub_1", CustomerID: "cus_1", Status: billing.StatusActive, CurrentPeriodEnd: &end,
	})
	require.NoError(t, f.repo.UpsertSubscriptionRecord(ctx, billing.SubscriptionRecord{
		CustomerID: "cus_1", SubscriptionID: "sub_1", Status: billing.StatusActive,
	}))
	require.NoError(t, f.repo.RecordOrder(ctx, billing.Order{
		CustomerID: "cus_1", UserID: userID, SessionID: "cs_1", Status: "paid",
	}))

	e := entitlement.New(userID)
	e.Status = entitlement.StatusPremium
	e.PaymentMethod = entitlement.CardPayment{CustomerID: "cus_1", SubscriptionID: "sub_1"}
	f.store.Put(e)

	f.usage.Add(userID, 3)
	f.feedback.Add(userID, 1)
	require.NoError(t, f.audit.Store(ctx, audit.Entry{ID: uuid.New(), UserID: userID, Action: "checkout", CreatedAt: time.Now()}))
}

func (f *fixture) assertNothingLeft(t *testing.T, userID uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	_, err := f.store.Get(ctx, userID)
	assert.ErrorIs(t, err, entitlement.ErrNotFound)

	mappings, err := f.repo.MappingsForUser(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, mappings)

	_, err = f.repo.SubscriptionRecord(ctx, "cus_1")
	assert.ErrorIs(t, err, billing.ErrRecordNotFound)
	assert.Empty(t, f.repo.Orders("cus_1"))

	assert.Zero(t, f.usage.Count(userID))
	assert.Zero(t, f.feedback.Count(userID))
	assert.Empty(t, f.audit.ForUser(userID))
}

func TestOrchestrator_Delete_CardUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	f.seedCardUser(t, userID)
	f.identities.On("Delete", mock.Anything, userID).Return(nil).Once()

	report, err := f.orch.Delete(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, entitlement.KindCard, report.PaymentMethod)
	assert.Equal(t, []string{"sub_1"}, report.CanceledSubscriptions)
	assert.Equal(t, []string{"cus_1"}, report.DeletedCustomers)
	assert.Empty(t, report.Warnings)
	assert.Equal(t, int64(3), report.DeletedRows[accountdeletion.TableUsageHistory])

	assert.False(t, f.provider.HasCustomer("cus_1"))
	f.assertNothingLeft(t, userID)
	f.identities.AssertExpectations(t)
}

func TestOrchestrator_Delete_LateWebhookDoesNotResurrect(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	f.seedCardUser(t, userID)
	f.identities.On("Delete", mock.Anything, userID).Return(nil).Once()

	_, err := f.orch.Delete(ctx, userID)
	require.NoError(t, err)

	// The provider reports the cancellation only after the purge.
	processor := billing.NewWebhookProcessor(f.repo, entitlement.NewService(f.store), nil)
	require.NoError(t, processor.Process(ctx, billing.CardEvent{
		ID:             "evt_late",
		Type:           billing.EventSubscriptionDeleted,
		Created:        time.Now().UTC(),
		UserID:         userID,
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Status:         billing.StatusCanceled,
	}))

	f.assertNothingLeft(t, userID)
}

func TestOrchestrator_Delete_ProviderFailuresAreWarnings(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	f.seedCardUser(t, userID)
	f.provider.FailOn("CancelSubscription", errors.New("provider down"))
	f.provider.FailOn("DeleteCustomer", errors.New("provider down"))
	f.identities.On("Delete", mock.Anything, userID).Return(nil).Once()

	report, err := f.orch.Delete(context.Background(), userID)
	require.NoError(t, err)

	require.Len(t, report.Warnings, 2)
	assert.Equal(t, accountdeletion.StepCancelSubscriptions, report.Warnings[0].Step)
	assert.Equal(t, "sub_1", report.Warnings[0].Target)
	assert.Equal(t, accountdeletion.StepDeleteCustomer, report.Warnings[1].Step)

	f.assertNothingLeft(t, userID)
}

func TestOrchestrator_Delete_ChildTableFailureContinues(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	f.seedCardUser(t, userID)
	f.usage.Fail(errors.New("table locked"))
	f.identities.On("Delete", mock.Anything, userID).Return(nil).Once()

	report, err := f.orch.Delete(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, accountdeletion.StepDeleteChildRows, report.Warnings[0].Step)
	assert.Equal(t, accountdeletion.TableUsageHistory, report.Warnings[0].Target)
	assert.Zero(t, f.feedback.Count(userID))
}

func TestOrchestrator_Delete_PlatformUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID := uuid.New()
	e := entitlement.New(userID)
	e.Status = entitlement.StatusPremium
	e.PaymentMethod = entitlement.PlatformPayment{OriginalTransactionID: "otx_1"}
	f.store.Put(e)
	f.identities.On("Delete", mock.Anything, userID).Return(nil).Once()

	report, err := f.orch.Delete(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.KindPlatform, report.PaymentMethod)
	assert.Zero(t, f.provider.TotalCalls())

	_, err = f.store.Get(context.Background(), userID)
	assert.ErrorIs(t, err, entitlement.ErrNotFound)
}

func TestOrchestrator_Delete_AbandonedCheckout(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	_, _, err := f.repo.InsertMapping(ctx, userID, "cus_abandoned", "test")
	require.NoError(t, err)
	f.identities.On("Delete", mock.Anything, userID).Return(nil).Once()

	report, err := f.orch.Delete(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.KindNone, report.PaymentMethod)
	assert.Equal(t, 1, f.provider.Calls("DeleteCustomer"))

	mappings, err := f.repo.MappingsForUser(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, mappings)
}

func TestOrchestrator_Delete_AbortPoints(t *testing.T) {
	t.Parallel()

	t.Run("entitlement step", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		userID := uuid.New()
		f.seedCardUser(t, userID)
		f.ents.err = errors.New("connection reset")

		_, err := f.orch.Delete(context.Background(), userID)
		require.Error(t, err)

		var stepErr *accountdeletion.StepError
		require.ErrorAs(t, err, &stepErr)
		assert.Equal(t, accountdeletion.StepDeleteEntitlement, stepErr.Step)
		assert.ErrorIs(t, err, fault.ErrPartialFailure)
		f.identities.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("identity step then retry", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		ctx := context.Background()
		userID := uuid.New()
		f.seedCardUser(t, userID)
		f.identities.On("Delete", mock.Anything, userID).Return(errors.New("auth backend down")).Once()

		_, err := f.orch.Delete(ctx, userID)
		var stepErr *accountdeletion.StepError
		require.ErrorAs(t, err, &stepErr)
		assert.Equal(t, accountdeletion.StepDeleteIdentity, stepErr.Step)

		_, err = f.store.Get(ctx, userID)
		assert.ErrorIs(t, err, entitlement.ErrNotFound)

		f.identities.On("Delete", mock.Anything, userID).Return(nil).Once()
		report, err := f.orch.Delete(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, entitlement.KindNone, report.PaymentMethod)
		assert.Empty(t, report.Warnings)

		f.assertNothingLeft(t, userID)
		f.identities.AssertExpectations(t)
	})
}
