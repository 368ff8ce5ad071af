package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/entitlements/pkg/fault"
	"github.com/dmitrymomot/entitlements/pkg/pg"
)

// PgStore persists entitlements in the user_entitlements table.
type PgStore struct {
	db pg.DB
}

// NewPgStore creates a Postgres-backed store.
func NewPgStore(db pg.DB) *PgStore {
	if db == nil {
		panic("entitlement: db cannot be nil")
	}
	return &PgStore{db: db}
}

const selectEntitlementSQL = `
SELECT user_id, subscription_status, payment_method,
       card_customer_id, card_subscription_id,
       platform_original_transaction_id, platform_transaction_id, platform_customer_id,
       product_id, cancel_at_period_end, current_period_end, billing_issue_at,
       total_usage_count, last_event_id, last_event_at, created_at, updated_at
FROM user_entitlements
WHERE user_id = $1`

const updateEntitlementSQL = `
UPDATE user_entitlements SET
    subscription_status = $2,
    payment_method = $3,
    card_customer_id = $4,
    card_subscription_id = $5,
    platform_original_transaction_id = $6,
    platform_transaction_id = $7,
    platform_customer_id = $8,
    product_id = $9,
    cancel_at_period_end = $10,
    current_period_end = $11,
    billing_issue_at = $12,
    last_event_id = $13,
    last_event_at = $14,
    updated_at = $15
WHERE user_id = $1`

// railColumns mirrors the identifier columns of both rails. The inactive
// rail's values are kept for history.
type railColumns struct {
	cardCustomerID        string
	cardSubscriptionID    string
	platformOriginalTxID  string
	platformTransactionID string
	platformCustomerID    string
}

func (s *PgStore) Get(ctx context.Context, userID uuid.UUID) (*Entitlement, error) {
	e, _, err := scanEntitlement(s.db.QueryRow(ctx, selectEntitlementSQL, userID))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Join(ErrFailedToLoad, err)
	}
	return e, nil
}

func (s *PgStore) Mutate(ctx context.Context, userID uuid.UUID, fn MutateFunc) (*Entitlement, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUserID
	}

	var result *Entitlement
	err := pg.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		// The placeholder row gives concurrent first writers a row to lock;
		// it disappears with the rollback when fn refuses the change.
		tag, err := tx.Exec(ctx,
			`INSERT INTO user_entitlements (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
		if err != nil {
			return errors.Join(ErrFailedToPersist, err)
		}
		exists := tag.RowsAffected() == 0

		current, rails, err := scanEntitlement(tx.QueryRow(ctx, selectEntitlementSQL+" FOR UPDATE", userID))
		if err != nil {
			return errors.Join(ErrFailedToLoad, err)
		}

		next, err := fn(*current, exists)
		if err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return errors.Join(ErrFailedToPersist, err)
		}

		next.PaymentMethod = normalize(next.PaymentMethod)
		rails = overlayRails(rails, next.PaymentMethod)
		next.UpdatedAt = time.Now().UTC()

		var lastEventAt *time.Time
		if !next.LastEventAt.IsZero() {
			lastEventAt = &next.LastEventAt
		}

		_, err = tx.Exec(ctx, updateEntitlementSQL,
			userID,
			string(next.Status),
			string(KindOf(next.PaymentMethod)),
			rails.cardCustomerID,
			rails.cardSubscriptionID,
			rails.platformOriginalTxID,
			rails.platformTransactionID,
			rails.platformCustomerID,
			next.ProductID,
			next.CancelAtPeriodEnd,
			next.CurrentPeriodEnd,
			next.BillingIssueAt,
			next.LastEventID,
			lastEventAt,
			next.UpdatedAt,
		)
		if err != nil {
			if pg.IsCheckViolationError(err) {
				return errors.Join(ErrFailedToPersist, fault.ErrDataIntegrity, ErrPremiumWithoutPayment, err)
			}
			return errors.Join(ErrFailedToPersist, err)
		}

		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PgStore) Delete(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM user_entitlements WHERE user_id = $1`, userID); err != nil {
		return errors.Join(ErrFailedToDelete, err)
	}
	return nil
}

func scanEntitlement(row pgx.Row) (*Entitlement, railColumns, error) {
	var (
		e           Entitlement
		status      string
		kind        string
		rails       railColumns
		lastEventAt *time.Time
	)
	err := row.Scan(
		&e.UserID, &status, &kind,
		&rails.cardCustomerID, &rails.cardSubscriptionID,
		&rails.platformOriginalTxID, &rails.platformTransactionID, &rails.platformCustomerID,
		&e.ProductID, &e.CancelAtPeriodEnd, &e.CurrentPeriodEnd, &e.BillingIssueAt,
		&e.TotalUsageCount, &e.LastEventID, &lastEventAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, rails, err
	}

	e.Status = Status(status)
	if lastEventAt != nil {
		e.LastEventAt = *lastEventAt
	}
	switch PaymentMethodKind(kind) {
	case KindCard:
		e.PaymentMethod = CardPayment{
			CustomerID:     rails.cardCustomerID,
			SubscriptionID: rails.cardSubscriptionID,
		}
	case KindPlatform:
		e.PaymentMethod = PlatformPayment{
			OriginalTransactionID: rails.platformOriginalTxID,
			TransactionID:         rails.platformTransactionID,
			CustomerID:            rails.platformCustomerID,
		}
	default:
		e.PaymentMethod = NoPayment{}
	}
	return &e, rails, nil
}

func overlayRails(rails railColumns, pm PaymentMethod) railColumns {
	return MatchPaymentMethod(pm,
		func() railColumns { return rails },
		func(c CardPayment) railColumns {
			rails.cardCustomerID = c.CustomerID
			rails.cardSubscriptionID = c.SubscriptionID
			return rails
		},
		func(p PlatformPayment) railColumns {
			rails.platformOriginalTxID = p.OriginalTransactionID
			rails.platformTransactionID = p.TransactionID
			rails.platformCustomerID = p.CustomerID
			return rails
		},
	)
}
