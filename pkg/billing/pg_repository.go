package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/entitlements/pkg/pg"
)

// PgRepository stores billing state in Postgres.
type PgRepository struct {
	db pg.DB
}

func NewPgRepository(db pg.DB) *PgRepository {
	if db == nil {
		panic("billing: db cannot be nil")
	}
	return &PgRepository{db: db}
}

const mappingColumns = `id, user_id, customer_id, environment, created_at, deleted_at`

func (r *PgRepository) ActiveMapping(ctx context.Context, userID uuid.UUID) (*CustomerMapping, error) {
	return r.queryMapping(ctx,
		`SELECT `+mappingColumns+` FROM card_customer_mappings WHERE user_id = $1 AND deleted_at IS NULL`,
		userID)
}

func (r *PgRepository) MappingByCustomer(ctx context.Context, customerID string) (*CustomerMapping, error) {
	return r.queryMapping(ctx,
		`SELECT `+mappingColumns+` FROM card_customer_mappings WHERE customer_id = $1
		 ORDER BY deleted_at IS NULL DESC, created_at DESC LIMIT 1`,
		customerID)
}

func (r *PgRepository) MappingsForUser(ctx context.Context, userID uuid.UUID) ([]CustomerMapping, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+mappingColumns+` FROM card_customer_mappings WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadMapping, err)
	}
	defer rows.Close()

	var out []CustomerMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, errors.Join(ErrFailedToLoadMapping, err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrFailedToLoadMapping, err)
	}
	return out, nil
}

// InsertMapping relies on the partial unique index on (user_id) WHERE
// deleted_at IS NULL. The loser of a race reads the winner's row.
func (r *PgRepository) InsertMapping(ctx context.Context, userID uuid.UUID, customerID, environment string) (*CustomerMapping, bool, error) {
	m, err := scanMapping(r.db.QueryRow(ctx,
		`INSERT INTO card_customer_mappings (id, user_id, customer_id, environment, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) WHERE deleted_at IS NULL DO NOTHING
		 RETURNING `+mappingColumns,
		uuid.New(), userID, customerID, environment, time.Now().UTC()))
	if err == nil {
		return m, true, nil
	}
	if !pg.IsNotFoundError(err) {
		return nil, false, errors.Join(ErrFailedToPersistMapping, err)
	}

	existing, err := r.ActiveMapping(ctx, userID)
	if err != nil {
		return nil, false, errors.Join(ErrFailedToPersistMapping, err)
	}
	return existing, false, nil
}

// ReplaceMapping retires oldCustomerID and maps the user to newCustomerID.
// When a concurrent call already replaced it, the winner's mapping is returned.
func (r *PgRepository) ReplaceMapping(ctx context.Context, userID uuid.UUID, oldCustomerID, newCustomerID, environment string) (*CustomerMapping, error) {
	var out *CustomerMapping
	err := pg.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.Exec(ctx,
			`UPDATE card_customer_mappings SET deleted_at = $3
			 WHERE user_id = $1 AND customer_id = $2 AND deleted_at IS NULL`,
			userID, oldCustomerID, now); err != nil {
			return err
		}

		existing, err := scanMapping(tx.QueryRow(ctx,
			`SELECT `+mappingColumns+` FROM card_customer_mappings WHERE user_id = $1 AND deleted_at IS NULL`,
			userID))
		if err == nil {
			out = existing
			return nil
		}
		if !pg.IsNotFoundError(err) {
			return err
		}

		m, err := scanMapping(tx.QueryRow(ctx,
			`INSERT INTO card_customer_mappings (id, user_id, customer_id, environment, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (user_id) WHERE deleted_at IS NULL DO NOTHING
			 RETURNING `+mappingColumns,
			uuid.New(), userID, newCustomerID, environment, now))
		if err == nil {
			out = m
			return nil
		}
		if !pg.IsNotFoundError(err) {
			return err
		}
		out, err = scanMapping(tx.QueryRow(ctx,
			`SELECT `+mappingColumns+` FROM card_customer_mappings WHERE user_id = $1 AND deleted_at IS NULL`,
			userID))
		return err
	})
	if err != nil {
		return nil, errors.Join(ErrFailedToPersistMapping, err)
	}
	return out, nil
}

func (r *PgRepository) DeleteMappings(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM card_customer_mappings WHERE user_id = $1`, userID); err != nil {
		return errors.Join(ErrFailedToDeleteRecords, err)
	}
	return nil
}

func (r *PgRepository) SubscriptionRecord(ctx context.Context, customerID string) (*SubscriptionRecord, error) {
	var (
		rec    SubscriptionRecord
		status string
	)
	err := r.db.QueryRow(ctx,
		`SELECT customer_id, subscription_id, status, price_id, cancel_at_period_end, current_period_end, updated_at
		 FROM card_subscription_records WHERE customer_id = $1`, customerID).
		Scan(&rec.CustomerID, &rec.SubscriptionID, &status, &rec.PriceID,
			&rec.CancelAtPeriodEnd, &rec.CurrentPeriodEnd, &rec.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrRecordNotFound
		}
		return nil, errors.Join(ErrFailedToPersistRecord, err)
	}
	rec.Status = SubscriptionStatus(status)
	return &rec, nil
}

func (r *PgRepository) UpsertSubscriptionRecord(ctx context.Context, rec SubscriptionRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO card_subscription_records
		     (customer_id, subscription_id, status, price_id, cancel_at_period_end, current_period_end, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (customer_id) DO UPDATE SET
		     subscription_id = EXCLUDED.subscription_id,
		     status = EXCLUDED.status,
		     price_id = EXCLUDED.price_id,
		     cancel_at_period_end = EXCLUDED.cancel_at_period_end,
		     current_period_end = EXCLUDED.current_period_end,
		     updated_at = EXCLUDED.updated_at`,
		rec.CustomerID, rec.SubscriptionID, string(rec.Status), rec.PriceID,
		rec.CancelAtPeriodEnd, rec.CurrentPeriodEnd, time.Now().UTC())
	if err != nil {
		return errors.Join(ErrFailedToPersistRecord, err)
	}
	return nil
}

func (r *PgRepository) DeleteSubscriptionRecord(ctx context.Context, customerID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM card_subscription_records WHERE customer_id = $1`, customerID); err != nil {
		return errors.Join(ErrFailedToDeleteRecords, err)
	}
	return nil
}

func (r *PgRepository) RecordOrder(ctx context.Context, o Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO card_orders (id, customer_id, user_id, session_id, payment_intent_id, amount_total, currency, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (session_id) DO NOTHING`,
		o.ID, o.CustomerID, o.UserID, o.SessionID, o.PaymentIntentID, o.AmountTotal, o.Currency, o.Status, time.Now().UTC())
	if err != nil {
		return errors.Join(ErrFailedToPersistRecord, err)
	}
	return nil
}

func (r *PgRepository) DeleteOrders(ctx context.Context, customerID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM card_orders WHERE customer_id = $1`, customerID); err != nil {
		return errors.Join(ErrFailedToDeleteRecords, err)
	}
	return nil
}

func (r *PgRepository) queryMapping(ctx context.Context, sql string, args ...any) (*CustomerMapping, error) {
	m, err := scanMapping(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrMappingNotFound
		}
		return nil, errors.Join(ErrFailedToLoadMapping, err)
	}
	return m, nil
}

func scanMapping(row pgx.Row) (*CustomerMapping, error) {
	var m CustomerMapping
	if err := row.Scan(&m.ID, &m.UserID, &m.CustomerID, &m.Environment, &m.CreatedAt, &m.DeletedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
