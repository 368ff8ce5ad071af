package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/pg"
)

// PgStore keeps identities in the identities table.
type PgStore struct {
	db pg.DB
}

func NewPgStore(db pg.DB) *PgStore {
	if db == nil {
		panic("identity: db cannot be nil")
	}
	return &PgStore{db: db}
}

func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (*Identity, error) {
	var rec Identity
	err := s.db.QueryRow(ctx,
		`SELECT id, email, created_at FROM identities WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.Email, &rec.CreatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *PgStore) Ensure(ctx context.Context, id uuid.UUID, email string) (*Identity, error) {
	var rec Identity
	err := s.db.QueryRow(ctx, `
		INSERT INTO identities (id, email) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		RETURNING id, email, created_at`, id, email,
	).Scan(&rec.ID, &rec.Email, &rec.CreatedAt)
	if err != nil {
		return nil, errors.Join(ErrFailedToStore, err)
	}
	return &rec, nil
}

func (s *PgStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id); err != nil {
		return errors.Join(ErrFailedToDelete, err)
	}
	return nil
}

var _ Store = (*PgStore)(nil)
