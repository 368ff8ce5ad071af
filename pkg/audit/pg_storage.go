package audit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PgStorage writes entries to the audit_log table.
type PgStorage struct {
	db execer
}

func NewPgStorage(db execer) *PgStorage {
	if db == nil {
		panic("audit: db cannot be nil")
	}
	return &PgStorage{db: db}
}

const insertEntrySQL = `
INSERT INTO audit_log (id, user_id, action, resource, resource_id, result, error, request_id, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (s *PgStorage) Store(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		var meta []byte
		if len(e.Metadata) > 0 {
			b, err := json.Marshal(e.Metadata)
			if err != nil {
				return errors.Join(ErrFailedToStore, err)
			}
			meta = b
		}
		batch.Queue(insertEntrySQL,
			e.ID, e.UserID, e.Action, e.Resource, e.ResourceID,
			string(e.Result), e.Error, e.RequestID, meta, e.CreatedAt)
	}

	if err := s.db.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Join(ErrFailedToStore, err)
	}
	return nil
}

// DeleteUser removes every entry recorded for the user.
func (s *PgStorage) DeleteUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM audit_log WHERE user_id = $1`, userID)
	if err != nil {
		return 0, errors.Join(ErrFailedToDelete, err)
	}
	return tag.RowsAffected(), nil
}
