package accountdeletion

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Child tables that hold user-owned rows.
const (
	TableUsageHistory = "usage_history"
	TableFeedback     = "feedback"
	TableAuditLog     = "audit_log"
)

var deleteChildRowsSQL = map[string]string{
	TableUsageHistory: `DELETE FROM usage_history WHERE user_id = $1`,
	TableFeedback:     `DELETE FROM feedback WHERE user_id = $1`,
	TableAuditLog:     `DELETE FROM audit_log WHERE user_id = $1`,
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgTable returns the Postgres child table with the given name.
// It panics on a table outside the known set.
func PgTable(db execer, name string) ChildTable {
	query, ok := deleteChildRowsSQL[name]
	if !ok {
		panic(errors.Join(ErrUnknownTable, errors.New(name)))
	}
	return ChildTable{
		Name: name,
		Rows: RowDeleterFunc(func(ctx context.Context, userID uuid.UUID) (int64, error) {
			tag, err := db.Exec(ctx, query, userID)
			if err != nil {
				return 0, errors.Join(ErrFailedToDeleteRows, err)
			}
			return tag.RowsAffected(), nil
		}),
	}
}

// PgChildTables returns every known child table backed by Postgres.
func PgChildTables(db execer) []ChildTable {
	return []ChildTable{
		PgTable(db, TableUsageHistory),
		PgTable(db, TableFeedback),
		PgTable(db, TableAuditLog),
	}
}

// MemoryRows is an in-memory RowDeleter counting rows per user.
type MemoryRows struct {
	mu   sync.Mutex
	rows map[uuid.UUID]int64
	err  error
}

func NewMemoryRows() *MemoryRows {
	return &MemoryRows{rows: make(map[uuid.UUID]int64)}
}

// Add records n rows owned by userID.
func (m *MemoryRows) Add(userID uuid.UUID, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[userID] += n
}

// Count returns the number of rows owned by userID.
func (m *MemoryRows) Count(userID uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[userID]
}

// Fail makes every following DeleteUser return err. A nil err clears it.
func (m *MemoryRows) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryRows) DeleteUser(_ context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	n := m.rows[userID]
	delete(m.rows, userID)
	return n, nil
}
