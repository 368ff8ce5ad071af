package inbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/entitlements/pkg/pg"
)

// PgStorage keeps tasks in the inbox_tasks and inbox_dead_letters tables.
// Claims use FOR UPDATE SKIP LOCKED so several workers can share one queue.
type PgStorage struct {
	db  pg.DB
	now func() time.Time
}

func NewPgStorage(db pg.DB) *PgStorage {
	if db == nil {
		panic("inbox: db cannot be nil")
	}
	return &PgStorage{db: db, now: time.Now}
}

const taskColumns = `id, queue, name, COALESCE(dedupe_key, ''), payload, status, attempts, max_attempts,
	scheduled_at, locked_until, locked_by, COALESCE(last_error, ''), created_at, processed_at`

func (s *PgStorage) CreateTask(ctx context.Context, task *Task) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO inbox_tasks (id, queue, name, dedupe_key, payload, status, attempts, max_attempts, scheduled_at, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10)
		ON CONFLICT (dedupe_key) WHERE dedupe_key IS NOT NULL DO NOTHING`,
		task.ID, task.Queue, task.Name, task.DedupeKey, task.Payload, task.Status,
		task.Attempts, task.MaxAttempts, task.ScheduledAt, task.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	now := s.now()
	row := s.db.QueryRow(ctx, `
		UPDATE inbox_tasks SET status = 'processing', locked_until = $3, locked_by = $2
		WHERE id = (
			SELECT id FROM inbox_tasks
			WHERE queue = ANY($1)
			  AND ((status = 'pending' AND scheduled_at <= $4)
			    OR (status = 'processing' AND locked_until < $4))
			ORDER BY scheduled_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		queues, workerID, now.Add(lockDuration), now,
	)

	var t Task
	err := row.Scan(&t.ID, &t.Queue, &t.Name, &t.DedupeKey, &t.Payload, &t.Status, &t.Attempts, &t.MaxAttempts,
		&t.ScheduledAt, &t.LockedUntil, &t.LockedBy, &t.LastError, &t.CreatedAt, &t.ProcessedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNoTaskToClaim
		}
		return nil, err
	}
	return &t, nil
}

func (s *PgStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE inbox_tasks SET status = 'completed', processed_at = $2, locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`, taskID, s.now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotClaimed
	}
	return nil
}

func (s *PgStorage) RetryTask(ctx context.Context, taskID uuid.UUID, errorMsg string, retryAt time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE inbox_tasks
		SET status = 'pending', attempts = attempts + 1, last_error = $2, scheduled_at = $3,
		    locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`, taskID, errorMsg, retryAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotClaimed
	}
	return nil
}

func (s *PgStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	tag, err := s.db.Exec(ctx, `
		WITH moved AS (
			DELETE FROM inbox_tasks WHERE id = $1
			RETURNING id, queue, name, dedupe_key, payload, attempts
		)
		INSERT INTO inbox_dead_letters (id, task_id, queue, name, dedupe_key, payload, error, attempts, failed_at)
		SELECT $2, id, queue, name, dedupe_key, payload, $3, attempts + 1, $4 FROM moved`,
		taskID, uuid.New(), errorMsg, s.now())
	if err != nil {
		return errors.Join(ErrFailedToMoveToDLQ, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// DeadLetters lists the most recent dead letters.
func (s *PgStorage) DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, task_id, queue, name, COALESCE(dedupe_key, ''), payload, error, attempts, failed_at
		FROM inbox_dead_letters ORDER BY failed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var d DeadLetter
		if err := rows.Scan(&d.ID, &d.TaskID, &d.Queue, &d.Name, &d.DedupeKey, &d.Payload, &d.Error, &d.Attempts, &d.FailedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
