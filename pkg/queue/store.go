package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orbitalworks/constel/pkg/database"
)

// Item statuses. Pending items are eligible for sweeps once their
// next_attempt_at passes; dead items exhausted their attempts and need
// operator attention.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusDead      = "dead"
)

// Item is one queued revocation.
type Item struct {
	ID            string
	UserID        string
	ProjectID     string
	Cause         string
	Status        string
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store persists queued revocations.
type Store struct {
	db *sql.DB
}

// NewStore creates the queue store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrations returns the queue's schema.
func Migrations() []database.Migration {
	return []database.Migration{
		{
			Version:     100,
			Description: "create revocation_queue table",
			SQL: `
				CREATE TABLE IF NOT EXISTS revocation_queue (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					project_id TEXT NOT NULL,
					cause TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'pending',
					attempts INTEGER NOT NULL DEFAULT 0,
					last_error TEXT NOT NULL DEFAULT '',
					next_attempt_at TIMESTAMP NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (user_id, project_id)
				)
			`,
		},
		{
			Version:     101,
			Description: "create revocation_queue due index",
			SQL:         `CREATE INDEX IF NOT EXISTS idx_revocation_queue_due ON revocation_queue (status, next_attempt_at)`,
		},
	}
}

// Enqueue records a revocation for retry. Re-enqueueing an existing
// (user, project) pair resets it to pending with a fresh attempt budget
// and makes it due immediately, so a revocation can never be lost behind
// a dead entry.
func (s *Store) Enqueue(ctx context.Context, userID, projectID, cause string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revocation_queue (id, user_id, project_id, cause, status, attempts, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8)
		ON CONFLICT (user_id, project_id) DO UPDATE SET
			cause = excluded.cause,
			status = 'pending',
			attempts = 0,
			last_error = '',
			next_attempt_at = excluded.next_attempt_at,
			updated_at = excluded.updated_at
	`, uuid.NewString(), userID, projectID, cause, StatusPending, now, now, now)
	if err != nil {
		return fmt.Errorf("failed to enqueue revocation: %w", err)
	}
	return nil
}

// Due returns pending items whose next attempt time has passed, oldest
// first.
func (s *Store) Due(ctx context.Context, limit int) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, project_id, cause, status, attempts, last_error, next_attempt_at, created_at, updated_at
		FROM revocation_queue
		WHERE status = $1 AND next_attempt_at <= $2
		ORDER BY next_attempt_at ASC
		LIMIT $3
	`, StatusPending, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due revocations: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item := &Item{}
		err := rows.Scan(
			&item.ID, &item.UserID, &item.ProjectID, &item.Cause, &item.Status,
			&item.Attempts, &item.LastError, &item.NextAttemptAt, &item.CreatedAt, &item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan revocation: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkSucceeded finalizes a delivered item.
func (s *Store) MarkSucceeded(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE revocation_queue SET status = $1, updated_at = $2 WHERE id = $3`,
		StatusSucceeded, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark revocation succeeded: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt and schedules the next one.
func (s *Store) MarkFailed(ctx context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE revocation_queue
		SET attempts = $1, last_error = $2, next_attempt_at = $3, updated_at = $4
		WHERE id = $5
	`, attempts, lastError, nextAttemptAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark revocation failed: %w", err)
	}
	return nil
}

// MarkDead parks an item that exhausted its attempts.
func (s *Store) MarkDead(ctx context.Context, id string, attempts int, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE revocation_queue
		SET status = $1, attempts = $2, last_error = $3, updated_at = $4
		WHERE id = $5
	`, StatusDead, attempts, lastError, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark revocation dead: %w", err)
	}
	return nil
}

// PendingCount returns the number of items still awaiting delivery.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revocation_queue WHERE status = $1`, StatusPending,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending revocations: %w", err)
	}
	return count, nil
}
