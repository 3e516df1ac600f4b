package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"voicethoughts/internal/identity"
	"voicethoughts/internal/thought/model"
	"voicethoughts/pkg/logger"
)

const (
	scopeClaimsSQL = `SELECT set_config('request.jwt.claims', $1, true), set_config('request.jwt.claim.sub', $2, true)`

	listByOwnerSQL = `SELECT id, COALESCE(title, ''), content, created_at, user_id
		FROM thoughts WHERE user_id = $1
		ORDER BY created_at DESC`

	insertSQL = `INSERT INTO thoughts (id, title, content, created_at, user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, COALESCE(title, ''), content, created_at, user_id`
)

// ThoughtRepository reads and writes the thoughts table. Every statement runs
// in a transaction that carries the caller's JWT claims and drops to the RLS
// role, so the table's row-level policies decide what the caller may see.
// There is no unscoped path.
type ThoughtRepository struct {
	DB      *sql.DB
	setRole string
}

func NewThoughtRepository(db *sql.DB, rlsRole string) *ThoughtRepository {
	return &ThoughtRepository{
		DB:      db,
		setRole: "SET LOCAL ROLE " + pq.QuoteIdentifier(rlsRole),
	}
}

func (r *ThoughtRepository) withScope(ctx context.Context, id identity.Identity, fn func(tx *sql.Tx) error) error {
	if id.UserID == "" {
		return errors.New("refusing unscoped store access")
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, scopeClaimsSQL, id.ClaimsJSON(), id.UserID); err != nil {
		return fmt.Errorf("set request claims: %w", err)
	}
	if _, err := tx.ExecContext(ctx, r.setRole); err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListByOwner returns all of the caller's thoughts, newest first. A row that
// fails to scan fails the whole call.
func (r *ThoughtRepository) ListByOwner(ctx context.Context, id identity.Identity) ([]model.Thought, error) {
	thoughts := []model.Thought{}
	err := r.withScope(ctx, id, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, listByOwnerSQL, id.UserID)
		if err != nil {
			return fmt.Errorf("query thoughts: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var t model.Thought
			if err := rows.Scan(&t.ID, &t.Title, &t.Content, &t.CreatedAt, &t.OwnerID); err != nil {
				return fmt.Errorf("scan thought: %w", err)
			}
			thoughts = append(thoughts, t)
		}
		return rows.Err()
	})
	if err != nil {
		logStoreError("list thoughts", id.UserID, err)
		return nil, err
	}
	return thoughts, nil
}

// Insert writes t and returns the row as stored.
func (r *ThoughtRepository) Insert(ctx context.Context, id identity.Identity, t model.Thought) (*model.Thought, error) {
	var saved model.Thought
	err := r.withScope(ctx, id, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, insertSQL, t.ID, t.Title, t.Content, t.CreatedAt, t.OwnerID).
			Scan(&saved.ID, &saved.Title, &saved.Content, &saved.CreatedAt, &saved.OwnerID)
	})
	if err != nil {
		logStoreError("insert thought", id.UserID, err)
		return nil, err
	}
	return &saved, nil
}

// Ping checks that the store is reachable.
func (r *ThoughtRepository) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

func logStoreError(op, userID string, err error) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		logger.Sugar.Errorw("Store operation failed",
			"op", op,
			"user_id", userID,
			"pg_code", string(pqErr.Code),
			"pg_message", pqErr.Message,
			"error", err,
		)
		return
	}
	logger.Sugar.Errorf("Failed to %s for user %s: %v", op, userID, err)
}
