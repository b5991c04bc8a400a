package sqlite

import (
	"context"
	"fmt"

	"github.com/sakif/taskmanager/internal/model"
	"github.com/sakif/taskmanager/internal/repository"
)

var _ repository.SessionRepository = (*DB)(nil)

// AddSession records one logged-in device for userID.
//
// token_hash is the primary key, so the same token can never be recorded
// twice. Distinct tokens for the same user simply become separate rows, which
// is what makes several concurrent logins independent of each other.
func (db *DB) AddSession(ctx context.Context, userID, tokenHash string) error {
	_, err := db.q.ExecContext(ctx,
		`INSERT INTO sessions (token_hash, user_id, created_at) VALUES (?, ?, ?)`,
		tokenHash, userID, now(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding session for user %s: %w", userID, err)
	}
	return nil
}

// HasSession reports whether tokenHash is a live session of userID.
func (db *DB) HasSession(ctx context.Context, userID, tokenHash string) (bool, error) {
	var exists bool
	err := db.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM sessions WHERE user_id = ? AND token_hash = ?)`,
		userID, tokenHash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking session for user %s: %w", userID, err)
	}
	return exists, nil
}

// RemoveSession deletes one session. Removing a session that is already gone
// is not an error.
func (db *DB) RemoveSession(ctx context.Context, userID, tokenHash string) error {
	_, err := db.q.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = ? AND token_hash = ?`,
		userID, tokenHash,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing session for user %s: %w", userID, err)
	}
	return nil
}

// RemoveAllSessions deletes every session of userID and reports how many
// there were.
func (db *DB) RemoveAllSessions(ctx context.Context, userID string) (int64, error) {
	result, err := db.q.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: removing sessions for user %s: %w", userID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

// ListSessions returns the sessions of userID, oldest first.
func (db *DB) ListSessions(ctx context.Context, userID string) ([]model.Session, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT user_id, token_hash, created_at FROM sessions
		 WHERE user_id = ?
		 ORDER BY created_at, rowid`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing sessions for user %s: %w", userID, err)
	}
	defer rows.Close()

	sessions := []model.Session{}
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.UserID, &s.TokenHash, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating sessions: %w", err)
	}

	return sessions, nil
}
