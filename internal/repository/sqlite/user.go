package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/taskmanager/internal/apperror"
	"github.com/sakif/taskmanager/internal/model"
	"github.com/sakif/taskmanager/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// userColumns is shared by every SELECT that returns a full user row.
// The avatar blob is left out on purpose; only GetAvatar reads it.
const userColumns = `id, name, email, age, password_hash, created_at, updated_at`

// CreateUser inserts a new user and fills in ID and timestamps.
//
// EMAIL UNIQUENESS:
// The users.email column is UNIQUE, so two concurrent signups with the same
// address cannot both succeed: SQLite rejects the second INSERT and we turn
// that into apperror.ErrConflict. Checking with a SELECT first would leave a
// race window between the check and the insert.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	ts := now()
	user.ID = xid.New().String()
	user.CreatedAt = ts
	user.UpdatedAt = ts

	_, err := db.q.ExecContext(ctx,
		`INSERT INTO users (id, name, email, age, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.Age,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "email")
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}

	return nil
}

// GetUserByID retrieves a user by their ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by their (already normalized) email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// UpdateUser writes name, email, age and password hash back to the row.
// ID and created_at never change.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = now()

	result, err := db.q.ExecContext(ctx,
		`UPDATE users
		 SET name = ?, email = ?, age = ?, password_hash = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.Email,
		user.Age,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "email")
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	return requireRow(result, "user", user.ID)
}

// DeleteUser removes the user row together with its sessions.
//
// Tasks are NOT touched here. Removing a user's tasks is the service's job,
// and it wraps both steps in WithinTx so they succeed or fail together.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	if _, err := db.q.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting sessions of user %s: %w", id, err)
	}

	result, err := db.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}

	return requireRow(result, "user", id)
}

// SetAvatar stores the (already normalized) PNG bytes. A nil slice clears it.
func (db *DB) SetAvatar(ctx context.Context, userID string, avatar []byte) error {
	result, err := db.q.ExecContext(ctx,
		`UPDATE users SET avatar = ?, updated_at = ? WHERE id = ?`,
		avatar, now(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting avatar of user %s: %w", userID, err)
	}

	return requireRow(result, "user", userID)
}

// GetAvatar returns the stored avatar. A user without one is reported as
// apperror.ErrNotFound, same as a missing user.
func (db *DB) GetAvatar(ctx context.Context, userID string) ([]byte, error) {
	var avatar []byte
	err := db.q.QueryRowContext(ctx,
		`SELECT avatar FROM users WHERE id = ?`, userID,
	).Scan(&avatar)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", userID)
		}
		return nil, fmt.Errorf("sqlite: getting avatar of user %s: %w", userID, err)
	}
	if len(avatar) == 0 {
		return nil, apperror.NotFound("avatar", userID)
	}
	return avatar, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	if err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Age,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

// requireRow turns "0 rows affected" into a NotFound for resource/id.
func requireRow(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
