package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/taskmanager/internal/apperror"
	"github.com/sakif/taskmanager/internal/model"
	"github.com/sakif/taskmanager/internal/repository"
)

var _ repository.TaskRepository = (*DB)(nil)

const taskColumns = `id, description, completed, owner_id, created_at, updated_at`

// sortColumns maps the client-facing sort names to SQL column names.
//
// SQL INJECTION NOTE:
// Placeholders (?) only work for VALUES, never for identifiers like column
// names or ASC/DESC. Those have to be spliced into the query string, so they
// come exclusively from this fixed map and never from user input.
var sortColumns = map[repository.TaskSortField]string{
	repository.SortDescription: "description",
	repository.SortCompleted:   "completed",
	repository.SortCreatedAt:   "created_at",
	repository.SortUpdatedAt:   "updated_at",
}

// CreateTask inserts a task. task.OwnerID must already be set by the caller.
func (db *DB) CreateTask(ctx context.Context, task *model.Task) error {
	ts := now()
	task.ID = xid.New().String()
	task.CreatedAt = ts
	task.UpdatedAt = ts

	_, err := db.q.ExecContext(ctx,
		`INSERT INTO tasks (id, description, completed, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.Description,
		task.Completed,
		task.OwnerID,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting task for owner %s: %w", task.OwnerID, err)
	}

	return nil
}

// GetTask retrieves a task by ID, but only if ownerID owns it.
//
// OWNER SCOPING:
// owner_id is part of every WHERE clause in this file. A task that exists but
// belongs to somebody else is indistinguishable from one that does not exist,
// so callers cannot probe for other users' task IDs.
func (db *DB) GetTask(ctx context.Context, id, ownerID string) (*model.Task, error) {
	t, err := scanTask(db.q.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("task", id)
		}
		return nil, fmt.Errorf("sqlite: getting task %s: %w", id, err)
	}
	return t, nil
}

// ListTasks returns the tasks of ownerID shaped by q.
//
// The ORDER BY always ends with created_at, id so rows that tie on the
// requested column still come back in a stable order. That matters for
// limit/skip paging.
func (db *DB) ListTasks(ctx context.Context, ownerID string, q repository.TaskQuery) ([]model.Task, error) {
	var (
		sb   strings.Builder
		args = []any{ownerID}
	)

	sb.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = ?`)

	if q.Completed != nil {
		sb.WriteString(` AND completed = ?`)
		args = append(args, *q.Completed)
	}

	sb.WriteString(` ORDER BY `)
	if col, ok := sortColumns[q.SortBy]; ok {
		dir := "ASC"
		if q.SortDesc {
			dir = "DESC"
		}
		sb.WriteString(col + ` ` + dir + `, `)
	}
	sb.WriteString(`created_at ASC, id ASC`)

	// SQLite needs a LIMIT before it accepts an OFFSET; -1 means unbounded.
	limit := -1
	if q.Limit > 0 {
		limit = q.Limit
	}
	skip := 0
	if q.Skip > 0 {
		skip = q.Skip
	}
	sb.WriteString(` LIMIT ? OFFSET ?`)
	args = append(args, limit, skip)

	rows, err := db.q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tasks for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	// Never nil: an owner with no tasks serializes as [] rather than null.
	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning task row: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tasks: %w", err)
	}

	return tasks, nil
}

// UpdateTask writes description and completed back. owner_id is matched,
// never written.
func (db *DB) UpdateTask(ctx context.Context, task *model.Task) error {
	task.UpdatedAt = now()

	result, err := db.q.ExecContext(ctx,
		`UPDATE tasks SET description = ?, completed = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ?`,
		task.Description,
		task.Completed,
		task.UpdatedAt,
		task.ID,
		task.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating task %s: %w", task.ID, err)
	}

	return requireRow(result, "task", task.ID)
}

// DeleteTask removes a task owned by ownerID and returns the removed row.
//
// DELETE ... RETURNING (SQLite 3.35+) reads and deletes in one statement, so
// there is no gap in which another request could change the row in between.
func (db *DB) DeleteTask(ctx context.Context, id, ownerID string) (*model.Task, error) {
	t, err := scanTask(db.q.QueryRowContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND owner_id = ? RETURNING `+taskColumns,
		id, ownerID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("task", id)
		}
		return nil, fmt.Errorf("sqlite: deleting task %s: %w", id, err)
	}
	return t, nil
}

// DeleteTasksByOwner removes every task of ownerID and reports how many.
func (db *DB) DeleteTasksByOwner(ctx context.Context, ownerID string) (int64, error) {
	result, err := db.q.ExecContext(ctx, `DELETE FROM tasks WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting tasks of owner %s: %w", ownerID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

func scanTask(row rowScanner) (*model.Task, error) {
	var t model.Task
	if err := row.Scan(
		&t.ID,
		&t.Description,
		&t.Completed,
		&t.OwnerID,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}
