// Package repository declares the storage contracts the services depend on.
//
// Services only ever see these interfaces; the SQLite implementation lives in
// repository/sqlite and is wired in server.go.
package repository

import (
	"context"

	"github.com/sakif/taskmanager/internal/model"
)

// TaskSortField is a client-nameable task attribute. The zero value means
// "no explicit sort" and the store falls back to creation order.
type TaskSortField string

const (
	SortNone        TaskSortField = ""
	SortDescription TaskSortField = "description"
	SortCompleted   TaskSortField = "completed"
	SortCreatedAt   TaskSortField = "createdAt"
	SortUpdatedAt   TaskSortField = "updatedAt"
)

// TaskQuery is the validated list descriptor produced by package query.
// Limit and Skip of 0 mean "no limit" and "no skip".
type TaskQuery struct {
	Completed *bool
	SortBy    TaskSortField
	SortDesc  bool
	Limit     int
	Skip      int
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, id string) error
	SetAvatar(ctx context.Context, userID string, avatar []byte) error
	GetAvatar(ctx context.Context, userID string) ([]byte, error)
}

type SessionRepository interface {
	AddSession(ctx context.Context, userID, tokenHash string) error
	HasSession(ctx context.Context, userID, tokenHash string) (bool, error)
	RemoveSession(ctx context.Context, userID, tokenHash string) error
	RemoveAllSessions(ctx context.Context, userID string) (int64, error)
	ListSessions(ctx context.Context, userID string) ([]model.Session, error)
}

type TaskRepository interface {
	CreateTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, id, ownerID string) (*model.Task, error)
	ListTasks(ctx context.Context, ownerID string, q TaskQuery) ([]model.Task, error)
	UpdateTask(ctx context.Context, task *model.Task) error
	DeleteTask(ctx context.Context, id, ownerID string) (*model.Task, error)
	DeleteTasksByOwner(ctx context.Context, ownerID string) (int64, error)
}

// Store is everything the services need, plus a way to group several calls
// into one atomic unit.
type Store interface {
	UserRepository
	SessionRepository
	TaskRepository

	// WithinTx runs fn against a Store bound to a single transaction.
	// A nil return commits; an error or panic rolls back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
