// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services know nothing about HTTP. They take plain values, return domain
// errors from package apperror, and leave status codes to the handlers.
//
// DEPENDENCY INJECTION:
// Services take repository interfaces, never *sqlite.DB, so server.go decides
// which store they talk to and tests can hand them anything that satisfies
// the interface.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/taskmanager/internal/model"
	"github.com/sakif/taskmanager/internal/repository"
)

// TaskService handles business logic for tasks.
//
// OWNERSHIP:
// Every method takes the caller's ID as ownerID and passes it down to the
// store, which scopes every query by it. A task owned by somebody else is
// simply "not found": callers cannot tell it apart from a missing ID.
type TaskService struct {
	repo   repository.TaskRepository
	logger *slog.Logger
}

func NewTaskService(repo repository.TaskRepository, logger *slog.Logger) *TaskService {
	return &TaskService{
		repo:   repo,
		logger: logger,
	}
}

// Create validates and saves a new task owned by ownerID.
//
// model.TaskInput has no owner field at all, so the owner can only ever be
// the authenticated caller.
func (s *TaskService) Create(ctx context.Context, ownerID string, in model.TaskInput) (*model.Task, error) {
	desc := strings.TrimSpace(in.Description)
	if err := check(taskRules{Description: desc}); err != nil {
		return nil, err
	}

	task := &model.Task{
		Description: desc,
		Completed:   in.Completed,
		OwnerID:     ownerID,
	}

	if err := s.repo.CreateTask(ctx, task); err != nil {
		s.logger.ErrorContext(ctx, "failed to create task",
			slog.String("ownerID", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/task: creating task: %w", err)
	}

	s.logger.InfoContext(ctx, "task created",
		slog.String("id", task.ID),
		slog.String("ownerID", ownerID),
	)
	return task, nil
}

// Get returns one of ownerID's tasks.
func (s *TaskService) Get(ctx context.Context, ownerID, id string) (*model.Task, error) {
	task, err := s.repo.GetTask(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service/task: getting task %s: %w", id, err)
	}
	return task, nil
}

// List returns ownerID's tasks filtered, sorted and paged by q.
// The result is never nil.
func (s *TaskService) List(ctx context.Context, ownerID string, q repository.TaskQuery) ([]model.Task, error) {
	tasks, err := s.repo.ListTasks(ctx, ownerID, q)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list tasks",
			slog.String("ownerID", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/task: listing tasks: %w", err)
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return tasks, nil
}

// Update applies upd to one of ownerID's tasks.
//
// The new description is validated before the task is even fetched, so a
// bad update never touches the stored task.
func (s *TaskService) Update(ctx context.Context, ownerID, id string, upd model.TaskUpdate) (*model.Task, error) {
	var desc string
	if upd.Description != nil {
		desc = strings.TrimSpace(*upd.Description)
		if err := check(taskRules{Description: desc}); err != nil {
			return nil, err
		}
	}

	task, err := s.repo.GetTask(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service/task: updating task %s: %w", id, err)
	}

	if upd.Description != nil {
		task.Description = desc
	}
	if upd.Completed != nil {
		task.Completed = *upd.Completed
	}

	if err := s.repo.UpdateTask(ctx, task); err != nil {
		s.logger.ErrorContext(ctx, "failed to update task",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/task: updating task %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "task updated", slog.String("id", id))
	return task, nil
}

// Delete removes one of ownerID's tasks and returns it.
func (s *TaskService) Delete(ctx context.Context, ownerID, id string) (*model.Task, error) {
	task, err := s.repo.DeleteTask(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service/task: deleting task %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "task deleted",
		slog.String("id", id),
		slog.String("ownerID", ownerID),
	)
	return task, nil
}
