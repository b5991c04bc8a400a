package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/taskmanager/internal/model"
	"github.com/sakif/taskmanager/internal/query"
	"github.com/sakif/taskmanager/internal/repository"
)

// TaskManager is the task API's view of the business layer.
// *service.TaskService implements it.
type TaskManager interface {
	Create(ctx context.Context, ownerID string, in model.TaskInput) (*model.Task, error)
	Get(ctx context.Context, ownerID, id string) (*model.Task, error)
	List(ctx context.Context, ownerID string, q repository.TaskQuery) ([]model.Task, error)
	Update(ctx context.Context, ownerID, id string, upd model.TaskUpdate) (*model.Task, error)
	Delete(ctx context.Context, ownerID, id string) (*model.Task, error)
}

// TaskHandler serves /tasks. Every route is behind RequireAuth, and every
// call passes the authenticated user's ID as the owner.
type TaskHandler struct {
	tasks  TaskManager
	logger *slog.Logger
}

func NewTaskHandler(tasks TaskManager, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

// HandleCreate creates a task for the caller.
//
// HTTP: POST /tasks
// REQUEST BODY: {"description": "buy milk", "completed": false}
// An "owner" key in the body is ignored: the owner is always the caller.
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	var in model.TaskInput
	if err := decodeJSON(w, r, &in, nil); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	task, err := h.tasks.Create(r.Context(), user.ID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, task)
}

// HandleList lists the caller's tasks.
//
// HTTP: GET /tasks?completed=true&sortBy=createdAt_desc&limit=10&skip=20
// Unparseable parameters are ignored rather than rejected.
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	tasks, err := h.tasks.List(r.Context(), user.ID, query.ParseTaskQuery(r.URL.Query()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, tasks)
}

// HandleGet returns one of the caller's tasks.
//
// HTTP: GET /tasks/{id}
func (h *TaskHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	task, err := h.tasks.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// HandleUpdate applies a partial update.
//
// HTTP: PATCH /tasks/{id}
// Allowed keys: description, completed, spelled exactly so. Anything else
// (owner included, or "Description") is 400 "invalid update".
func (h *TaskHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	var upd model.TaskUpdate
	if err := decodeJSON(w, r, &upd, model.TaskUpdateFields); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	task, err := h.tasks.Update(r.Context(), user.ID, chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// HandleDelete deletes one of the caller's tasks.
//
// HTTP: DELETE /tasks/{id}
// RESPONSE: 200 with the deleted task.
func (h *TaskHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	task, err := h.tasks.Delete(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, task)
}
