package model

import "time"

// Task is a unit of work owned by exactly one user.
//
// OwnerID is set by the service from the authenticated user and is never
// read from a request body. Nothing updates it after creation.
type Task struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	OwnerID     string    `json:"owner"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TaskInput is what a client may supply when creating a task.
// There is intentionally no owner field.
type TaskInput struct {
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// TaskUpdate is the allow-list for PATCH /tasks/{id}: {description, completed}.
type TaskUpdate struct {
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// TaskUpdateFields lists the exact JSON keys a PATCH /tasks/{id} body may use.
var TaskUpdateFields = []string{"description", "completed"}
