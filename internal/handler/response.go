// Package handler contains the HTTP handlers of the task manager API.
//
// Handlers only parse requests and write responses. Business rules live in
// package service, and the mapping from domain errors to HTTP status codes
// lives in exactly one place: writeError below.
package handler

// RESPONSE HELPERS:
// Every error response from the API has the same shape:
//
//	{"error": "not_found", "message": "task not found with id abc123"}
//
// so a client always knows which fields to expect, whatever the status code.

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/sakif/taskmanager/internal/apperror"
	"github.com/sakif/taskmanager/internal/auth"
	"github.com/sakif/taskmanager/internal/model"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending input field, for validation errors
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set before the first body byte is written.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
//
//	ErrValidation         → 400 validation_error
//	ErrConflict           → 400 validation_error (duplicate email is a bad input)
//	ErrInvalidCredentials → 400 invalid_credentials ("unable to login")
//	ErrUnauthorized       → 401 unauthorized ("please authenticate")
//	ErrForbidden          → 403 forbidden
//	ErrNotFound           → 404 not_found
//	anything else         → 500 internal_error, details only in the log
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperror.AppError

	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation), errors.Is(err, apperror.ErrConflict):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrInvalidCredentials):
			status = http.StatusBadRequest
			errorType = "invalid_credentials"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		}

		if status != http.StatusInternalServerError {
			writeJSON(w, status, ErrorResponse{
				Error:   errorType,
				Message: appErr.Message,
				Field:   appErr.Field,
			})
			return
		}
	}

	// Unknown error: the raw message may contain SQL or file paths, so the
	// client only gets a generic message.
	logger.ErrorContext(r.Context(), "request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a JSON request body into dst.
//
// ALLOW-LIST MODE:
// With a non-nil allowed list the body must be a JSON object whose keys are
// all in the list, compared exactly ("Description" is not "description"),
// and none of them may be null. Anything else fails the whole request with
// "invalid update" before dst is touched. The PATCH handlers pass
// model.UserUpdateFields and model.TaskUpdateFields this way. Create
// endpoints pass nil and unknown keys such as "owner" are simply ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowed []string) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperror.ValidationFailed("body", "request body too large")
		}
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return apperror.ValidationFailed("body", "request body is required")
	}

	if allowed != nil {
		if err := checkKeys(body, allowed); err != nil {
			return err
		}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(dst); err != nil {
		return bodyError(err)
	}

	// Exactly one JSON value per body.
	if dec.More() {
		return apperror.ValidationFailed("body", "invalid JSON body")
	}

	return nil
}

// checkKeys enforces the allow-list on the raw object.
func checkKeys(body []byte, allowed []string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			// Valid JSON, but not an object.
			return apperror.ValidationFailed("body", "invalid update")
		}
		return apperror.ValidationFailed("body", "invalid JSON body")
	}

	for key, value := range fields {
		if !slices.Contains(allowed, key) {
			return apperror.ValidationFailed(key, "invalid update")
		}
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return apperror.ValidationFailed(key, fmt.Sprintf("%s cannot be null", key))
		}
	}
	return nil
}

func bodyError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperror.ValidationFailed(typeErr.Field, fmt.Sprintf("invalid value for %s", typeErr.Field))
	}
	return apperror.ValidationFailed("body", "invalid JSON body")
}

// currentUser returns the user RequireAuth put in the context. Routes that
// call it are always behind RequireAuth, so a miss is treated as 401.
func currentUser(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*model.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, r, logger, apperror.Unauthorized())
		return nil, false
	}
	return user, true
}
