package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/taskmanager/internal/apperror"
	"github.com/sakif/taskmanager/internal/auth"
	"github.com/sakif/taskmanager/internal/avatar"
	"github.com/sakif/taskmanager/internal/model"
	"github.com/sakif/taskmanager/internal/service"
)

// AccountService is what UserHandler needs for signup and sessions.
// *service.AuthService implements it.
type AccountService interface {
	Signup(ctx context.Context, in service.SignupInput) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	Logout(ctx context.Context, user *model.User, token string) error
	LogoutAll(ctx context.Context, user *model.User) error
}

// ProfileService is what UserHandler needs for the user's own account.
// *service.UserService implements it.
type ProfileService interface {
	Update(ctx context.Context, user *model.User, upd model.UserUpdate) (*model.User, error)
	Delete(ctx context.Context, user *model.User) (*model.User, error)
	SetAvatar(ctx context.Context, user *model.User, filename string, r io.Reader) error
	RemoveAvatar(ctx context.Context, user *model.User) error
	GetAvatar(ctx context.Context, userID string) ([]byte, error)
}

// UserHandler serves everything under /users.
type UserHandler struct {
	accounts AccountService
	profiles ProfileService
	logger   *slog.Logger
}

func NewUserHandler(accounts AccountService, profiles ProfileService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		accounts: accounts,
		profiles: profiles,
		logger:   logger,
	}
}

// HandleSignup creates an account and logs it in.
//
// HTTP: POST /users
// REQUEST BODY: {"name":"Ann","email":"a@x.com","password":"Str0ngSecret!","age":30}
// RESPONSE: 201 {"user": {...}, "token": "<jwt>"}
func (h *UserHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var in service.SignupInput
	if err := decodeJSON(w, r, &in, nil); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.accounts.Signup(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin issues a new token for valid credentials.
//
// HTTP: POST /users/login
// Any failure is 400 "unable to login", whichever credential was wrong.
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req, nil); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// HandleLogout ends the session the request was authenticated with.
//
// HTTP: POST /users/logout
func (h *UserHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	token, _ := auth.TokenFromContext(r.Context())

	if err := h.accounts.Logout(r.Context(), user, token); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleLogoutAll ends every session of the user.
//
// HTTP: POST /users/logoutAll
func (h *UserHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.accounts.LogoutAll(r.Context(), user); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateMe applies a partial update to the profile.
//
// HTTP: PATCH /users/me
// Allowed keys: name, email, password, age, spelled exactly so. Anything
// else, or a null value, is 400 and nothing is changed.
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	var upd model.UserUpdate
	if err := decodeJSON(w, r, &upd, model.UserUpdateFields); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	updated, err := h.profiles.Update(r.Context(), user, upd)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// HandleDeleteMe deletes the account and all of its tasks.
//
// HTTP: DELETE /users/me
// RESPONSE: 200 with the deleted user.
func (h *UserHandler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	deleted, err := h.profiles.Delete(r.Context(), user)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, deleted)
}

// multipartOverhead leaves room for the multipart boundaries and headers on
// top of the file itself.
const multipartOverhead = 64 << 10

// HandleUploadAvatar stores a new profile picture.
//
// HTTP: POST /users/me/avatar
// REQUEST: multipart/form-data with the image in the "upload" field
// (.jpg, .jpeg or .png, at most 1 MB).
func (h *UserHandler) HandleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, avatar.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(avatar.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, h.logger, apperror.ValidationFailed("upload", avatar.ErrTooLarge.Error()))
			return
		}
		writeError(w, r, h.logger, apperror.ValidationFailed("upload", avatar.ErrBadExtension.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("upload")
	if err != nil {
		writeError(w, r, h.logger, apperror.ValidationFailed("upload", avatar.ErrBadExtension.Error()))
		return
	}
	defer file.Close()

	if header.Size > avatar.MaxUploadBytes {
		writeError(w, r, h.logger, apperror.ValidationFailed("upload", avatar.ErrTooLarge.Error()))
		return
	}

	if err := h.profiles.SetAvatar(r.Context(), user, header.Filename, file); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleDeleteAvatar removes the profile picture.
//
// HTTP: DELETE /users/me/avatar
func (h *UserHandler) HandleDeleteAvatar(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.profiles.RemoveAvatar(r.Context(), user); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleGetAvatar serves any user's avatar as PNG. No authentication.
//
// HTTP: GET /users/{id}/avatar
func (h *UserHandler) HandleGetAvatar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	png, err := h.profiles.GetAvatar(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.logger.WarnContext(r.Context(), "failed to write avatar", slog.String("error", err.Error()))
	}
}
