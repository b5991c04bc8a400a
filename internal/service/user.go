package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sakif/taskmanager/internal/apperror"
	"github.com/sakif/taskmanager/internal/auth"
	"github.com/sakif/taskmanager/internal/avatar"
	"github.com/sakif/taskmanager/internal/model"
	"github.com/sakif/taskmanager/internal/notify"
	"github.com/sakif/taskmanager/internal/repository"
)

// UserService manages the authenticated user's own account: profile
// updates, the avatar and account deletion.
type UserService struct {
	store     repository.Store
	passwords *auth.PasswordService
	mailer    notify.Mailer
	logger    *slog.Logger
}

func NewUserService(
	store repository.Store,
	passwords *auth.PasswordService,
	mailer notify.Mailer,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		store:     store,
		passwords: passwords,
		mailer:    mailer,
		logger:    logger,
	}
}

// Update applies upd to user and returns the saved result.
//
// ALL OR NOTHING:
// Every present field is normalized and validated against a copy of the
// user before the store is touched. One bad field rejects the whole update
// and the stored user is unchanged. The password is re-hashed only when it
// is part of the update.
func (s *UserService) Update(ctx context.Context, user *model.User, upd model.UserUpdate) (*model.User, error) {
	next := *user

	if upd.Name != nil {
		next.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Email != nil {
		next.Email = normalizeEmail(*upd.Email)
	}
	if upd.Age != nil {
		next.Age = *upd.Age
	}

	if err := check(profileRules{Name: next.Name, Email: next.Email, Age: next.Age}); err != nil {
		return nil, err
	}

	if upd.Password != nil {
		pw := strings.TrimSpace(*upd.Password)
		if err := checkPassword(pw); err != nil {
			return nil, err
		}
		hash, err := s.passwords.Hash(pw)
		if err != nil {
			return nil, fmt.Errorf("service/user: hashing password: %w", err)
		}
		next.PasswordHash = hash
	}

	if err := s.store.UpdateUser(ctx, &next); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ValidationFailed("email", "email is already in use")
		}
		s.logger.ErrorContext(ctx, "failed to update user",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/user: updating user %s: %w", user.ID, err)
	}

	s.logger.InfoContext(ctx, "user updated", slog.String("userID", next.ID))
	return &next, nil
}

// Delete removes the account together with all of its tasks and sessions.
//
// CASCADE IN ONE TRANSACTION:
// Tasks go first, then the user row (which also clears the sessions). Both
// run inside WithinTx, so if either step fails everything is rolled back:
// the user still exists, can still log in, and no task is orphaned.
// The goodbye mail is sent only after the commit.
func (s *UserService) Delete(ctx context.Context, user *model.User) (*model.User, error) {
	var removedTasks int64

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		n, err := tx.DeleteTasksByOwner(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("deleting tasks: %w", err)
		}
		removedTasks = n
		return tx.DeleteUser(ctx, user.ID)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to delete user",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/user: deleting user %s: %w", user.ID, err)
	}

	s.logger.InfoContext(ctx, "user deleted",
		slog.String("userID", user.ID),
		slog.Int64("tasks", removedTasks),
	)

	if err := s.mailer.SendCancellation(ctx, user.Email, user.Name); err != nil {
		s.logger.WarnContext(ctx, "cancellation mail not sent",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}

	return user, nil
}

// SetAvatar validates the upload's file name, normalizes the image and
// stores it as the user's avatar.
func (s *UserService) SetAvatar(ctx context.Context, user *model.User, filename string, r io.Reader) error {
	if err := avatar.CheckFilename(filename); err != nil {
		return apperror.ValidationFailed("upload", err.Error())
	}

	png, err := avatar.Normalize(r)
	if err != nil {
		switch {
		case errors.Is(err, avatar.ErrTooLarge), errors.Is(err, avatar.ErrTooManyPixels), errors.Is(err, avatar.ErrNotAnImage):
			return apperror.ValidationFailed("upload", err.Error())
		default:
			return fmt.Errorf("service/user: normalizing avatar: %w", err)
		}
	}

	if err := s.store.SetAvatar(ctx, user.ID, png); err != nil {
		return fmt.Errorf("service/user: storing avatar: %w", err)
	}

	s.logger.InfoContext(ctx, "avatar updated",
		slog.String("userID", user.ID),
		slog.Int("bytes", len(png)),
	)
	return nil
}

// RemoveAvatar clears the avatar. Removing an absent avatar is not an error.
func (s *UserService) RemoveAvatar(ctx context.Context, user *model.User) error {
	if err := s.store.SetAvatar(ctx, user.ID, nil); err != nil {
		return fmt.Errorf("service/user: removing avatar: %w", err)
	}
	return nil
}

// GetAvatar returns the PNG avatar of any user. Avatars are public.
func (s *UserService) GetAvatar(ctx context.Context, userID string) ([]byte, error) {
	png, err := s.store.GetAvatar(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/user: getting avatar: %w", err)
	}
	return png, nil
}
