package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/taskmanager/internal/apperror"
	"github.com/sakif/taskmanager/internal/avatar"
	"github.com/sakif/taskmanager/internal/model"
	"github.com/sakif/taskmanager/internal/repository"
	"github.com/sakif/taskmanager/internal/repository/sqlite"
)

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUserUpdate_AppliesFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _ := env.signup(t, "upd@example.com")

	got, err := env.users.Update(ctx, user, model.UserUpdate{
		Name:  strPtr(" Renamed "),
		Email: strPtr("NEW@example.com"),
		Age:   intPtr(41),
	})
	require.NoError(t, err)

	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, "new@example.com", got.Email)
	assert.Equal(t, 41, got.Age)
	assert.Equal(t, user.PasswordHash, got.PasswordHash, "hash untouched without a password field")

	stored, err := env.store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", stored.Email)
}

func TestUserUpdate_Password(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _ := env.signup(t, "pw@example.com")

	_, err := env.users.Update(ctx, user, model.UserUpdate{Password: strPtr("An0therSecret")})
	require.NoError(t, err)

	_, err = env.auth.Login(ctx, "pw@example.com", "Str0ngSecret!")
	assert.True(t, errors.Is(err, apperror.ErrInvalidCredentials), "old password must stop working")

	_, err = env.auth.Login(ctx, "pw@example.com", "An0therSecret")
	assert.NoError(t, err)
}

func TestUserUpdate_InvalidLeavesUserUnchanged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "other@example.com")
	user, _ := env.signup(t, "keep@example.com")

	tests := []struct {
		name string
		upd  model.UserUpdate
	}{
		{"negative age with valid name", model.UserUpdate{Name: strPtr("New Name"), Age: intPtr(-5)}},
		{"blank name", model.UserUpdate{Name: strPtr("  ")}},
		{"bad email", model.UserUpdate{Email: strPtr("nope")}},
		{"forbidden password with valid age", model.UserUpdate{Age: intPtr(50), Password: strPtr("password1")}},
		{"email taken", model.UserUpdate{Email: strPtr("other@example.com")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.users.Update(ctx, user, tt.upd)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)

			stored, err := env.store.GetUserByID(ctx, user.ID)
			require.NoError(t, err)
			assert.Equal(t, "Test User", stored.Name)
			assert.Equal(t, "keep@example.com", stored.Email)
			assert.Equal(t, 30, stored.Age)
			assert.Equal(t, user.PasswordHash, stored.PasswordHash)
		})
	}
}

// =========================================================================
// DELETE (CASCADE) TESTS
// =========================================================================

func TestUserDelete_Cascade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _ := env.signup(t, "alice@example.com")
	bob, _ := env.signup(t, "bob@example.com")

	env.newTask(t, alice.ID, "a1")
	env.newTask(t, alice.ID, "a2")
	bobTask := env.newTask(t, bob.ID, "b1")

	deleted, err := env.users.Delete(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, deleted.ID)

	_, err = env.store.GetUserByID(ctx, alice.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	aliceTasks, err := env.store.ListTasks(ctx, alice.ID, repository.TaskQuery{})
	require.NoError(t, err)
	assert.Empty(t, aliceTasks, "no task may outlive its owner")

	sessions, err := env.store.ListSessions(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = env.store.GetTask(ctx, bobTask.ID, bob.ID)
	assert.NoError(t, err, "other users' tasks are untouched")

	assert.Equal(t, []string{"alice@example.com"}, env.mailer.goodbyes)
}

// failingDeleteUser wraps a Store so that DeleteUser fails inside the
// transaction, after the tasks have already been deleted.
type failingDeleteUser struct {
	repository.Store
}

var errInjected = errors.New("injected failure")

func (f failingDeleteUser) DeleteUser(context.Context, string) error {
	return errInjected
}

func (f failingDeleteUser) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	return f.Store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return fn(ctx, failingDeleteUser{tx})
	})
}

func TestUserDelete_FailureRollsBackEverything(t *testing.T) {
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := newTestEnvWithStore(t, db, failingDeleteUser{db})
	ctx := context.Background()

	// Signup does not call DeleteUser, so it works through the wrapper.
	user, token := env.signup(t, "sticky@example.com")
	env.newTask(t, user.ID, "survivor")

	_, err = env.users.Delete(ctx, user)
	require.ErrorIs(t, err, errInjected)

	_, err = db.GetUserByID(ctx, user.ID)
	assert.NoError(t, err, "user must still exist")

	tasks, err := db.ListTasks(ctx, user.ID, repository.TaskQuery{})
	require.NoError(t, err)
	assert.Len(t, tasks, 1, "task deletion must be rolled back")

	_, _, err = env.auth.Authenticate(ctx, bearer(token))
	assert.NoError(t, err, "the user can still authenticate")

	assert.Empty(t, env.mailer.goodbyes, "no goodbye mail for a failed deletion")
}

// =========================================================================
// AVATAR TESTS
// =========================================================================

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestAvatar_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _ := env.signup(t, "face@example.com")

	_, err := env.users.GetAvatar(ctx, user.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	require.NoError(t, env.users.SetAvatar(ctx, user, "me.png", bytes.NewReader(pngBytes(t, 500, 300))))

	got, err := env.users.GetAvatar(ctx, user.ID)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(got))
	require.NoError(t, err)
	assert.Equal(t, avatar.Size, cfg.Width)
	assert.Equal(t, avatar.Size, cfg.Height)

	require.NoError(t, env.users.RemoveAvatar(ctx, user))
	_, err = env.users.GetAvatar(ctx, user.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestAvatar_RejectsBadUploads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, _ := env.signup(t, "bad@example.com")

	tests := []struct {
		name     string
		filename string
		body     []byte
	}{
		{"wrong extension", "me.gif", pngBytes(t, 10, 10)},
		{"not an image", "me.png", []byte(strings.Repeat("x", 100))},
		{"too large", "me.png", make([]byte, avatar.MaxUploadBytes+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.users.SetAvatar(ctx, user, tt.filename, bytes.NewReader(tt.body))
			assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)
		})
	}
}
