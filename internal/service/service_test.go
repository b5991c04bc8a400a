package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/taskmanager/internal/auth"
	"github.com/sakif/taskmanager/internal/model"
	"github.com/sakif/taskmanager/internal/repository"
	"github.com/sakif/taskmanager/internal/repository/sqlite"
)

// =========================================================================
// TEST ENVIRONMENT
// =========================================================================
//
// The services are exercised against a real in-memory SQLite store rather
// than a hand-written mock. Ownership scoping, unique emails and the
// cascade transaction all live in SQL, and a mock would have to re-implement
// exactly the behaviour under test.

type recordingMailer struct {
	mu       sync.Mutex
	welcomes []string
	goodbyes []string
}

func (m *recordingMailer) SendWelcome(_ context.Context, email, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcomes = append(m.welcomes, email)
	return nil
}

func (m *recordingMailer) SendCancellation(_ context.Context, email, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goodbyes = append(m.goodbyes, email)
	return nil
}

type testEnv struct {
	store  *sqlite.DB
	auth   *AuthService
	users  *UserService
	tasks  *TaskService
	mailer *recordingMailer
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return newTestEnvWithStore(t, db, db)
}

// newTestEnvWithStore wires the services to store, which may wrap db to
// inject failures.
func newTestEnvWithStore(t *testing.T, db *sqlite.DB, store repository.Store) *testEnv {
	t.Helper()

	tokens, err := auth.NewTokenService("service-test-secret-0123456789", 0)
	require.NoError(t, err)
	passwords, err := auth.NewPasswordService(bcrypt.MinCost)
	require.NoError(t, err)

	mailer := &recordingMailer{}
	logger := discardLogger()

	return &testEnv{
		store:  db,
		auth:   NewAuthService(store, tokens, passwords, mailer, logger),
		users:  NewUserService(store, passwords, mailer, logger),
		tasks:  NewTaskService(store, logger),
		mailer: mailer,
	}
}

// signup creates an account and returns it with its first token.
func (e *testEnv) signup(t *testing.T, email string) (*model.User, string) {
	t.Helper()
	res, err := e.auth.Signup(context.Background(), SignupInput{
		Name:     "Test User",
		Email:    email,
		Password: "Str0ngSecret!",
		Age:      30,
	})
	require.NoError(t, err)
	return res.User, res.Token
}

func (e *testEnv) newTask(t *testing.T, ownerID, desc string) *model.Task {
	t.Helper()
	task, err := e.tasks.Create(context.Background(), ownerID, model.TaskInput{Description: desc})
	require.NoError(t, err)
	return task
}

func bearer(token string) string { return "Bearer " + token }

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }
