package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/taskmanager/internal/apperror"
	"github.com/sakif/taskmanager/internal/auth"
	"github.com/sakif/taskmanager/internal/model"
	"github.com/sakif/taskmanager/internal/notify"
	"github.com/sakif/taskmanager/internal/repository"
)

// AuthService owns signup, login, logout and request authentication.
//
//	UserHandler (HTTP) → AuthService → repository.Store (users, sessions)
//	                               ↘ TokenService (JWT), PasswordService (bcrypt)
//
// A session is one row per issued token. Login adds a row, logout removes
// one, logoutAll removes them all, and a request is authenticated only while
// its token's row exists.
type AuthService struct {
	store     repository.Store
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	mailer    notify.Mailer
	logger    *slog.Logger
}

var _ auth.Resolver = (*AuthService)(nil)

func NewAuthService(
	store repository.Store,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	mailer notify.Mailer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		store:     store,
		tokens:    tokens,
		passwords: passwords,
		mailer:    mailer,
		logger:    logger,
	}
}

// SignupInput is the body of POST /users.
type SignupInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      int    `json:"age"`
}

// AuthResult bundles the user with the token just issued for them.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// Signup validates the input, creates the account and logs it in.
//
// The user row and its first session are written in one transaction, so a
// failure to record the session does not leave behind an account whose
// owner never received a token.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	in.Password = strings.TrimSpace(in.Password)

	if err := check(profileRules{Name: in.Name, Email: in.Email, Age: in.Age}); err != nil {
		return nil, err
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Name:         in.Name,
		Email:        in.Email,
		Age:          in.Age,
		PasswordHash: hash,
	}

	var token string
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		t, err := s.issueSession(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		token = t
		return nil
	})
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ValidationFailed("email", "email is already in use")
		}
		s.logger.ErrorContext(ctx, "failed to create user", slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.InfoContext(ctx, "user created", slog.String("userID", user.ID))

	if err := s.mailer.SendWelcome(ctx, user.Email, user.Name); err != nil {
		s.logger.WarnContext(ctx, "welcome mail not sent",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}

	return &AuthResult{User: user, Token: token}, nil
}

// Login checks the credentials and issues a new session token.
//
// GENERIC FAILURE:
// An unknown email and a wrong password both return
// apperror.InvalidCredentials, and both pay for one bcrypt comparison, so
// neither the message nor the timing tells a caller which emails exist.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.passwords.BurnCompare(password)
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.ErrorContext(ctx, "stored password hash unusable",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperror.InvalidCredentials()
	}

	token, err := s.issueSession(ctx, s.store, user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing session for user %s: %w", user.ID, err)
	}

	s.logger.InfoContext(ctx, "user logged in", slog.String("userID", user.ID))

	return &AuthResult{User: user, Token: token}, nil
}

// Logout ends exactly the session the request was made with. The user's
// other devices stay logged in.
func (s *AuthService) Logout(ctx context.Context, user *model.User, token string) error {
	if err := s.store.RemoveSession(ctx, user.ID, hashToken(token)); err != nil {
		return fmt.Errorf("service/auth: removing session: %w", err)
	}
	s.logger.InfoContext(ctx, "session revoked", slog.String("userID", user.ID))
	return nil
}

// LogoutAll ends every session of user, including the current one.
func (s *AuthService) LogoutAll(ctx context.Context, user *model.User) error {
	n, err := s.store.RemoveAllSessions(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("service/auth: removing sessions: %w", err)
	}
	s.logger.InfoContext(ctx, "sessions revoked",
		slog.String("userID", user.ID),
		slog.Int64("count", n),
	)
	return nil
}

// Authenticate resolves an Authorization header to a user.
//
// CHECKS, IN ORDER:
//  1. The header is "Bearer <token>"
//  2. The token's signature, algorithm, issuer and expiry are valid
//  3. The token is still one of the user's sessions (not logged out)
//  4. The user still exists
//
// Every failure returns the same apperror.Unauthorized. The actual reason is
// only logged, at Debug level.
func (s *AuthService) Authenticate(ctx context.Context, authorization string) (*model.User, string, error) {
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		s.logger.DebugContext(ctx, "authentication failed", slog.String("reason", "missing bearer token"))
		return nil, "", apperror.Unauthorized()
	}

	userID, err := s.tokens.Validate(token)
	if err != nil {
		s.logger.DebugContext(ctx, "authentication failed", slog.String("reason", err.Error()))
		return nil, "", apperror.Unauthorized()
	}

	live, err := s.store.HasSession(ctx, userID, hashToken(token))
	if err != nil {
		s.logger.ErrorContext(ctx, "session lookup failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, "", apperror.Unauthorized()
	}
	if !live {
		s.logger.DebugContext(ctx, "authentication failed",
			slog.String("userID", userID),
			slog.String("reason", "session not found"),
		)
		return nil, "", apperror.Unauthorized()
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.ErrorContext(ctx, "user lookup failed",
				slog.String("userID", userID),
				slog.String("error", err.Error()),
			)
		}
		return nil, "", apperror.Unauthorized()
	}

	return user, token, nil
}

// issueSession signs a token for userID and records it on store, which may
// be a transaction.
func (s *AuthService) issueSession(ctx context.Context, store repository.SessionRepository, userID string) (string, error) {
	token, err := s.tokens.Generate(userID)
	if err != nil {
		return "", err
	}
	if err := store.AddSession(ctx, userID, hashToken(token)); err != nil {
		return "", err
	}
	return token, nil
}

// hashToken is the form a token takes at rest: hex SHA-256. Tokens are long
// random strings, so a fast unsalted hash is enough here (unlike passwords).
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
