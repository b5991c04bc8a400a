// Package auth issues and verifies bearer tokens and hashes passwords.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. POST /users or /users/login → service verifies the credentials
//  2. TokenService.Generate signs a JWT whose subject is the user ID
//  3. The SHA-256 digest of that token is stored as a session row
//  4. The client sends "Authorization: Bearer <token>" on every request
//  5. RequireAuth verifies the signature, then asks the service whether the
//     digest is still a live session of that user
//
// WHY A SIGNED TOKEN *AND* A SESSION ROW?
// The signature alone proves the server issued the token. It cannot be
// revoked, though. The session row is what logout deletes, so a token stops
// working the moment its session is gone even if the signature is still fine.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: algorithm + token type → {"alg":"HS256","typ":"JWT"}
//	- Payload: claims → {"sub":"userID","jti":"<uuid>","iat":1234567890}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "taskmanager"

// ErrInvalidToken is returned by Validate for every rejected token.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenService handles JWT creation and validation.
//
// ttl of zero issues tokens without an exp claim: they stay valid until the
// session is removed by logout or account deletion.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret and lifetime.
// The secret should be at least 32 bytes of random data in production.
// Example: TASKMGR_AUTH_JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl < 0 {
		return nil, errors.New("auth: token TTL must not be negative")
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// claims is the JWT payload. Subject carries the user ID.
type claims struct {
	jwt.RegisteredClaims
}

// Generate creates and signs a new token for userID.
//
// UNIQUE TOKENS:
// iat only has one-second resolution, so two logins by the same user in the
// same second would otherwise produce byte-identical tokens and collapse into
// a single session. The random jti (RFC 7519 "JWT ID") keeps every issued
// token distinct.
func (s *TokenService) Generate(userID string) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   issuer,
		},
	}
	if s.ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a token and returns the user ID it was
// issued to.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Algorithm is HS256 (prevents the "alg: none" confusion attack)
//   - Issuer matches
//   - exp, when present, is in the future (and must be present if ttl > 0)
//
// Every failure wraps ErrInvalidToken; callers never need to tell them apart.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
	}
	if s.ttl > 0 {
		// Once lifetimes are configured, a token without exp was not minted
		// under the current settings.
		opts = append(opts, jwt.WithExpirationRequired())
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		opts...,
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: bad claims", ErrInvalidToken)
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	return c.Subject, nil
}
