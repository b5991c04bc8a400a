// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data. There is no inheritance;
// Go favours composition instead.
package model

import "time"

// User represents a registered account.
//
// WHAT NEVER LEAVES THE SERVER:
// The password hash and the avatar bytes carry `json:"-"`, so encoding/json
// skips them no matter which handler serializes the user. Session tokens are
// not on this struct at all: they live in their own table (see Session).
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Age          int       `json:"age"`
	PasswordHash string    `json:"-"`
	Avatar       []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Session is one logged-in device. Only the SHA-256 digest of the bearer
// token is kept, so a leaked database row cannot be replayed as a token.
type Session struct {
	UserID    string
	TokenHash string
	CreatedAt time.Time
}

// UserUpdate is the allow-list for PATCH /users/me.
//
// STATIC ALLOW-LIST:
// Each permitted field is a pointer so "absent" (nil) differs from "set to
// the zero value". The handler checks the raw keys against
// UserUpdateFields first, so any key outside {name, email, password, age}
// rejects the whole request before anything is applied.
type UserUpdate struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Age      *int    `json:"age"`
}

// UserUpdateFields lists the exact JSON keys a PATCH /users/me body may use.
var UserUpdateFields = []string{"name", "email", "password", "age"}
