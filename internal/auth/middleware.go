package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sakif/taskmanager/internal/model"
)

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue accepts any key. With a plain string key, any package
// that knows the string could read or shadow the value. Only this package can
// construct a contextKey, so only this package can set these values.
type contextKey string

const (
	userKey  contextKey = "user"
	tokenKey contextKey = "token"
)

// Resolver turns an Authorization header into the user it authenticates and
// the bare token. service.AuthService implements it.
//
// The interface lives here (not in package service) so that auth does not
// import service; server.go wires the two together.
type Resolver interface {
	Authenticate(ctx context.Context, authorization string) (*model.User, string, error)
}

// unauthorizedBody is the only thing a rejected request ever sees. It does
// not say which check failed.
var unauthorizedBody = map[string]string{
	"error":   "unauthorized",
	"message": "please authenticate",
}

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It hands the Authorization header to the resolver. On success the user and
// the token are stored in the request context for the handlers. Any failure
// ends the request with 401 and the next handler never runs.
//
// MIDDLEWARE PATTERN IN GO:
//
//	func Middleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // ... before ...
//	        next.ServeHTTP(w, r)
//	        // ... after ...
//	    })
//	}
func RequireAuth(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, token, err := resolver.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil || user == nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(unauthorizedBody)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user, token)))
		})
	}
}

// WithUser returns a copy of ctx carrying the authenticated user and token.
func WithUser(ctx context.Context, user *model.User, token string) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, tokenKey, token)
}

// UserFromContext retrieves the authenticated user.
// Returns (nil, false) outside a RequireAuth-protected route.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// TokenFromContext retrieves the bearer token the request was authenticated
// with. Logout needs it to know which session to end.
func TokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenKey).(string)
	return t, ok && t != ""
}
