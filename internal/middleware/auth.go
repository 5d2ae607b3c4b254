package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"rbac-auth/internal/model"
	"rbac-auth/pkg/apierror"
)

type authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*model.User, error)
}

type contextKey string

const userContextKey contextKey = "auth_user"

type AuthMiddleware struct {
	auth authenticator
}

func NewAuthMiddleware(auth authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// RequireAuth resolves the bearer access token to an active user, with role
// and permissions loaded, and stores it in the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := BearerToken(r)
		if !ok {
			writeAPIError(w, apierror.Unauthorized("Missing or invalid authorization header"))
			return
		}

		user, err := m.auth.Authenticate(r.Context(), raw)
		if err != nil {
			writeAPIError(w, asAPIError(err))
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// OptionalAuth attaches the caller when a valid access token is presented and
// otherwise lets the request through anonymously.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := BearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.auth.Authenticate(r.Context(), raw)
		if err != nil {
			slog.Debug("ignoring unusable bearer token", "path", r.URL.Path, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// RequirePermission must run after RequireAuth.
func (m *AuthMiddleware) RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeAPIError(w, apierror.Unauthorized("Authentication required"))
				return
			}

			if !user.Role.HasPermission(permission) {
				writeAPIError(w, apierror.Forbidden("Missing permission "+permission))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	return user, ok && user != nil
}

func withUser(ctx context.Context, user *model.User) context.Context {
	if info := requestInfoFrom(ctx); info != nil {
		info.userID.Store(user.ID)
	}
	return context.WithValue(ctx, userContextKey, user)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}

	raw := strings.TrimSpace(header[7:])
	return raw, raw != ""
}

func asAPIError(err error) *apierror.APIError {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return apierror.Internal("Internal server error")
}
