package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"eventhub/internal/models"
	"eventhub/internal/ratelimit"
	"eventhub/internal/storage"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
)

// Permission represents the different permission levels
type Permission string

const (
	PermissionRead  Permission = models.PermissionRead
	PermissionWrite Permission = models.PermissionWrite
	PermissionAdmin Permission = models.PermissionAdmin
)

type apiKeyContextKey struct{}

// authError carries the message returned to the client on a 401.
type authError string

func (e authError) Error() string { return string(e) }

const (
	errMissingAuth   authError = "Authorization required"
	errInvalidFormat authError = "Invalid authorization format"
	errInvalidKey    authError = "Invalid API key"
)

// SecurityContext represents the security information for a request
type SecurityContext struct {
	APIKey *models.APIKey
}

// HasPermission checks if the security context has the required permission
func (sc *SecurityContext) HasPermission(required Permission) bool {
	if sc == nil || sc.APIKey == nil {
		return false
	}
	return sc.APIKey.HasPermission(string(required))
}

// GetSecurityContext extracts security context from request context
func GetSecurityContext(r *http.Request) *SecurityContext {
	if apiKey, ok := r.Context().Value(apiKeyContextKey{}).(*models.APIKey); ok {
		return &SecurityContext{APIKey: apiKey}
	}
	return nil
}

// WithAPIKey attaches an authenticated key to ctx.
func WithAPIKey(ctx context.Context, key *models.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyContextKey{}, key)
}

// UserID returns the user owning the request's API key, or "" when the
// request is anonymous. It is the actor function of the short link policy.
func UserID(r *http.Request) string {
	if sc := GetSecurityContext(r); sc != nil {
		return sc.APIKey.UserID
	}
	return ""
}

// authenticate resolves the Bearer token of r to an enabled API key.
func authenticate(store storage.Storage, r *http.Request) (*models.APIKey, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, errMissingAuth
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return nil, errInvalidFormat
	}
	token := strings.TrimSpace(authHeader[len(prefix):])
	if token == "" {
		return nil, errInvalidFormat
	}

	key, err := store.GetAPIKeyByHash(r.Context(), models.HashAPIKey(token))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Error("API key lookup failed", "error", err)
		}
		return nil, errInvalidKey
	}
	if !key.Enabled {
		return nil, errInvalidKey
	}
	return key, nil
}

// RequireAuth rejects requests without a valid API key.
func RequireAuth(store storage.Storage) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := authenticate(store, r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, models.ErrorCodeUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAPIKey(r.Context(), key)))
		})
	}
}

// RequirePermission creates middleware that enforces a specific permission.
// It must run after RequireAuth.
func RequirePermission(required Permission) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !GetSecurityContext(r).HasPermission(required) {
				writeError(w, http.StatusForbidden, models.ErrorCodeForbidden,
					"Insufficient permissions for this operation")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OptionalAuth attaches the API key when one is presented and valid. Invalid
// or missing credentials leave the request anonymous.
func OptionalAuth(store storage.Storage) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := authenticate(store, r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAPIKey(r.Context(), key)))
		})
	}
}

// clientIPMiddleware pins the rate limit client address to the socket peer
// unless proxy headers are trusted.
func clientIPMiddleware(trustProxyHeaders bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if trustProxyHeaders {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ratelimit.RemoteHost(r.RemoteAddr)
			if ip == "" {
				ip = ratelimit.UnknownClient
			}
			next.ServeHTTP(w, r.WithContext(ratelimit.WithClientIP(r.Context(), ip)))
		})
	}
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		level := slog.LevelInfo
		if m.Code >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"duration_ms", m.Duration.Milliseconds(),
			"client_ip", ratelimit.ClientIP(r),
		)
	})
}

// recoveryMiddleware handles panics
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("Panic recovered", "error", err, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
