package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"eventhub/internal/models"
	"eventhub/internal/ratelimit"
	"eventhub/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestAPIKey creates an API key in the store and returns the raw key.
func newTestAPIKey(t *testing.T, store storage.Storage, userID, rawKey string, perms []string, enabled bool) string {
	t.Helper()
	ak := models.NewAPIKey(userID, userID+"-key", rawKey, perms)
	ak.Enabled = enabled
	require.NoError(t, store.CreateAPIKey(t.Context(), ak))
	return rawKey
}

func TestRequireAuth(t *testing.T) {
	store := storage.NewMemoryStorage()
	validKey := newTestAPIKey(t, store, "u1", "valid-raw-key", []string{"read"}, true)
	newTestAPIKey(t, store, "u2", "disabled-raw-key", []string{"admin"}, false)

	var gotUser string
	handler := RequireAuth(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserID(r)
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name        string
		authHeader  string
		wantStatus  int
		wantMessage string
	}{
		{"valid key", "Bearer " + validKey, http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, "Authorization required"},
		{"unknown key", "Bearer totally-invalid-key", http.StatusUnauthorized, "Invalid API key"},
		{"disabled key", "Bearer disabled-raw-key", http.StatusUnauthorized, "Invalid API key"},
		{"wrong scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "Invalid authorization format"},
		{"empty bearer", "Bearer   ", http.StatusUnauthorized, "Invalid authorization format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser = ""
			req := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "u1", gotUser)
				return
			}
			resp := decodeError(t, rr)
			assert.Equal(t, models.ErrorCodeUnauthorized, resp.Code)
			assert.Equal(t, tt.wantMessage, resp.Message)
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	store := storage.NewMemoryStorage()
	validKey := newTestAPIKey(t, store, "u1", "valid-raw-key", []string{"write"}, true)

	var gotUser string
	handler := OptionalAuth(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserID(r)
	}))

	tests := []struct {
		name       string
		authHeader string
		wantUser   string
	}{
		{"valid key attaches user", "Bearer " + validKey, "u1"},
		{"no header stays anonymous", "", ""},
		{"invalid key stays anonymous", "Bearer nope", ""},
		{"invalid format stays anonymous", "Token " + validKey, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/short-links", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.wantUser, gotUser)
		})
	}
}

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name       string
		key        *models.APIKey
		required   Permission
		wantStatus int
	}{
		{"no key", nil, PermissionRead, http.StatusForbidden},
		{"admin has read", &models.APIKey{Permissions: []string{"admin"}, Enabled: true}, PermissionRead, http.StatusOK},
		{"write has read", &models.APIKey{Permissions: []string{"write"}, Enabled: true}, PermissionRead, http.StatusOK},
		{"read lacks write", &models.APIKey{Permissions: []string{"read"}, Enabled: true}, PermissionWrite, http.StatusForbidden},
		{"write lacks admin", &models.APIKey{Permissions: []string{"write"}, Enabled: true}, PermissionAdmin, http.StatusForbidden},
		{"wildcard has admin", &models.APIKey{Permissions: []string{"*"}, Enabled: true}, PermissionAdmin, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequirePermission(tt.required)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.key != nil {
				req = req.WithContext(WithAPIKey(req.Context(), tt.key))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusForbidden {
				assert.Equal(t, models.ErrorCodeForbidden, decodeError(t, rr).Code)
			}
		})
	}
}

func TestClientIPMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		trust      bool
		remoteAddr string
		xff        string
		want       string
	}{
		{"untrusted uses socket peer", false, "192.0.2.7:8000", "198.51.100.1", "192.0.2.7"},
		{"untrusted ipv6 peer", false, "[2001:db8::1]:8000", "198.51.100.1", "2001:db8::1"},
		{"untrusted empty peer", false, "", "198.51.100.1", ratelimit.UnknownClient},
		{"trusted uses forwarded header", true, "192.0.2.7:8000", "198.51.100.1, 192.0.2.7", "198.51.100.1"},
		{"trusted without header", true, "192.0.2.7:8000", "", "192.0.2.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := clientIPMiddleware(tt.trust)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ratelimit.ClientIP(r)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, models.ErrorCodeInternalError, decodeError(t, rr).Code)
}

func TestLoggingMiddleware_PassesResponseThrough(t *testing.T) {
	handler := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, "short and stout", rr.Body.String())
}
