package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"eventhub/internal/models"
)

// createAPIKeyRequest is the request body for POST /api/v1/admin/keys.
type createAPIKeyRequest struct {
	Name        string   `json:"name"`
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
}

// createAPIKeyResponse includes the raw key. It is returned exactly once.
type createAPIKeyResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Key         string    `json:"key"`
	Prefix      string    `json:"prefix"`
	Permissions []string  `json:"permissions"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

func validPermission(p string) bool {
	switch p {
	case models.PermissionRead, models.PermissionWrite, models.PermissionAdmin, "*":
		return true
	}
	return false
}

// CreateAPIKey handles POST /api/v1/admin/keys
// Requires 'admin' permission
func (h *Handlers) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	errs := make(map[string]string)
	req.Name = strings.TrimSpace(req.Name)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.Name == "" {
		errs["name"] = "name is required"
	}
	if req.UserID == "" {
		errs["user_id"] = "user_id is required"
	}
	if len(req.Permissions) == 0 {
		errs["permissions"] = "permissions is required"
	}
	for _, p := range req.Permissions {
		if !validPermission(p) {
			errs["permissions"] = "unknown permission: " + p
			break
		}
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return
	}

	rawKey, err := models.GenerateAPIKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to generate key")
		return
	}

	key := models.NewAPIKey(req.UserID, req.Name, rawKey, req.Permissions)
	if err := h.storage.CreateAPIKey(r.Context(), key); err != nil {
		slog.Error("Failed to store API key", "error", err)
		writeError(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to create key")
		return
	}

	slog.Info("api key created",
		"event", "security_audit",
		"action", "create",
		"key_id", key.ID,
		"key_name", key.Name,
		"user_id", key.UserID,
		"actor_key_id", actorKeyID(r),
	)

	writeJSON(w, http.StatusCreated, createAPIKeyResponse{
		ID:          key.ID,
		UserID:      key.UserID,
		Name:        key.Name,
		Key:         rawKey,
		Prefix:      key.Prefix,
		Permissions: key.Permissions,
		Enabled:     key.Enabled,
		CreatedAt:   key.CreatedAt,
	})
}

// actorKeyID extracts the ID of the authenticated key making this request.
func actorKeyID(r *http.Request) string {
	if sc := GetSecurityContext(r); sc != nil {
		return sc.APIKey.ID
	}
	return "unknown"
}
