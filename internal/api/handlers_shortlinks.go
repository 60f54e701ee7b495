package api

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"eventhub/internal/models"
	"eventhub/internal/storage"

	"github.com/gorilla/mux"
)

const (
	shortKeyAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	shortKeyLength   = 7
	// shortKeyAttempts bounds retries after a key collision.
	shortKeyAttempts = 5
)

// generateShortKey returns a random base62 key. Bytes at or above the largest
// multiple of 62 are rejected so every symbol is equally likely.
func generateShortKey() (string, error) {
	const limit = 256 - 256%len(shortKeyAlphabet)

	key := make([]byte, 0, shortKeyLength)
	buf := make([]byte, shortKeyLength*2)
	for len(key) < shortKeyLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate short key: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			key = append(key, shortKeyAlphabet[int(b)%len(shortKeyAlphabet)])
			if len(key) == shortKeyLength {
				break
			}
		}
	}
	return string(key), nil
}

// CreateShortLink handles POST /api/v1/short-links
// Authentication is optional; runs behind the short link rate limit policy.
func (h *Handlers) CreateShortLink(w http.ResponseWriter, r *http.Request) {
	var req models.CreateShortLinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := req.Validate(); errs != nil {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return
	}

	now := h.now().UTC()
	link := &models.ShortLink{
		TargetURL: req.TargetURL,
		CreatedBy: UserID(r),
		CreatedAt: now,
	}
	if req.TTLSeconds > 0 {
		expires := now.Add(time.Duration(req.TTLSeconds) * time.Second)
		link.ExpiresAt = &expires
	}

	var err error
	for attempt := 0; attempt < shortKeyAttempts; attempt++ {
		link.Key, err = generateShortKey()
		if err != nil {
			break
		}
		err = h.storage.CreateShortLink(r.Context(), link)
		if !errors.Is(err, storage.ErrConflict) {
			break
		}
		slog.Debug("Short key collision, retrying", "attempt", attempt+1)
	}
	if err != nil {
		slog.Error("Failed to create short link", "error", err)
		writeError(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to create short link")
		return
	}

	slog.Info("Short link created", "key", link.Key, "created_by", link.CreatedBy)
	writeJSON(w, http.StatusCreated, models.NewDataResponse("Short link created", models.ShortLinkResponse{
		ShortLink: *link,
		ShortURL:  h.shortURL(link.Key),
	}))
}

// ResolveShortLink handles GET /s/{key}
func (h *Handlers) ResolveShortLink(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	link, err := h.storage.GetShortLink(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, models.ErrorCodeNotFound, "Short link not found")
			return
		}
		slog.Error("Failed to resolve short link", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to resolve short link")
		return
	}
	if link.Expired(h.now()) {
		writeError(w, http.StatusGone, models.ErrorCodeGone, "Short link has expired")
		return
	}

	http.Redirect(w, r, link.TargetURL, http.StatusFound)
}

func (h *Handlers) shortURL(key string) string {
	return strings.TrimRight(h.publicBaseURL, "/") + "/s/" + key
}
