package api

import (
	"errors"
	"log/slog"
	"net/http"

	"eventhub/internal/models"
	"eventhub/internal/ratelimit"
	"eventhub/internal/storage"

	"github.com/gorilla/mux"
)

// maxEventIDLength bounds the {event_id} path segment.
const maxEventIDLength = 128

// RegisterForEvent handles public event registration
// POST /api/v1/public/events/{event_id}/register
// Runs behind the public registration rate limit policy.
func (h *Handlers) RegisterForEvent(w http.ResponseWriter, r *http.Request) {
	eventID := mux.Vars(r)["event_id"]
	if eventID == "" || len(eventID) > maxEventIDLength {
		writeError(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid event ID")
		return
	}

	var req models.RegistrationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Normalize()
	if errs := req.Validate(); errs != nil {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return
	}

	reg := req.ToRegistration(eventID, ratelimit.ClientIP(r))
	if err := h.storage.CreateRegistration(r.Context(), reg); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			writeError(w, http.StatusConflict, models.ErrorCodeConflict, "This email is already registered for the event")
			return
		}
		slog.Error("Failed to store registration", "event_id", eventID, "error", err)
		writeError(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to store registration")
		return
	}

	slog.Info("Registration created", "event_id", eventID, "registration_id", reg.ID)
	writeJSON(w, http.StatusCreated, models.NewDataResponse("Registration received", reg))
}

// ListRegistrations handles GET /api/v1/events/{event_id}/registrations
// Requires 'read' permission
func (h *Handlers) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	eventID := mux.Vars(r)["event_id"]

	regs, err := h.storage.ListRegistrations(r.Context(), eventID)
	if err != nil {
		slog.Error("Failed to list registrations", "event_id", eventID, "error", err)
		writeError(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to list registrations")
		return
	}
	if regs == nil {
		regs = []*models.Registration{}
	}
	writeJSON(w, http.StatusOK, models.NewDataResponse("", regs))
}
