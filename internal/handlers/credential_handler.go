package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/aryandika/campusgate/internal/credentials"
	"github.com/aryandika/campusgate/internal/interfaces"
)

// CredentialHandler handles HTTP requests for linking portal accounts
type CredentialHandler struct {
	creds    *credentials.Store
	storage  interfaces.CredentialStorage
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewCredentialHandler creates a new CredentialHandler
func NewCredentialHandler(creds *credentials.Store, storage interfaces.CredentialStorage, logger arbor.ILogger) *CredentialHandler {
	return &CredentialHandler{
		creds:    creds,
		storage:  storage,
		validate: validator.New(),
		logger:   logger,
	}
}

type linkRequest struct {
	UserID         string `json:"user_id" validate:"required"`
	PortalUsername string `json:"portal_username" validate:"required"`
	Password       string `json:"password" validate:"required"`
}

// LinkHandler handles POST /api/credentials. The password is encrypted at
// rest and never returned by any endpoint.
func (h *CredentialHandler) LinkHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req linkRequest
	if err := ReadJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		WriteError(w, http.StatusBadRequest, "user_id, portal_username and password are required")
		return
	}

	if err := h.creds.Seed(r.Context(), req.UserID, req.PortalUsername, req.Password); err != nil {
		h.logger.Error().Str("user_id", req.UserID).Err(err).Msg("Failed to link portal account")
		WriteError(w, http.StatusInternalServerError, "failed to store credential")
		return
	}

	WriteSuccess(w, "portal account linked")
}

// UnlinkHandler handles DELETE /api/credentials
func (h *CredentialHandler) UnlinkHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	userID := UserIDFromRequest(r)
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := h.storage.Delete(r.Context(), userID); err != nil {
		h.logger.Error().Str("user_id", userID).Err(err).Msg("Failed to unlink portal account")
		WriteError(w, http.StatusInternalServerError, "failed to delete credential")
		return
	}

	WriteSuccess(w, "portal account unlinked")
}
