package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/aryandika/campusgate/internal/credentials"
	"github.com/aryandika/campusgate/internal/crypto"
	"github.com/aryandika/campusgate/internal/services/auth"
)

// SessionHandler handles HTTP requests for portal session lifecycle
type SessionHandler struct {
	sessions *auth.Service
	logger   arbor.ILogger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessions *auth.Service, logger arbor.ILogger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// GetStatusHandler handles GET /api/session/status
func (h *SessionHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	userID := UserIDFromRequest(r)
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	WriteJSON(w, http.StatusOK, h.sessions.Status(userID))
}

// RefreshHandler handles POST /api/session/refresh. It acquires a session
// for the user, performing a full login if nothing reusable exists.
func (h *SessionHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := ReadJSON(r, &req); err != nil || req.UserID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	session, err := h.sessions.Acquire(r.Context(), req.UserID)
	if err != nil {
		h.writeAcquireError(w, req.UserID, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"user_id": session.UserID,
	})
}

// InvalidateHandler handles DELETE /api/session
func (h *SessionHandler) InvalidateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	userID := UserIDFromRequest(r)
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := h.sessions.Invalidate(r.Context(), userID); err != nil {
		h.logger.Error().Str("user_id", userID).Err(err).Msg("Failed to invalidate session")
		WriteError(w, http.StatusInternalServerError, "failed to invalidate session")
		return
	}

	WriteSuccess(w, "session invalidated")
}

// writeAcquireError maps session acquisition failures to HTTP statuses.
func (h *SessionHandler) writeAcquireError(w http.ResponseWriter, userID string, err error) {
	var loginErr *auth.LoginFailedError

	switch {
	case errors.Is(err, credentials.ErrNotLinked):
		WriteError(w, http.StatusNotFound, "portal account not linked")
	case errors.Is(err, crypto.ErrDecrypt):
		h.logger.Error().Str("user_id", userID).Err(err).Msg("Credential decryption failed")
		WriteError(w, http.StatusInternalServerError, "stored credential cannot be decrypted")
	case errors.Is(err, auth.ErrLoginThrottled):
		WriteError(w, http.StatusTooManyRequests, "too many login attempts, try again later")
	case errors.As(err, &loginErr):
		WriteError(w, http.StatusUnauthorized, "portal rejected the stored credentials")
	case errors.Is(err, auth.ErrTransport):
		WriteError(w, http.StatusBadGateway, "portal unreachable")
	default:
		h.logger.Error().Str("user_id", userID).Err(err).Msg("Session acquisition failed")
		WriteError(w, http.StatusInternalServerError, "failed to acquire session")
	}
}
