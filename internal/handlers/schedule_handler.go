package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/aryandika/campusgate/internal/interfaces"
	"github.com/aryandika/campusgate/internal/services/schedule"
)

// ScheduleHandler handles HTTP requests for weekly schedules
type ScheduleHandler struct {
	schedules *schedule.Service
	sessions  sessionErrorWriter
	logger    arbor.ILogger
}

// sessionErrorWriter lets the schedule endpoints reuse the session error
// mapping when a refresh has to acquire a session first.
type sessionErrorWriter interface {
	writeAcquireError(w http.ResponseWriter, userID string, err error)
}

// NewScheduleHandler creates a new ScheduleHandler
func NewScheduleHandler(schedules *schedule.Service, sessions *SessionHandler, logger arbor.ILogger) *ScheduleHandler {
	return &ScheduleHandler{
		schedules: schedules,
		sessions:  sessions,
		logger:    logger,
	}
}

// GetScheduleHandler handles GET /api/schedule, serving the latest scrape.
func (h *ScheduleHandler) GetScheduleHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	userID := UserIDFromRequest(r)
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	sched, err := h.schedules.Latest(r.Context(), userID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "no schedule scraped yet for this user")
			return
		}
		h.logger.Error().Str("user_id", userID).Err(err).Msg("Failed to load schedule")
		WriteError(w, http.StatusInternalServerError, "failed to load schedule")
		return
	}

	WriteJSON(w, http.StatusOK, sched)
}

// GetCalendarHandler handles GET /api/schedule/ics, rendering the latest
// scrape as a downloadable iCalendar file.
func (h *ScheduleHandler) GetCalendarHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	userID := UserIDFromRequest(r)
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	sched, err := h.schedules.Latest(r.Context(), userID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "no schedule scraped yet for this user")
			return
		}
		h.logger.Error().Str("user_id", userID).Err(err).Msg("Failed to load schedule")
		WriteError(w, http.StatusInternalServerError, "failed to load schedule")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="jadwal_kuliah.ics"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(schedule.RenderICS(sched))); err != nil {
		h.logger.Warn().Str("user_id", userID).Err(err).Msg("Failed to write calendar response")
	}
}

// RefreshScheduleHandler handles POST /api/schedule/refresh, scraping the
// portal synchronously.
func (h *ScheduleHandler) RefreshScheduleHandler(w http.ResponseWriter, r *http.Request) {
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

	sched, err := h.schedules.FetchWeekly(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, schedule.ErrScheduleNotFound) {
			WriteError(w, http.StatusBadGateway, "portal page carried no schedule table")
			return
		}
		h.sessions.writeAcquireError(w, req.UserID, err)
		return
	}

	WriteJSON(w, http.StatusOK, sched)
}
