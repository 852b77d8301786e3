package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"onsite-tracker-backend/internal/coordinator"
	"onsite-tracker-backend/internal/model"
)

// sessionResponse is the flattened structure for the API response.
type sessionResponse struct {
	model.Session
	Status          model.SessionStatus `json:"status"`
	DurationMinutes int                 `json:"durationMinutes"`
}

func toSessionResponse(s model.Session, now time.Time) sessionResponse {
	return sessionResponse{
		Session:         s,
		Status:          s.Status(),
		DurationMinutes: s.DurationMinutes(now),
	}
}

// GetSessions handles the GET /api/sessions request. The optional "day"
// query (YYYY-MM-DD, local timezone) defaults to today.
func (h *Handler) GetSessions(c *gin.Context) {
	day := time.Now().In(h.location)
	if dayParam := c.Query("day"); dayParam != "" {
		parsed, err := time.ParseInLocation("2006-01-02", dayParam, h.location)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'day' format. Use YYYY-MM-DD."})
			return
		}
		day = parsed
	}

	sessions, err := h.ledger.SessionsOnDay(c.Request.Context(), day, h.location)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve sessions"})
		return
	}

	now := time.Now().UTC()
	response := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		response = append(response, toSessionResponse(s, now))
	}
	c.JSON(http.StatusOK, response)
}

// GetCurrentSession handles the GET /api/sessions/current request.
func (h *Handler) GetCurrentSession(c *gin.Context) {
	session, err := h.ledger.CurrentSession(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve current session"})
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open session"})
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(*session, time.Now().UTC()))
}

// PauseSession handles the POST /api/sessions/current/pause request.
// Invariant rejections surface as explicit conflict messages, never as a
// silent no-op.
func (h *Handler) PauseSession(c *gin.Context) {
	session, err := h.ledger.Pause(c.Request.Context())
	if err != nil {
		h.rejectOrFail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(*session, time.Now().UTC()))
}

// ResumeSession handles the POST /api/sessions/current/resume request.
func (h *Handler) ResumeSession(c *gin.Context) {
	session, err := h.ledger.Resume(c.Request.Context())
	if err != nil {
		h.rejectOrFail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(*session, time.Now().UTC()))
}

type stopSessionRequest struct {
	OffsetMinutes int `json:"offsetMinutes"`
}

// StopSession handles the POST /api/sessions/current/stop request. A
// negative offset back-dates the exit ("stopped N minutes ago").
func (h *Handler) StopSession(c *gin.Context) {
	var req stopSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	current, err := h.ledger.CurrentSession(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if current == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open session to stop"})
		return
	}

	var session *model.Session
	if req.OffsetMinutes != 0 {
		session, err = h.ledger.StopWithAdjustment(c.Request.Context(), current.RegionID, req.OffsetMinutes, nil)
	} else {
		session, err = h.ledger.Stop(c.Request.Context(), current.RegionID, nil)
	}
	if err != nil {
		h.rejectOrFail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(*session, time.Now().UTC()))
}

// GetTodayStats handles the GET /api/stats/today request.
func (h *Handler) GetTodayStats(c *gin.Context) {
	stats, err := h.ledger.StatsOnDay(c.Request.Context(), time.Now(), h.location)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// rejectOrFail maps expected invariant rejections to 409 and everything
// else to 500.
func (h *Handler) rejectOrFail(c *gin.Context, err error) {
	if coordinator.Rejection(err) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
