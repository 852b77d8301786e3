package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"onsite-tracker-backend/internal/coordinator"
)

// GetPending handles the GET /api/pending request.
func (h *Handler) GetPending(c *gin.Context) {
	entry, exit := h.coord.Pending()
	c.JSON(http.StatusOK, gin.H{"entry": entry, "exit": exit})
}

type resolveEntryRequest struct {
	Action       string `json:"action" binding:"required,oneof=confirm skip_today defer dismiss"`
	DelayMinutes int    `json:"delayMinutes"`
}

// ResolveEntry handles the POST /api/pending/entry request.
func (h *Handler) ResolveEntry(c *gin.Context) {
	var req resolveEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.coord.ResolveEntry(c.Request.Context(), coordinator.EntryAction(req.Action), req.DelayMinutes)
	if err != nil {
		switch {
		case errors.Is(err, coordinator.ErrNoPendingEntry):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case coordinator.Rejection(err):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.Status(http.StatusNoContent)
}

type resolveExitRequest struct {
	Action string `json:"action" binding:"required,oneof=confirm backdate_1 backdate_2 pause continue"`
}

// ResolveExit handles the POST /api/pending/exit request.
func (h *Handler) ResolveExit(c *gin.Context) {
	var req resolveExitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.coord.ResolveExit(c.Request.Context(), coordinator.ExitAction(req.Action))
	if err != nil {
		switch {
		case errors.Is(err, coordinator.ErrNoPendingExit):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case coordinator.Rejection(err):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.Status(http.StatusNoContent)
}
