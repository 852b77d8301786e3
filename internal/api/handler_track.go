package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"onsite-tracker-backend/internal/coordinator"
	"onsite-tracker-backend/internal/geo"
)

type positionRequest struct {
	Latitude  float64 `json:"latitude" binding:"required"`
	Longitude float64 `json:"longitude" binding:"required"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp string  `json:"timestamp"`
}

// PostPosition handles the POST /api/track/position request: a raw
// position sample from a host that pushes instead of being polled.
func (h *Handler) PostPosition(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pos := &geo.Position{
		Point:    geo.Point{Latitude: req.Latitude, Longitude: req.Longitude},
		Accuracy: req.Accuracy,
	}
	if req.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			pos.Timestamp = ts
		}
	}

	h.coord.Push(coordinator.Event{Type: coordinator.EventRawPosition, Position: pos})
	c.Status(http.StatusAccepted)
}

type geofenceEventRequest struct {
	Type      string   `json:"type" binding:"required,oneof=enter exit"`
	RegionID  int64    `json:"regionId" binding:"required"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  *float64 `json:"accuracy"`
}

// PostGeofenceEvent handles the POST /api/track/event request: an
// OS-delivered geofence callback carrying the region id directly.
func (h *Handler) PostGeofenceEvent(c *gin.Context) {
	var req geofenceEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	evt := coordinator.Event{RegionID: req.RegionID}
	if req.Type == "enter" {
		evt.Type = coordinator.EventEnter
	} else {
		evt.Type = coordinator.EventExit
	}
	if req.Latitude != nil && req.Longitude != nil {
		pos := &geo.Position{Point: geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}}
		if req.Accuracy != nil {
			pos.Accuracy = *req.Accuracy
		}
		evt.Position = pos
	}

	h.coord.Push(evt)
	c.Status(http.StatusAccepted)
}
