package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"onsite-tracker-backend/internal/geo"
	"onsite-tracker-backend/internal/registry"
)

type proposeRegionRequest struct {
	Name      string  `json:"name" binding:"required"`
	Latitude  float64 `json:"latitude" binding:"required"`
	Longitude float64 `json:"longitude" binding:"required"`
	Radius    float64 `json:"radius"`
	Color     string  `json:"color"`
}

// PostRegion handles the POST /api/regions request.
func (h *Handler) PostRegion(c *gin.Context) {
	var req proposeRegionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	region, err := h.registry.Propose(c.Request.Context(), registry.Proposal{
		Name:   req.Name,
		Center: geo.Point{Latitude: req.Latitude, Longitude: req.Longitude},
		Radius: req.Radius,
		Color:  req.Color,
	})
	if err != nil {
		var overlap *registry.OverlapError
		switch {
		case errors.As(err, &overlap):
			c.JSON(http.StatusConflict, gin.H{
				"error":             overlap.Error(),
				"conflictingRegion": overlap.ConflictingRegion,
				"distanceMeters":    overlap.DistanceMeters,
				"requiredMinimum":   overlap.RequiredMinimum,
			})
		case errors.Is(err, registry.ErrDuplicateName), errors.Is(err, registry.ErrRadiusOutOfRange):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, region)
}

// GetRegions handles the GET /api/regions request.
func (h *Handler) GetRegions(c *gin.Context) {
	regions, err := h.store.ActiveRegions(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve regions"})
		return
	}
	c.JSON(http.StatusOK, regions)
}

// GetNearestRegion handles the GET /api/regions/nearest request: given a
// coordinate, it reports the closest active region with distance and
// bearing, whether or not the point is inside it.
func (h *Handler) GetNearestRegion(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("latitude"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("longitude"), 64)
	if errLat != nil || errLng != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude are required"})
		return
	}
	point := geo.Point{Latitude: lat, Longitude: lng}

	regions, err := h.store.ActiveRegions(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve regions"})
		return
	}

	idx, distance := geo.Nearest(point, regions)
	if idx < 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active regions"})
		return
	}

	region := regions[idx]
	c.JSON(http.StatusOK, gin.H{
		"region":         region,
		"distanceMeters": distance,
		"bearingDegrees": geo.Bearing(point, region.Center()),
		"inside":         region.Contains(point),
	})
}

// PatchRegion handles the PATCH /api/regions/:region_id request.
func (h *Handler) PatchRegion(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("region_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid region ID"})
		return
	}

	var updates registry.Update
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	region, err := h.registry.Update(c.Request.Context(), id, updates)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrRegionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, registry.ErrRadiusOutOfRange):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, region)
}

// DeleteRegion handles the DELETE /api/regions/:region_id request by
// soft-deleting the region.
func (h *Handler) DeleteRegion(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("region_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid region ID"})
		return
	}

	if err := h.registry.Deactivate(c.Request.Context(), id); err != nil {
		if errors.Is(err, registry.ErrRegionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.Status(http.StatusNoContent)
}
