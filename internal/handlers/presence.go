package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kompas/api/internal/models"
	"kompas/api/internal/service"
)

// Coordinates are pointers so that zero is a valid value; "required" on a
// plain float64 would reject latitude 0 or longitude 0.
type presenceUpdateRequest struct {
	Latitude       *float64 `json:"latitude" binding:"required"`
	Longitude      *float64 `json:"longitude" binding:"required"`
	LocationText   string   `json:"locationText"`
	BatteryPercent *int     `json:"batteryPercent"`
}

func (h HandlerSet) UpdatePresence(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req presenceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fix := service.Fix{
		Coordinate: models.Coordinate{
			Latitude:  *req.Latitude,
			Longitude: *req.Longitude,
		},
		LocationText:   req.LocationText,
		BatteryPercent: -1,
	}
	if req.BatteryPercent != nil {
		fix.BatteryPercent = *req.BatteryPercent
	}

	if err := h.presenceService.UpdateMyPresence(c.Request.Context(), user, c.Param("groupId"), fix); err != nil {
		writeGroupError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h HandlerSet) GroupPresence(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	members, err := h.presenceService.Members(c.Request.Context(), user.ID, c.Param("groupId"))
	if err != nil {
		writeGroupError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"members": members,
	})
}
