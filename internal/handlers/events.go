package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"kompas/api/internal/media/photo"
	"kompas/api/internal/models"
	"kompas/api/internal/repository"
	"kompas/api/internal/service"
)

type eventResponse struct {
	ID           string             `json:"id"`
	GroupID      *string            `json:"groupId,omitempty"`
	CreatorID    string             `json:"creatorId"`
	Title        string             `json:"title"`
	Description  string             `json:"description,omitempty"`
	Coordinate   *models.Coordinate `json:"coordinate,omitempty"`
	LocationText string             `json:"locationText,omitempty"`
	StartsAt     time.Time          `json:"startsAt"`
	PhotoURL     *string            `json:"photoUrl,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
}

func toEventResponse(event models.Event) eventResponse {
	return eventResponse{
		ID:           event.ID,
		GroupID:      event.GroupID,
		CreatorID:    event.CreatorID,
		Title:        event.Title,
		Description:  event.Description,
		Coordinate:   event.Coordinate,
		LocationText: event.LocationText,
		StartsAt:     event.StartsAt,
		PhotoURL:     event.PhotoURL,
		CreatedAt:    event.CreatedAt,
	}
}

func writeEventError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyEventTitle):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotEventOwner), errors.Is(err, service.ErrNotGroupMember):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrEventNotFound), errors.Is(err, repository.ErrGroupNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// CreateEvent accepts a multipart form so the photo rides along with the
// event fields in a single request.
func (h HandlerSet) CreateEvent(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	input := service.CreateEventInput{
		Title:        c.PostForm("title"),
		Description:  c.PostForm("description"),
		LocationText: c.PostForm("locationText"),
	}

	if groupID := c.PostForm("groupId"); groupID != "" {
		input.GroupID = &groupID
	}

	startsAt, err := time.Parse(time.RFC3339, c.PostForm("startsAt"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "startsAt must be RFC 3339"})
		return
	}
	input.StartsAt = startsAt

	if coord, ok := parseCoordinate(c); ok {
		input.Coordinate = coord
	}

	if fileHeader, err := c.FormFile("photo"); err == nil {
		if !declaredImageType(fileHeader) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "photo must be an image"})
			return
		}
		if fileHeader.Size > h.cfg.Uploads.MaxPhotoBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo too large"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		data, err := io.ReadAll(io.LimitReader(file, h.cfg.Uploads.MaxPhotoBytes+1))
		file.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if int64(len(data)) > h.cfg.Uploads.MaxPhotoBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo too large"})
			return
		}
		input.Photo = data
	}

	event, err := h.eventService.CreateEvent(c.Request.Context(), user, input)
	if err != nil {
		writeEventError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"event": toEventResponse(event),
	})
}

// declaredImageType rejects parts whose declared Content-Type is present and
// plainly not an image, before any bytes are read. Sniffing still decides the
// real format afterwards.
func declaredImageType(fileHeader *multipart.FileHeader) bool {
	declared := photo.MimeTypeFromHTTP(http.Header(fileHeader.Header))
	return declared == "" || strings.HasPrefix(declared, "image/")
}

func parseCoordinate(c *gin.Context) (*models.Coordinate, bool) {
	latText := c.PostForm("latitude")
	lngText := c.PostForm("longitude")
	if latText == "" || lngText == "" {
		return nil, false
	}

	lat, err := strconv.ParseFloat(latText, 64)
	if err != nil {
		return nil, false
	}
	lng, err := strconv.ParseFloat(lngText, 64)
	if err != nil {
		return nil, false
	}
	return &models.Coordinate{Latitude: lat, Longitude: lng}, true
}

func (h HandlerSet) ListEvents(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var groupID *string
	if id := c.Query("groupId"); id != "" {
		groupID = &id
	}

	events, err := h.eventService.ListEvents(c.Request.Context(), user.ID, groupID)
	if err != nil {
		writeEventError(c, err)
		return
	}

	resp := make([]eventResponse, 0, len(events))
	for _, event := range events {
		resp = append(resp, toEventResponse(event))
	}

	c.JSON(http.StatusOK, gin.H{
		"events": resp,
	})
}

func (h HandlerSet) DeleteEvent(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.eventService.DeleteEvent(c.Request.Context(), user.ID, c.Param("eventId")); err != nil {
		writeEventError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
