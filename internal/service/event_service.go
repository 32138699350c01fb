package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"kompas/api/internal/ids"
	"kompas/api/internal/media/photo"
	"kompas/api/internal/models"
)

var (
	ErrEmptyEventTitle = errors.New("event title is empty")
	ErrNotEventOwner   = errors.New("caller may not modify this event")
)

type EventStore interface {
	Create(ctx context.Context, event models.Event) error
	GetByID(ctx context.Context, id string) (models.Event, error)
	ListForGroup(ctx context.Context, groupID string) ([]models.Event, error)
	ListByCreator(ctx context.Context, creatorID string) ([]models.Event, error)
	Delete(ctx context.Context, id string) error
}

// PhotoStore persists event photos and returns (objectKey, publicURL).
type PhotoStore interface {
	PutPhoto(ctx context.Context, id string, ext string, data []byte, contentType string) (string, string, error)
	RemovePhoto(ctx context.Context, objectKey string) error
}

type EventService struct {
	events EventStore
	groups GroupSource
	photos PhotoStore
	log    zerolog.Logger
}

func NewEventService(events EventStore, groups GroupSource, photos PhotoStore, log zerolog.Logger) *EventService {
	return &EventService{
		events: events,
		groups: groups,
		photos: photos,
		log:    log,
	}
}

type CreateEventInput struct {
	GroupID      *string
	Title        string
	Description  string
	Coordinate   *models.Coordinate
	LocationText string
	StartsAt     time.Time
	Photo        []byte
}

func (s *EventService) CreateEvent(ctx context.Context, creator models.User, input CreateEventInput) (models.Event, error) {
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return models.Event{}, ErrEmptyEventTitle
	}

	if input.GroupID != nil {
		group, err := s.groups.GetByID(ctx, *input.GroupID)
		if err != nil {
			return models.Event{}, err
		}
		if !group.HasMember(creator.ID) {
			return models.Event{}, ErrNotGroupMember
		}
	}

	event := models.Event{
		ID:           ids.New(),
		GroupID:      input.GroupID,
		CreatorID:    creator.ID,
		Title:        input.Title,
		Description:  strings.TrimSpace(input.Description),
		Coordinate:   input.Coordinate,
		LocationText: input.LocationText,
		StartsAt:     input.StartsAt,
	}

	if len(input.Photo) > 0 {
		detected, err := photo.Detect(input.Photo)
		if err != nil {
			return models.Event{}, fmt.Errorf("photo: %w", err)
		}
		objectKey, url, err := s.photos.PutPhoto(ctx, event.ID, string(detected.Format), input.Photo, detected.MIME)
		if err != nil {
			return models.Event{}, fmt.Errorf("store photo: %w", err)
		}
		event.PhotoObject = &objectKey
		event.PhotoURL = &url
	}

	if err := s.events.Create(ctx, event); err != nil {
		return models.Event{}, err
	}
	return event, nil
}

// ListEvents returns a group's events (including global ones from its
// members) when groupID is set, otherwise the caller's own events.
func (s *EventService) ListEvents(ctx context.Context, callerID string, groupID *string) ([]models.Event, error) {
	if groupID == nil {
		return s.events.ListByCreator(ctx, callerID)
	}

	group, err := s.groups.GetByID(ctx, *groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(callerID) {
		return nil, ErrNotGroupMember
	}
	return s.events.ListForGroup(ctx, *groupID)
}

// DeleteEvent is allowed for the creator, or the owner of the group the
// event is pinned to.
func (s *EventService) DeleteEvent(ctx context.Context, callerID string, eventID string) error {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}

	allowed := event.CreatorID == callerID
	if !allowed && event.GroupID != nil {
		group, err := s.groups.GetByID(ctx, *event.GroupID)
		if err == nil && group.OwnerID == callerID {
			allowed = true
		}
	}
	if !allowed {
		return ErrNotEventOwner
	}

	if err := s.events.Delete(ctx, eventID); err != nil {
		return err
	}

	if event.PhotoObject != nil {
		if err := s.photos.RemovePhoto(ctx, *event.PhotoObject); err != nil {
			s.log.Warn().Err(err).Str("event_id", eventID).Msg("remove event photo failed")
		}
	}
	return nil
}
