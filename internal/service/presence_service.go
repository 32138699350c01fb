package service

import (
	"context"

	"github.com/rs/zerolog"

	"kompas/api/internal/models"
	"kompas/api/internal/presence"
)

type PresenceStore interface {
	Upsert(ctx context.Context, groupID string, up presence.Update) error
	Snapshot(ctx context.Context, groupID string) ([]models.MemberPresence, error)
}

// GroupSource is the subset of the group store the presence service needs
// for membership checks.
type GroupSource interface {
	GetByID(ctx context.Context, id string) (models.Group, error)
}

type PresenceService struct {
	store  PresenceStore
	groups GroupSource
	log    zerolog.Logger
}

func NewPresenceService(store PresenceStore, groups GroupSource, log zerolog.Logger) *PresenceService {
	return &PresenceService{
		store:  store,
		groups: groups,
		log:    log,
	}
}

// Fix is one accepted location fix. BatteryPercent below zero means the
// device did not report a level.
type Fix struct {
	Coordinate     models.Coordinate
	LocationText   string
	BatteryPercent int
}

// UpdateMyPresence merge-upserts the caller's own entry under the group.
// Only the authenticated user's entry can be written, so there is a single
// logical writer per presence record.
func (s *PresenceService) UpdateMyPresence(ctx context.Context, user models.User, groupID string, fix Fix) error {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if !group.HasMember(user.ID) {
		return ErrNotGroupMember
	}

	up := presence.Update{
		UserID:       user.ID,
		DisplayName:  user.DisplayName,
		Email:        user.Email,
		Coordinate:   fix.Coordinate,
		LocationText: fix.LocationText,
	}
	if user.AvatarURL != nil {
		up.PhotoURL = *user.AvatarURL
	}
	if fix.BatteryPercent >= 0 && fix.BatteryPercent <= 100 {
		battery := fix.BatteryPercent
		up.BatteryPercent = &battery
	}

	return s.store.Upsert(ctx, groupID, up)
}

// Members returns the full member set, newest update first. Snapshot failures
// degrade to an empty list: presence is a best-effort view, not a
// transactional read.
func (s *PresenceService) Members(ctx context.Context, callerID string, groupID string) ([]models.MemberPresence, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(callerID) {
		return nil, ErrNotGroupMember
	}

	members, err := s.store.Snapshot(ctx, groupID)
	if err != nil {
		s.log.Warn().Err(err).Str("group_id", groupID).Msg("presence snapshot failed")
		return []models.MemberPresence{}, nil
	}
	return members, nil
}
