package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"kompas/api/internal/config"
	"kompas/api/internal/ids"
	"kompas/api/internal/models"
	"kompas/api/internal/repository"
	"kompas/api/internal/security"
)

var (
	ErrEmptyGroupName     = errors.New("group name is empty")
	ErrGroupQuotaExceeded = errors.New("group quota exceeded")
	ErrNotGroupOwner      = errors.New("caller is not the group owner")
	ErrNotGroupMember     = errors.New("caller is not a group member")
	ErrCannotRemoveOwner  = errors.New("the group owner cannot be removed")
)

type GroupStore interface {
	Create(ctx context.Context, group models.Group) error
	GetByID(ctx context.Context, id string) (models.Group, error)
	ListByUser(ctx context.Context, userID string) ([]models.Group, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	Rename(ctx context.Context, id string, name string) error
	Delete(ctx context.Context, id string) error
	AddMember(ctx context.Context, groupID string, userID string) error
	RemoveMember(ctx context.Context, groupID string, userID string) error
}

type InviteStore interface {
	Put(ctx context.Context, invite models.Invite) error
	Consume(ctx context.Context, code string) (models.Invite, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.Invite, error)
	ClearGroup(ctx context.Context, groupID string) error
}

// UserDirectory resolves user ids referenced by membership changes.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

// Publisher emits change notifications consumed by live watchers.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload string) error
}

// PresenceJanitor tears down presence state that membership changes orphan.
type PresenceJanitor interface {
	Remove(ctx context.Context, groupID string, userID string) error
	Clear(ctx context.Context, groupID string) error
}

// DirectoryChannel is the pub/sub channel signaling that a user's group list
// changed.
func DirectoryChannel(userID string) string {
	return "kompas:directory:" + userID
}

type GroupService struct {
	groups   GroupStore
	users    UserDirectory
	invites  InviteStore
	presence PresenceJanitor
	pub      Publisher
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewGroupService(
	groups GroupStore,
	users UserDirectory,
	invites InviteStore,
	presence PresenceJanitor,
	pub Publisher,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *GroupService {
	return &GroupService{
		groups:   groups,
		users:    users,
		invites:  invites,
		presence: presence,
		pub:      pub,
		cfg:      cfg,
		log:      log,
	}
}

// ListGroups returns every group the user owns or belongs to, oldest first.
func (s *GroupService) ListGroups(ctx context.Context, userID string) ([]models.Group, error) {
	return s.groups.ListByUser(ctx, userID)
}

// GetGroupForMember loads a group and verifies the caller belongs to it.
func (s *GroupService) GetGroupForMember(ctx context.Context, callerID string, groupID string) (models.Group, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if !group.HasMember(callerID) {
		return models.Group{}, ErrNotGroupMember
	}
	return group, nil
}

// CreateGroup validates locally before touching the store: an empty trimmed
// name and an owner at quota both fail fast.
func (s *GroupService) CreateGroup(ctx context.Context, ownerID string, name string) (models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Group{}, ErrEmptyGroupName
	}

	count, err := s.groups.CountByOwner(ctx, ownerID)
	if err != nil {
		return models.Group{}, err
	}
	if count >= s.cfg.Groups.MaxPerOwner {
		return models.Group{}, ErrGroupQuotaExceeded
	}

	group := models.Group{
		ID:        ids.New(),
		Name:      name,
		OwnerID:   ownerID,
		MemberIDs: []string{ownerID},
	}
	if err := s.groups.Create(ctx, group); err != nil {
		return models.Group{}, err
	}

	s.notifyDirectory(ctx, group.MemberIDs)
	return s.groups.GetByID(ctx, group.ID)
}

func (s *GroupService) RenameGroup(ctx context.Context, callerID string, groupID string, newName string) (models.Group, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return models.Group{}, ErrEmptyGroupName
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if group.OwnerID != callerID {
		return models.Group{}, ErrNotGroupOwner
	}

	if err := s.groups.Rename(ctx, groupID, newName); err != nil {
		return models.Group{}, err
	}

	s.notifyDirectory(ctx, group.MemberIDs)
	group.Name = newName
	return group, nil
}

func (s *GroupService) DeleteGroup(ctx context.Context, callerID string, groupID string) error {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if group.OwnerID != callerID {
		return ErrNotGroupOwner
	}

	if err := s.groups.Delete(ctx, groupID); err != nil {
		return err
	}

	// Orphaned invite and presence state is cleaned up best-effort.
	if err := s.invites.ClearGroup(ctx, groupID); err != nil {
		s.log.Warn().Err(err).Str("group_id", groupID).Msg("clear invites failed")
	}
	if err := s.presence.Clear(ctx, groupID); err != nil {
		s.log.Warn().Err(err).Str("group_id", groupID).Msg("clear presence failed")
	}

	s.notifyDirectory(ctx, group.MemberIDs)
	return nil
}

// AddMember is idempotent: adding an existing member changes nothing.
func (s *GroupService) AddMember(ctx context.Context, callerID string, groupID string, memberID string) error {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if group.OwnerID != callerID {
		return ErrNotGroupOwner
	}

	// Resolve the member id up front so a typo reports as not-found rather
	// than surfacing a foreign key violation.
	if _, err := s.users.GetByID(ctx, memberID); err != nil {
		return err
	}

	if err := s.groups.AddMember(ctx, groupID, memberID); err != nil {
		return err
	}

	s.notifyDirectory(ctx, append(group.MemberIDs, memberID))
	return nil
}

// RemoveMember is idempotent. The owner may remove anyone but themselves;
// any member may remove themselves (leave).
func (s *GroupService) RemoveMember(ctx context.Context, callerID string, groupID string, memberID string) error {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if memberID == group.OwnerID {
		return ErrCannotRemoveOwner
	}
	if callerID != group.OwnerID && callerID != memberID {
		return ErrNotGroupOwner
	}

	if err := s.groups.RemoveMember(ctx, groupID, memberID); err != nil {
		return err
	}

	if err := s.presence.Remove(ctx, groupID, memberID); err != nil {
		s.log.Warn().Err(err).Str("group_id", groupID).Str("user_id", memberID).Msg("remove presence failed")
	}

	s.notifyDirectory(ctx, group.MemberIDs)
	return nil
}

func (s *GroupService) CreateInvite(ctx context.Context, callerID string, groupID string) (models.Invite, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return models.Invite{}, err
	}
	if !group.HasMember(callerID) {
		return models.Invite{}, ErrNotGroupMember
	}

	code, err := security.NewInviteCode(s.cfg.Invites.CodeLength)
	if err != nil {
		return models.Invite{}, err
	}

	now := time.Now().UTC()
	invite := models.Invite{
		Code:      code,
		GroupID:   groupID,
		CreatedBy: callerID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.Invites.TTL),
	}
	if err := s.invites.Put(ctx, invite); err != nil {
		return models.Invite{}, err
	}
	return invite, nil
}

func (s *GroupService) ListInvites(ctx context.Context, callerID string, groupID string) ([]models.Invite, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(callerID) {
		return nil, ErrNotGroupMember
	}
	return s.invites.ListByGroup(ctx, groupID)
}

// JoinByCode consumes the invite (single use) and adds the caller to its
// group.
func (s *GroupService) JoinByCode(ctx context.Context, userID string, code string) (models.Group, error) {
	invite, err := s.invites.Consume(ctx, code)
	if err != nil {
		return models.Group{}, err
	}

	group, err := s.groups.GetByID(ctx, invite.GroupID)
	if err != nil {
		if errors.Is(err, repository.ErrGroupNotFound) {
			// The group vanished while the code was outstanding.
			return models.Group{}, repository.ErrInviteNotFound
		}
		return models.Group{}, err
	}

	if err := s.groups.AddMember(ctx, invite.GroupID, userID); err != nil {
		return models.Group{}, err
	}

	s.notifyDirectory(ctx, append(group.MemberIDs, userID))
	return s.groups.GetByID(ctx, invite.GroupID)
}

// notifyDirectory is fire-and-forget; watchers re-list on the next signal.
func (s *GroupService) notifyDirectory(ctx context.Context, userIDs []string) {
	seen := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		if err := s.pub.Publish(ctx, DirectoryChannel(userID), "changed"); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("directory notify failed")
		}
	}
}
