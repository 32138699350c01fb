package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"kompas/api/internal/config"
	"kompas/api/internal/models"
	"kompas/api/internal/repository"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Security: config.SecurityConfig{
			JWTAccessSecret: "test-secret",
			JWTAccessTTL:    15 * time.Minute,
			JWTRefreshTTL:   720 * time.Hour,
			MaxSessions:     10,
		},
		Groups: config.GroupsConfig{
			MaxPerOwner: 5,
		},
		Invites: config.InvitesConfig{
			TTL:        48 * time.Hour,
			CodeLength: 8,
		},
	}
}

type fakeGroupStore struct {
	mu      sync.Mutex
	groups  map[string]models.Group
	order   []string
	creates int
}

func newFakeGroupStore() *fakeGroupStore {
	return &fakeGroupStore{groups: make(map[string]models.Group)}
}

func (f *fakeGroupStore) Create(_ context.Context, group models.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	group.CreatedAt = time.Now()
	group.UpdatedAt = group.CreatedAt
	f.groups[group.ID] = group
	f.order = append(f.order, group.ID)
	return nil
}

func (f *fakeGroupStore) GetByID(_ context.Context, id string) (models.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	group, ok := f.groups[id]
	if !ok {
		return models.Group{}, repository.ErrGroupNotFound
	}
	return group, nil
}

func (f *fakeGroupStore) ListByUser(_ context.Context, userID string) ([]models.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Group
	for _, id := range f.order {
		group, ok := f.groups[id]
		if ok && group.HasMember(userID) {
			out = append(out, group)
		}
	}
	return out, nil
}

func (f *fakeGroupStore) CountByOwner(_ context.Context, ownerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, group := range f.groups {
		if group.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (f *fakeGroupStore) Rename(_ context.Context, id string, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	group, ok := f.groups[id]
	if !ok {
		return repository.ErrGroupNotFound
	}
	group.Name = name
	f.groups[id] = group
	return nil
}

func (f *fakeGroupStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.groups[id]; !ok {
		return repository.ErrGroupNotFound
	}
	delete(f.groups, id)
	return nil
}

func (f *fakeGroupStore) AddMember(_ context.Context, groupID string, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	group, ok := f.groups[groupID]
	if !ok {
		return repository.ErrGroupNotFound
	}
	if !group.HasMember(userID) {
		group.MemberIDs = append(group.MemberIDs, userID)
		f.groups[groupID] = group
	}
	return nil
}

func (f *fakeGroupStore) RemoveMember(_ context.Context, groupID string, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	group, ok := f.groups[groupID]
	if !ok {
		return repository.ErrGroupNotFound
	}
	members := group.MemberIDs[:0:0]
	for _, id := range group.MemberIDs {
		if id != userID {
			members = append(members, id)
		}
	}
	group.MemberIDs = members
	f.groups[groupID] = group
	return nil
}

type fakeInviteStore struct {
	mu      sync.Mutex
	invites map[string]models.Invite
}

func newFakeInviteStore() *fakeInviteStore {
	return &fakeInviteStore{invites: make(map[string]models.Invite)}
}

func (f *fakeInviteStore) Put(_ context.Context, invite models.Invite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites[invite.Code] = invite
	return nil
}

func (f *fakeInviteStore) Consume(_ context.Context, code string) (models.Invite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	invite, ok := f.invites[code]
	if !ok || time.Now().After(invite.ExpiresAt) {
		return models.Invite{}, repository.ErrInviteNotFound
	}
	delete(f.invites, code)
	return invite, nil
}

func (f *fakeInviteStore) ListByGroup(_ context.Context, groupID string) ([]models.Invite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Invite
	for _, invite := range f.invites {
		if invite.GroupID == groupID {
			out = append(out, invite)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (f *fakeInviteStore) ClearGroup(_ context.Context, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for code, invite := range f.invites {
		if invite.GroupID == groupID {
			delete(f.invites, code)
		}
	}
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	channels []string
}

func (f *fakePublisher) Publish(_ context.Context, channel string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	return nil
}

func (f *fakePublisher) published(channel string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.channels {
		if c == channel {
			return true
		}
	}
	return false
}

type fakeJanitor struct {
	mu      sync.Mutex
	removed [][2]string
	cleared []string
}

func (f *fakeJanitor) Remove(_ context.Context, groupID string, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, [2]string{groupID, userID})
	return nil
}

func (f *fakeJanitor) Clear(_ context.Context, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, groupID)
	return nil
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]models.User)}
}

func (f *fakeUserStore) Create(_ context.Context, user models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserStore) UpdateProfile(_ context.Context, id string, displayName string, avatarURL *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.DisplayName = displayName
	user.AvatarURL = avatarURL
	f.users[id] = user
	return nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]models.Session)}
}

func (f *fakeSessionStore) Create(_ context.Context, session models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Mirrors the device upsert: one session per (user, device).
	for id, existing := range f.sessions {
		if existing.UserID == session.UserID && existing.DeviceID == session.DeviceID && id != session.ID {
			delete(f.sessions, id)
		}
	}
	session.LastSeenAt = time.Now()
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSessionStore) CountByUser(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, session := range f.sessions {
		if session.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeSessionStore) DeleteOldestSessions(_ context.Context, userID string, keepLatest int) error {
	return nil
}

func (f *fakeSessionStore) FindByRefreshHash(_ context.Context, userID string, refreshHash []byte) (models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, session := range f.sessions {
		if session.UserID == userID && string(session.RefreshTokenHash) == string(refreshHash) {
			return session, nil
		}
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (f *fakeSessionStore) DeleteByID(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *fakeSessionStore) DeleteByDevice(_ context.Context, userID string, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, session := range f.sessions {
		if session.UserID == userID && session.DeviceID == deviceID {
			delete(f.sessions, id)
		}
	}
	return nil
}
