package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"kompas/api/internal/models"
	"kompas/api/internal/presence"
)

type fakePresenceStore struct {
	mu          sync.Mutex
	upserts     map[string]map[string]presence.Update
	snapshotErr error
}

func newFakePresenceStore() *fakePresenceStore {
	return &fakePresenceStore{upserts: make(map[string]map[string]presence.Update)}
}

func (f *fakePresenceStore) Upsert(_ context.Context, groupID string, up presence.Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	group, ok := f.upserts[groupID]
	if !ok {
		group = make(map[string]presence.Update)
		f.upserts[groupID] = group
	}
	group[up.UserID] = up
	return nil
}

func (f *fakePresenceStore) Snapshot(_ context.Context, groupID string) ([]models.MemberPresence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	var out []models.MemberPresence
	for _, up := range f.upserts[groupID] {
		member := models.MemberPresence{
			UserID:         up.UserID,
			DisplayName:    up.DisplayName,
			Email:          up.Email,
			Coordinate:     &models.Coordinate{Latitude: up.Coordinate.Latitude, Longitude: up.Coordinate.Longitude},
			LocationText:   up.LocationText,
			BatteryPercent: up.BatteryPercent,
		}
		if up.PhotoURL != "" {
			photoURL := up.PhotoURL
			member.PhotoURL = &photoURL
		}
		out = append(out, member)
	}
	return out, nil
}

func (f *fakePresenceStore) latest(groupID string, userID string) (presence.Update, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.upserts[groupID][userID]
	return up, ok
}

func newPresenceServiceForTest() (*PresenceService, *fakePresenceStore, *fakeGroupStore) {
	store := newFakePresenceStore()
	groups := newFakeGroupStore()
	svc := NewPresenceService(store, groups, zerolog.Nop())
	return svc, store, groups
}

func seedGroup(t *testing.T, groups *fakeGroupStore, ownerID string, memberIDs ...string) models.Group {
	t.Helper()
	group := models.Group{
		ID:        "group-" + ownerID,
		Name:      "Test Group",
		OwnerID:   ownerID,
		MemberIDs: append([]string{ownerID}, memberIDs...),
	}
	if err := groups.Create(context.Background(), group); err != nil {
		t.Fatalf("seed group: %v", err)
	}
	return group
}

func TestUpdateMyPresenceRequiresMembership(t *testing.T) {
	svc, store, groups := newPresenceServiceForTest()
	group := seedGroup(t, groups, "owner-1")

	user := models.User{ID: "stranger", DisplayName: "S", Email: "s@example.com"}
	err := svc.UpdateMyPresence(context.Background(), user, group.ID, Fix{BatteryPercent: -1})
	if !errors.Is(err, ErrNotGroupMember) {
		t.Fatalf("expected ErrNotGroupMember, got %v", err)
	}
	if _, ok := store.latest(group.ID, "stranger"); ok {
		t.Fatal("store should not have been written")
	}
}

func TestUpdateMyPresenceBatteryGate(t *testing.T) {
	svc, store, groups := newPresenceServiceForTest()
	group := seedGroup(t, groups, "owner-1")
	user := models.User{ID: "owner-1", DisplayName: "Owner", Email: "o@example.com"}
	ctx := context.Background()

	cases := []struct {
		name    string
		battery int
		want    *int
	}{
		{"unknown omitted", -1, nil},
		{"valid kept", 50, intPtr(50)},
		{"out of range omitted", 120, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fix := Fix{
				Coordinate:     models.Coordinate{Latitude: 52.37, Longitude: 4.89},
				BatteryPercent: tc.battery,
			}
			if err := svc.UpdateMyPresence(ctx, user, group.ID, fix); err != nil {
				t.Fatalf("update: %v", err)
			}
			up, ok := store.latest(group.ID, user.ID)
			if !ok {
				t.Fatal("expected an upsert")
			}
			if tc.want == nil && up.BatteryPercent != nil {
				t.Fatalf("battery should be omitted, got %d", *up.BatteryPercent)
			}
			if tc.want != nil && (up.BatteryPercent == nil || *up.BatteryPercent != *tc.want) {
				t.Fatalf("expected battery %d, got %v", *tc.want, up.BatteryPercent)
			}
		})
	}
}

func TestUpdateMyPresenceCarriesProfile(t *testing.T) {
	svc, store, groups := newPresenceServiceForTest()
	group := seedGroup(t, groups, "owner-1")
	avatar := "https://cdn.example.com/a.jpg"
	user := models.User{ID: "owner-1", DisplayName: "Owner", Email: "o@example.com", AvatarURL: &avatar}

	fix := Fix{
		Coordinate:     models.Coordinate{Latitude: 52.37, Longitude: 4.89},
		LocationText:   "Amsterdam",
		BatteryPercent: 80,
	}
	if err := svc.UpdateMyPresence(context.Background(), user, group.ID, fix); err != nil {
		t.Fatalf("update: %v", err)
	}

	up, ok := store.latest(group.ID, "owner-1")
	if !ok {
		t.Fatal("expected an upsert")
	}
	if up.DisplayName != "Owner" || up.Email != "o@example.com" || up.PhotoURL != avatar {
		t.Fatalf("profile fields not carried: %+v", up)
	}
	if up.LocationText != "Amsterdam" {
		t.Fatalf("expected location text, got %q", up.LocationText)
	}
}

func TestMembersDegradesToEmptyOnSnapshotFailure(t *testing.T) {
	svc, store, groups := newPresenceServiceForTest()
	group := seedGroup(t, groups, "owner-1")
	store.snapshotErr = errors.New("redis down")

	members, err := svc.Members(context.Background(), "owner-1", group.ID)
	if err != nil {
		t.Fatalf("snapshot failures must not surface: %v", err)
	}
	if members == nil || len(members) != 0 {
		t.Fatalf("expected empty list, got %v", members)
	}
}

func TestMembersRequiresMembership(t *testing.T) {
	svc, _, groups := newPresenceServiceForTest()
	group := seedGroup(t, groups, "owner-1")

	if _, err := svc.Members(context.Background(), "stranger", group.ID); !errors.Is(err, ErrNotGroupMember) {
		t.Fatalf("expected ErrNotGroupMember, got %v", err)
	}
}

func TestUpdateMyPresenceMergesSingleEntry(t *testing.T) {
	svc, _, groups := newPresenceServiceForTest()
	group := seedGroup(t, groups, "owner-1")
	user := models.User{ID: "owner-1", DisplayName: "Owner", Email: "o@example.com"}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		fix := Fix{
			Coordinate:     models.Coordinate{Latitude: float64(i), Longitude: float64(i)},
			BatteryPercent: -1,
		}
		if err := svc.UpdateMyPresence(ctx, user, group.ID, fix); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	members, err := svc.Members(ctx, "owner-1", group.ID)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("repeated updates must merge into one entry, got %d", len(members))
	}
	if members[0].Coordinate == nil || members[0].Coordinate.Latitude != 2 {
		t.Fatalf("expected latest coordinate, got %+v", members[0].Coordinate)
	}
}

func intPtr(v int) *int { return &v }
