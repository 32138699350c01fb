package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"kompas/api/internal/media/photo"
	"kompas/api/internal/models"
	"kompas/api/internal/repository"
)

type fakeEventStore struct {
	mu     sync.Mutex
	events map[string]models.Event
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: make(map[string]models.Event)}
}

func (f *fakeEventStore) Create(_ context.Context, event models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	event.CreatedAt = time.Now()
	f.events[event.ID] = event
	return nil
}

func (f *fakeEventStore) GetByID(_ context.Context, id string) (models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	event, ok := f.events[id]
	if !ok {
		return models.Event{}, repository.ErrEventNotFound
	}
	return event, nil
}

func (f *fakeEventStore) ListForGroup(_ context.Context, groupID string) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Event
	for _, event := range f.events {
		if event.GroupID != nil && *event.GroupID == groupID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (f *fakeEventStore) ListByCreator(_ context.Context, creatorID string) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Event
	for _, event := range f.events {
		if event.CreatorID == creatorID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (f *fakeEventStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[id]; !ok {
		return repository.ErrEventNotFound
	}
	delete(f.events, id)
	return nil
}

type fakePhotoStore struct {
	mu      sync.Mutex
	stored  map[string][]byte
	removed []string
}

func newFakePhotoStore() *fakePhotoStore {
	return &fakePhotoStore{stored: make(map[string][]byte)}
}

func (f *fakePhotoStore) PutPhoto(_ context.Context, id string, ext string, data []byte, _ string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := id + "." + ext
	f.stored[key] = data
	return key, "https://cdn.example.com/" + key, nil
}

func (f *fakePhotoStore) RemovePhoto(_ context.Context, objectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.stored, objectKey)
	f.removed = append(f.removed, objectKey)
	return nil
}

func newEventServiceForTest() (*EventService, *fakeEventStore, *fakeGroupStore, *fakePhotoStore) {
	events := newFakeEventStore()
	groups := newFakeGroupStore()
	photos := newFakePhotoStore()
	svc := NewEventService(events, groups, photos, zerolog.Nop())
	return svc, events, groups, photos
}

// Minimal JPEG header, enough for format detection.
var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func TestCreateEventValidation(t *testing.T) {
	svc, _, groups, _ := newEventServiceForTest()
	group := seedGroup(t, groups, "owner-1")
	creator := models.User{ID: "owner-1"}
	ctx := context.Background()

	if _, err := svc.CreateEvent(ctx, creator, CreateEventInput{Title: "  "}); !errors.Is(err, ErrEmptyEventTitle) {
		t.Fatalf("expected ErrEmptyEventTitle, got %v", err)
	}

	stranger := models.User{ID: "stranger"}
	if _, err := svc.CreateEvent(ctx, stranger, CreateEventInput{
		Title:   "Picnic",
		GroupID: &group.ID,
	}); !errors.Is(err, ErrNotGroupMember) {
		t.Fatalf("expected ErrNotGroupMember, got %v", err)
	}
}

func TestCreateEventWithPhoto(t *testing.T) {
	svc, _, groups, photos := newEventServiceForTest()
	group := seedGroup(t, groups, "owner-1")
	creator := models.User{ID: "owner-1"}

	event, err := svc.CreateEvent(context.Background(), creator, CreateEventInput{
		GroupID:  &group.ID,
		Title:    " Picnic ",
		StartsAt: time.Now().Add(24 * time.Hour),
		Photo:    jpegHeader,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if event.Title != "Picnic" {
		t.Fatalf("expected trimmed title, got %q", event.Title)
	}
	if event.PhotoObject == nil || event.PhotoURL == nil {
		t.Fatalf("photo fields missing: %+v", event)
	}
	if _, ok := photos.stored[*event.PhotoObject]; !ok {
		t.Fatalf("photo data not stored under %q", *event.PhotoObject)
	}
}

func TestCreateEventRejectsUnknownPhotoFormat(t *testing.T) {
	svc, events, groups, _ := newEventServiceForTest()
	seedGroup(t, groups, "owner-1")
	creator := models.User{ID: "owner-1"}

	_, err := svc.CreateEvent(context.Background(), creator, CreateEventInput{
		Title: "Picnic",
		Photo: []byte("not an image at all"),
	})
	if !errors.Is(err, photo.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if len(events.events) != 0 {
		t.Fatal("event should not be stored when the photo is rejected")
	}
}

func TestListEventsScoping(t *testing.T) {
	svc, _, groups, _ := newEventServiceForTest()
	group := seedGroup(t, groups, "owner-1", "user-2")
	ctx := context.Background()

	if _, err := svc.CreateEvent(ctx, models.User{ID: "owner-1"}, CreateEventInput{
		GroupID: &group.ID,
		Title:   "Group Dinner",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateEvent(ctx, models.User{ID: "owner-1"}, CreateEventInput{
		Title: "Private Note",
	}); err != nil {
		t.Fatalf("create global: %v", err)
	}

	own, err := svc.ListEvents(ctx, "owner-1", nil)
	if err != nil {
		t.Fatalf("list own: %v", err)
	}
	if len(own) != 2 {
		t.Fatalf("creator should see both events, got %d", len(own))
	}

	grouped, err := svc.ListEvents(ctx, "user-2", &group.ID)
	if err != nil {
		t.Fatalf("list group: %v", err)
	}
	if len(grouped) != 1 || grouped[0].Title != "Group Dinner" {
		t.Fatalf("expected the group event, got %v", grouped)
	}

	if _, err := svc.ListEvents(ctx, "stranger", &group.ID); !errors.Is(err, ErrNotGroupMember) {
		t.Fatalf("expected ErrNotGroupMember, got %v", err)
	}
}

func TestDeleteEventPermissions(t *testing.T) {
	svc, _, groups, photos := newEventServiceForTest()
	group := seedGroup(t, groups, "owner-1", "user-2")
	ctx := context.Background()

	event, err := svc.CreateEvent(ctx, models.User{ID: "user-2"}, CreateEventInput{
		GroupID: &group.ID,
		Title:   "Picnic",
		Photo:   jpegHeader,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.DeleteEvent(ctx, "stranger", event.ID); !errors.Is(err, ErrNotEventOwner) {
		t.Fatalf("expected ErrNotEventOwner, got %v", err)
	}

	// The group owner may delete a member's pinned event.
	if err := svc.DeleteEvent(ctx, "owner-1", event.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if len(photos.removed) != 1 {
		t.Fatalf("photo should be removed with the event, got %v", photos.removed)
	}

	if err := svc.DeleteEvent(ctx, "owner-1", event.ID); !errors.Is(err, repository.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}
