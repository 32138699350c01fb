package presence

import (
	"context"

	"github.com/rs/zerolog"

	"kompas/api/internal/models"
	"kompas/api/internal/realtime"
)

// SnapshotSource reads the full current member set for a group.
type SnapshotSource interface {
	Snapshot(ctx context.Context, groupID string) ([]models.MemberPresence, error)
}

// Snapshot is one authoritative replace-collection event: the complete member
// set for the group at the time of delivery.
type Snapshot struct {
	GroupID string
	Members []models.MemberPresence
}

// Subscriber follows one group's presence channel at a time. Start on a new
// group detaches from the previous one completely before attaching, so no
// snapshot from the old group is ever delivered after a switch.
type Subscriber struct {
	watcher *realtime.Watcher
	source  SnapshotSource
	log     zerolog.Logger
	updates chan Snapshot
}

func NewSubscriber(feed realtime.Feed, source SnapshotSource, log zerolog.Logger) *Subscriber {
	return &Subscriber{
		watcher: realtime.NewWatcher(feed, log),
		source:  source,
		log:     log,
		updates: make(chan Snapshot, 1),
	}
}

func (s *Subscriber) Start(groupID string) error {
	// Detach first, then drop any undelivered snapshot from the previous
	// group so a switch never surfaces stale members.
	s.watcher.Stop()
	select {
	case <-s.updates:
	default:
	}

	return s.watcher.Listen(Channel(groupID), func(ctx context.Context) {
		members, err := s.source.Snapshot(ctx, groupID)
		if err != nil {
			// Presence is best-effort: degrade to an empty set.
			s.log.Warn().Err(err).Str("group_id", groupID).Msg("presence snapshot failed")
			members = []models.MemberPresence{}
		}
		realtime.Send(ctx, s.updates, Snapshot{GroupID: groupID, Members: members})
	})
}

func (s *Subscriber) Stop() {
	s.watcher.Stop()
}

// Updates delivers full snapshots; a pending undelivered snapshot is replaced
// by a newer one.
func (s *Subscriber) Updates() <-chan Snapshot {
	return s.updates
}
