// Package presence keeps each group member's last broadcast position in
// Redis: one hash per (group, member) plus a membership index set. Writes are
// field-level merges so a partial update never clobbers fields it does not
// carry, and every write publishes a change signal for live watchers.
package presence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"kompas/api/internal/models"
)

const keyPrefix = "kompas:presence:"

func memberKey(groupID, userID string) string {
	return keyPrefix + groupID + ":member:" + userID
}

func indexKey(groupID string) string {
	return keyPrefix + groupID + ":index"
}

// Channel is the pub/sub channel signaling presence changes for a group.
func Channel(groupID string) string {
	return keyPrefix + groupID
}

const (
	fieldName         = "name"
	fieldEmail        = "email"
	fieldPhotoURL     = "photo_url"
	fieldLatitude     = "lat"
	fieldLongitude    = "lng"
	fieldLocationText = "location_text"
	fieldBattery      = "battery"
	fieldUpdatedAt    = "updated_at"
)

// Update is the merge payload for one member: nil/empty optional fields are
// left untouched in the stored hash.
type Update struct {
	UserID         string
	DisplayName    string
	Email          string
	PhotoURL       string
	Coordinate     models.Coordinate
	LocationText   string
	BatteryPercent *int
}

type Store struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewStore(rdb *redis.Client, log zerolog.Logger) *Store {
	return &Store{rdb: rdb, log: log}
}

// Upsert merges the member's entry and signals watchers. The update timestamp
// is server-assigned.
func (s *Store) Upsert(ctx context.Context, groupID string, up Update) error {
	fields := map[string]any{
		fieldName:      up.DisplayName,
		fieldEmail:     up.Email,
		fieldLatitude:  strconv.FormatFloat(up.Coordinate.Latitude, 'f', -1, 64),
		fieldLongitude: strconv.FormatFloat(up.Coordinate.Longitude, 'f', -1, 64),
		fieldUpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if up.PhotoURL != "" {
		fields[fieldPhotoURL] = up.PhotoURL
	}
	if up.LocationText != "" {
		fields[fieldLocationText] = up.LocationText
	}
	if up.BatteryPercent != nil {
		fields[fieldBattery] = strconv.Itoa(*up.BatteryPercent)
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, memberKey(groupID, up.UserID), fields)
	pipe.SAdd(ctx, indexKey(groupID), up.UserID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}

	s.notify(ctx, groupID, up.UserID)
	return nil
}

// Snapshot assembles the complete member set for a group, newest update
// first. Entries that fail to parse are skipped, not fatal.
func (s *Store) Snapshot(ctx context.Context, groupID string) ([]models.MemberPresence, error) {
	userIDs, err := s.rdb.SMembers(ctx, indexKey(groupID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence index: %w", err)
	}
	if len(userIDs) == 0 {
		return []models.MemberPresence{}, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(userIDs))
	for i, userID := range userIDs {
		cmds[i] = pipe.HGetAll(ctx, memberKey(groupID, userID))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("presence entries: %w", err)
	}

	entries := make([]map[string]string, len(userIDs))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			continue
		}
		entries[i] = fields
	}

	return s.assembleMembers(groupID, userIDs, entries), nil
}

// assembleMembers parses one hash per user id and sorts the result. A
// malformed or missing entry drops only that member, never the snapshot.
func (s *Store) assembleMembers(groupID string, userIDs []string, entries []map[string]string) []models.MemberPresence {
	members := make([]models.MemberPresence, 0, len(userIDs))
	for i, fields := range entries {
		if len(fields) == 0 {
			continue
		}
		member, err := parseMember(userIDs[i], fields)
		if err != nil {
			s.log.Warn().Err(err).Str("group_id", groupID).Str("user_id", userIDs[i]).Msg("skipping malformed presence entry")
			continue
		}
		members = append(members, member)
	}

	SortMembers(members)
	return members
}

// Remove drops one member's entry, used when they leave the group.
func (s *Store) Remove(ctx context.Context, groupID string, userID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, memberKey(groupID, userID))
	pipe.SRem(ctx, indexKey(groupID), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove presence: %w", err)
	}

	s.notify(ctx, groupID, userID)
	return nil
}

// Clear drops all presence state for a group, used on group deletion.
func (s *Store) Clear(ctx context.Context, groupID string) error {
	userIDs, err := s.rdb.SMembers(ctx, indexKey(groupID)).Result()
	if err != nil {
		return fmt.Errorf("presence index: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	for _, userID := range userIDs {
		pipe.Del(ctx, memberKey(groupID, userID))
	}
	pipe.Del(ctx, indexKey(groupID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear presence: %w", err)
	}

	s.notify(ctx, groupID, "")
	return nil
}

// notify is fire-and-forget: a missed signal only delays the next snapshot.
func (s *Store) notify(ctx context.Context, groupID string, userID string) {
	if err := s.rdb.Publish(ctx, Channel(groupID), userID).Err(); err != nil {
		s.log.Warn().Err(err).Str("group_id", groupID).Msg("presence notify failed")
	}
}

func parseMember(userID string, fields map[string]string) (models.MemberPresence, error) {
	member := models.MemberPresence{
		UserID:       userID,
		DisplayName:  fields[fieldName],
		Email:        fields[fieldEmail],
		LocationText: fields[fieldLocationText],
	}

	if v, ok := fields[fieldPhotoURL]; ok && v != "" {
		member.PhotoURL = &v
	}

	latStr, hasLat := fields[fieldLatitude]
	lngStr, hasLng := fields[fieldLongitude]
	if hasLat && hasLng {
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return models.MemberPresence{}, fmt.Errorf("parse latitude %q: %w", latStr, err)
		}
		lng, err := strconv.ParseFloat(lngStr, 64)
		if err != nil {
			return models.MemberPresence{}, fmt.Errorf("parse longitude %q: %w", lngStr, err)
		}
		member.Coordinate = &models.Coordinate{Latitude: lat, Longitude: lng}
	}

	if v, ok := fields[fieldBattery]; ok && v != "" {
		battery, err := strconv.Atoi(v)
		if err != nil {
			return models.MemberPresence{}, fmt.Errorf("parse battery %q: %w", v, err)
		}
		member.BatteryPercent = &battery
	}

	if v, ok := fields[fieldUpdatedAt]; ok && v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return models.MemberPresence{}, fmt.Errorf("parse updated_at %q: %w", v, err)
		}
		member.UpdatedAt = &ts
	}

	return member, nil
}

// SortMembers orders by update time descending; members that never reported
// a timestamp sort last.
func SortMembers(members []models.MemberPresence) {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i].UpdatedAt, members[j].UpdatedAt
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})
}
