package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"kompas/api/internal/models"
)

var ErrInviteNotFound = errors.New("invite not found or expired")

const (
	inviteKeyPrefix      = "kompas:invite:"
	inviteGroupPrefix    = "kompas:invites:group:"
	inviteGroupsIndexKey = "kompas:invites:groups"
)

// InviteRepository keeps join codes in Redis. The code value carries the
// invite payload and expires via TTL; per-group index sets exist only for
// listing and are swept lazily.
type InviteRepository struct {
	rdb *redis.Client
}

func NewInviteRepository(rdb *redis.Client) *InviteRepository {
	return &InviteRepository{rdb: rdb}
}

func inviteKey(code string) string    { return inviteKeyPrefix + code }
func inviteGroupKey(id string) string { return inviteGroupPrefix + id }

func (r *InviteRepository) Put(ctx context.Context, invite models.Invite) error {
	payload, err := json.Marshal(invite)
	if err != nil {
		return fmt.Errorf("marshal invite: %w", err)
	}

	ttl := time.Until(invite.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("invite already expired")
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, inviteKey(invite.Code), payload, ttl)
	pipe.SAdd(ctx, inviteGroupKey(invite.GroupID), invite.Code)
	pipe.SAdd(ctx, inviteGroupsIndexKey, invite.GroupID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store invite: %w", err)
	}
	return nil
}

// Consume atomically removes the code and returns its invite. A code can be
// redeemed exactly once.
func (r *InviteRepository) Consume(ctx context.Context, code string) (models.Invite, error) {
	payload, err := r.rdb.GetDel(ctx, inviteKey(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Invite{}, ErrInviteNotFound
		}
		return models.Invite{}, fmt.Errorf("consume invite: %w", err)
	}

	var invite models.Invite
	if err := json.Unmarshal([]byte(payload), &invite); err != nil {
		return models.Invite{}, fmt.Errorf("unmarshal invite: %w", err)
	}

	r.rdb.SRem(ctx, inviteGroupKey(invite.GroupID), code)
	return invite, nil
}

func (r *InviteRepository) ListByGroup(ctx context.Context, groupID string) ([]models.Invite, error) {
	codes, err := r.rdb.SMembers(ctx, inviteGroupKey(groupID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list invite codes: %w", err)
	}
	if len(codes) == 0 {
		return nil, nil
	}

	var invites []models.Invite
	for _, code := range codes {
		payload, err := r.rdb.Get(ctx, inviteKey(code)).Result()
		if errors.Is(err, redis.Nil) {
			// TTL expired; drop the dangling index entry.
			r.rdb.SRem(ctx, inviteGroupKey(groupID), code)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get invite %s: %w", code, err)
		}

		var invite models.Invite
		if err := json.Unmarshal([]byte(payload), &invite); err != nil {
			continue
		}
		invites = append(invites, invite)
	}
	return invites, nil
}

// ClearGroup drops all codes for a group, called when the group is deleted.
func (r *InviteRepository) ClearGroup(ctx context.Context, groupID string) error {
	codes, err := r.rdb.SMembers(ctx, inviteGroupKey(groupID)).Result()
	if err != nil {
		return fmt.Errorf("list invite codes: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	for _, code := range codes {
		pipe.Del(ctx, inviteKey(code))
	}
	pipe.Del(ctx, inviteGroupKey(groupID))
	pipe.SRem(ctx, inviteGroupsIndexKey, groupID)
	_, err = pipe.Exec(ctx)
	return err
}

// SweepExpired walks the group index sets and removes codes whose value key
// has already TTL-expired. Returns the number of dangling codes removed.
func (r *InviteRepository) SweepExpired(ctx context.Context) (int, error) {
	groupIDs, err := r.rdb.SMembers(ctx, inviteGroupsIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list invite groups: %w", err)
	}

	removed := 0
	for _, groupID := range groupIDs {
		codes, err := r.rdb.SMembers(ctx, inviteGroupKey(groupID)).Result()
		if err != nil {
			return removed, err
		}

		remaining := len(codes)
		for _, code := range codes {
			exists, err := r.rdb.Exists(ctx, inviteKey(code)).Result()
			if err != nil {
				return removed, err
			}
			if exists == 0 {
				r.rdb.SRem(ctx, inviteGroupKey(groupID), code)
				removed++
				remaining--
			}
		}

		if remaining == 0 {
			r.rdb.SRem(ctx, inviteGroupsIndexKey, groupID)
		}
	}
	return removed, nil
}
