package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kompas/api/internal/models"
)

var ErrGroupNotFound = errors.New("group not found")

type GroupRepository struct {
	pool *pgxpool.Pool
}

func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

const groupColumns = `
	g.id, g.name, g.owner_id, g.created_at, g.updated_at,
	COALESCE(array_agg(m.user_id ORDER BY m.added_at) FILTER (WHERE m.user_id IS NOT NULL), '{}')
`

// Create inserts the group and its initial memberships in one transaction so
// a group never exists without its owner as a member.
func (r *GroupRepository) Create(ctx context.Context, group models.Group) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertGroup = `
		INSERT INTO groups (id, name, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
	`
	if _, err := tx.Exec(ctx, insertGroup, group.ID, group.Name, group.OwnerID); err != nil {
		return err
	}

	const insertMember = `
		INSERT INTO group_members (group_id, user_id, added_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (group_id, user_id) DO NOTHING
	`
	for _, memberID := range group.MemberIDs {
		if _, err := tx.Exec(ctx, insertMember, group.ID, memberID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *GroupRepository) GetByID(ctx context.Context, id string) (models.Group, error) {
	query := `
		SELECT ` + groupColumns + `
		FROM groups g
		LEFT JOIN group_members m ON m.group_id = g.id
		WHERE g.id = $1
		GROUP BY g.id
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// ListByUser returns every group the user owns or belongs to, oldest first.
func (r *GroupRepository) ListByUser(ctx context.Context, userID string) ([]models.Group, error) {
	query := `
		SELECT ` + groupColumns + `
		FROM groups g
		LEFT JOIN group_members m ON m.group_id = g.id
		WHERE g.id IN (SELECT group_id FROM group_members WHERE user_id = $1)
		GROUP BY g.id
		ORDER BY g.created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		group, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

func (r *GroupRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	const query = `SELECT COUNT(*) FROM groups WHERE owner_id = $1`
	var count int
	if err := r.pool.QueryRow(ctx, query, ownerID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *GroupRepository) Rename(ctx context.Context, id string, name string) error {
	const query = `UPDATE groups SET name = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, name)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM groups WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// AddMember is an idempotent set-union update.
func (r *GroupRepository) AddMember(ctx context.Context, groupID string, userID string) error {
	const query = `
		INSERT INTO group_members (group_id, user_id, added_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (group_id, user_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, groupID, userID)
	return err
}

// RemoveMember is an idempotent set-difference update.
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID string, userID string) error {
	const query = `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`
	_, err := r.pool.Exec(ctx, query, groupID, userID)
	return err
}

func (r *GroupRepository) scanOne(row pgx.Row) (models.Group, error) {
	var group models.Group
	if err := row.Scan(
		&group.ID,
		&group.Name,
		&group.OwnerID,
		&group.CreatedAt,
		&group.UpdatedAt,
		&group.MemberIDs,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Group{}, ErrGroupNotFound
		}
		return models.Group{}, err
	}
	return group, nil
}
