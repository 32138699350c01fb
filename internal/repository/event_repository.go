package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kompas/api/internal/models"
)

var ErrEventNotFound = errors.New("event not found")

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) Create(ctx context.Context, event models.Event) error {
	const query = `
		INSERT INTO events (
			id, group_id, creator_id, title, description, latitude, longitude,
			location_text, starts_at, photo_object, photo_url, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW()
		)
	`

	var lat, lng *float64
	if event.Coordinate != nil {
		lat = &event.Coordinate.Latitude
		lng = &event.Coordinate.Longitude
	}

	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.GroupID,
		event.CreatorID,
		event.Title,
		event.Description,
		lat,
		lng,
		event.LocationText,
		event.StartsAt,
		event.PhotoObject,
		event.PhotoURL,
	)
	return err
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (models.Event, error) {
	const query = `
		SELECT id, group_id, creator_id, title, description, latitude, longitude,
		       location_text, starts_at, photo_object, photo_url, created_at, updated_at
		FROM events WHERE id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// ListForGroup returns the group's events plus global events created by its
// members, soonest first.
func (r *EventRepository) ListForGroup(ctx context.Context, groupID string) ([]models.Event, error) {
	const query = `
		SELECT e.id, e.group_id, e.creator_id, e.title, e.description, e.latitude, e.longitude,
		       e.location_text, e.starts_at, e.photo_object, e.photo_url, e.created_at, e.updated_at
		FROM events e
		WHERE e.group_id = $1
		   OR (e.group_id IS NULL AND e.creator_id IN (
		       SELECT user_id FROM group_members WHERE group_id = $1))
		ORDER BY e.starts_at ASC
	`
	return r.list(ctx, query, groupID)
}

// ListByCreator returns events the user created, soonest first.
func (r *EventRepository) ListByCreator(ctx context.Context, creatorID string) ([]models.Event, error) {
	const query = `
		SELECT id, group_id, creator_id, title, description, latitude, longitude,
		       location_text, starts_at, photo_object, photo_url, created_at, updated_at
		FROM events
		WHERE creator_id = $1
		ORDER BY starts_at ASC
	`
	return r.list(ctx, query, creatorID)
}

func (r *EventRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM events WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *EventRepository) list(ctx context.Context, query string, args ...any) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		event, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *EventRepository) scanOne(row pgx.Row) (models.Event, error) {
	var (
		event    models.Event
		lat, lng *float64
	)
	if err := row.Scan(
		&event.ID,
		&event.GroupID,
		&event.CreatorID,
		&event.Title,
		&event.Description,
		&lat,
		&lng,
		&event.LocationText,
		&event.StartsAt,
		&event.PhotoObject,
		&event.PhotoURL,
		&event.CreatedAt,
		&event.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Event{}, ErrEventNotFound
		}
		return models.Event{}, err
	}
	if lat != nil && lng != nil {
		event.Coordinate = &models.Coordinate{Latitude: *lat, Longitude: *lng}
	}
	return event, nil
}
