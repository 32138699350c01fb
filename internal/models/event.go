package models

import "time"

// Event is a calendar-pinned point of interest. GroupID is nil for events
// visible across all of the creator's groups.
type Event struct {
	ID           string
	GroupID      *string
	CreatorID    string
	Title        string
	Description  string
	Coordinate   *Coordinate
	LocationText string
	StartsAt     time.Time
	PhotoObject  *string
	PhotoURL     *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
