package models

import "time"

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// MemberPresence is a group member's most recently broadcast position plus
// display metadata. Coordinate is nil until the member reports a first fix;
// UpdatedAt is nil for entries that were never written with a timestamp.
type MemberPresence struct {
	UserID         string      `json:"userId"`
	DisplayName    string      `json:"displayName"`
	Email          string      `json:"email,omitempty"`
	PhotoURL       *string     `json:"photoUrl,omitempty"`
	Coordinate     *Coordinate `json:"coordinate,omitempty"`
	LocationText   string      `json:"locationText,omitempty"`
	BatteryPercent *int        `json:"batteryPercent,omitempty"`
	UpdatedAt      *time.Time  `json:"updatedAt,omitempty"`
}

// Equal reports field-wise equality, used for change detection on snapshots.
func (p MemberPresence) Equal(other MemberPresence) bool {
	if p.UserID != other.UserID ||
		p.DisplayName != other.DisplayName ||
		p.Email != other.Email ||
		p.LocationText != other.LocationText {
		return false
	}
	if !stringPtrEqual(p.PhotoURL, other.PhotoURL) {
		return false
	}
	if (p.Coordinate == nil) != (other.Coordinate == nil) {
		return false
	}
	if p.Coordinate != nil && *p.Coordinate != *other.Coordinate {
		return false
	}
	if (p.BatteryPercent == nil) != (other.BatteryPercent == nil) {
		return false
	}
	if p.BatteryPercent != nil && *p.BatteryPercent != *other.BatteryPercent {
		return false
	}
	if (p.UpdatedAt == nil) != (other.UpdatedAt == nil) {
		return false
	}
	if p.UpdatedAt != nil && !p.UpdatedAt.Equal(*other.UpdatedAt) {
		return false
	}
	return true
}

func stringPtrEqual(a, b *string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}
