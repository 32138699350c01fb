package models

import (
	"testing"
	"time"
)

func TestMemberPresenceEqual(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	battery := 73
	photo := "https://cdn.example.com/a.jpg"

	base := MemberPresence{
		UserID:         "u1",
		DisplayName:    "Anna",
		Email:          "anna@example.com",
		PhotoURL:       &photo,
		Coordinate:     &Coordinate{Latitude: 52.3, Longitude: 4.9},
		LocationText:   "Amsterdam",
		BatteryPercent: &battery,
		UpdatedAt:      &ts,
	}

	same := base
	sameBattery := battery
	samePhoto := photo
	sameCoord := *base.Coordinate
	sameTs := ts
	same.BatteryPercent = &sameBattery
	same.PhotoURL = &samePhoto
	same.Coordinate = &sameCoord
	same.UpdatedAt = &sameTs
	if !base.Equal(same) {
		t.Fatal("identical values behind distinct pointers should be equal")
	}

	moved := same
	moved.Coordinate = &Coordinate{Latitude: 48.8, Longitude: 2.3}
	if base.Equal(moved) {
		t.Fatal("different coordinates should not be equal")
	}

	silent := same
	silent.UpdatedAt = nil
	if base.Equal(silent) {
		t.Fatal("nil vs set timestamp should not be equal")
	}

	drained := same
	drained.BatteryPercent = nil
	if base.Equal(drained) {
		t.Fatal("nil vs set battery should not be equal")
	}
}
