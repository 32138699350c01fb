package handlers

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
)

func TestPresenceUpdateRequestAcceptsZeroCoordinates(t *testing.T) {
	cases := []struct {
		name string
		body string
		lat  float64
		lng  float64
	}{
		{"zero longitude", `{"latitude":51.4779,"longitude":0}`, 51.4779, 0},
		{"zero latitude", `{"latitude":0,"longitude":-78.4678}`, 0, -78.4678},
		{"origin", `{"latitude":0,"longitude":0}`, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req presenceUpdateRequest
			if err := binding.JSON.BindBody([]byte(tc.body), &req); err != nil {
				t.Fatalf("bind: %v", err)
			}
			if req.Latitude == nil || *req.Latitude != tc.lat {
				t.Fatalf("latitude = %v, want %v", req.Latitude, tc.lat)
			}
			if req.Longitude == nil || *req.Longitude != tc.lng {
				t.Fatalf("longitude = %v, want %v", req.Longitude, tc.lng)
			}
		})
	}
}

func TestPresenceUpdateRequestRequiresBothCoordinates(t *testing.T) {
	bodies := []string{
		`{"longitude":13.4}`,
		`{"latitude":52.5}`,
		`{}`,
	}

	for _, body := range bodies {
		var req presenceUpdateRequest
		if err := binding.JSON.BindBody([]byte(body), &req); err == nil {
			t.Errorf("bind %s: expected error, got none", body)
		}
	}
}

func TestPresenceUpdateRequestBatteryOptional(t *testing.T) {
	var req presenceUpdateRequest
	if err := binding.JSON.BindBody([]byte(`{"latitude":1,"longitude":2}`), &req); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if req.BatteryPercent != nil {
		t.Fatalf("batteryPercent = %v, want nil", *req.BatteryPercent)
	}
}
