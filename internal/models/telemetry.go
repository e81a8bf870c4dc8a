package models

import (
	"fmt"
	"time"
)

// LocationFix is a position report sent by a driver's device.
type LocationFix struct {
	DriverID  string    `json:"driver_id,omitempty"`
	Label     string    `json:"label,omitempty"`
	Location  Location  `json:"location"`
	Speed     float64   `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Describe returns the human-readable label, falling back to coordinates.
func (f LocationFix) Describe() string {
	if f.Label != "" {
		return f.Label
	}
	return fmt.Sprintf("%.5f,%.5f", f.Location.Lat, f.Location.Lon)
}
