package history

import "time"

type Event struct {
	ID         string    `json:"id"`
	OverlayID  string    `json:"overlay_id"`
	RecordedAt time.Time `json:"recorded_at"`
	DeltaKm    float64   `json:"delta_km"`
	SpeedKmh   float64   `json:"speed_kmh"`
	Mode       string    `json:"mode"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
}

type DailyTotal struct {
	Day        string  `json:"day"`
	DistanceKm float64 `json:"distance_km"`
	Events     int     `json:"events"`
}
