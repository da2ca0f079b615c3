package progress

import (
	"math"
	"time"

	"backend-tripoverlay/internal/mode"
	"backend-tripoverlay/internal/shared/geo"
)

// MaxDistanceKm is the sanity bound applied to every externally supplied or
// persisted distance value. 50000 km is beyond any plausible single trip.
const MaxDistanceKm = 50000

const DateLayout = "2006-01-02"

type Units string

const (
	UnitsKm    Units = "km"
	UnitsMiles Units = "miles"
)

// ParseUnits falls back to km for anything unrecognized.
func ParseUnits(s string) Units {
	if Units(s) == UnitsMiles {
		return UnitsMiles
	}
	return UnitsKm
}

// State is the aggregate the engine owns. Total and today are two
// independently mutated counters over the same distance events; neither
// bounds the other.
type State struct {
	TotalTraveledKm float64
	TodayTraveledKm float64
	TotalTargetKm   float64
	StartLocation   *geo.Coordinate
	LastPosition    *geo.Coordinate
	LastUpdateAt    time.Time
	CurrentMode     mode.Mode
	Units           Units
	LastActiveDate  string
	LastActiveAt    time.Time
}

// ClampKm coerces a distance value into [0, MaxDistanceKm]. Non-finite and
// negative inputs collapse to 0.
func ClampKm(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	if v > MaxDistanceKm {
		return MaxDistanceKm
	}
	return v
}

// Snapshot is the read-only view handed to the render layer.
type Snapshot struct {
	TotalTraveledKm float64 `json:"total_traveled_km"`
	TodayTraveledKm float64 `json:"today_traveled_km"`
	TotalTargetKm   float64 `json:"total_target_km"`
	RemainingKm     float64 `json:"remaining_km"`
	ProgressPercent float64 `json:"progress_percent"`
	Mode            string  `json:"mode"`
	Avatar          string  `json:"avatar"`
	Units           string  `json:"units"`
	Connected       bool    `json:"connected"`
}

// Exported is the full round-trippable state minus transient timers, used by
// the control surface's export/import commands.
type Exported struct {
	TotalTraveledKm float64         `json:"total_traveled_km"`
	TodayTraveledKm float64         `json:"today_traveled_km"`
	TotalTargetKm   float64         `json:"total_target_km"`
	StartLocation   *geo.Coordinate `json:"start_location,omitempty"`
	LastPosition    *geo.Coordinate `json:"last_position,omitempty"`
	Mode            string          `json:"mode"`
	Units           string          `json:"units"`
	Date            string          `json:"date"`
	LastActiveAtMs  int64           `json:"last_active_at_ms"`
}
