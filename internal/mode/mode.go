package mode

import (
	"fmt"
	"time"
)

// Mode is a movement mode ordered by speed ceiling. The ordering is what the
// classifier's hysteresis compares against, so the constants must stay sorted
// slowest to fastest.
type Mode int

const (
	Stationary Mode = iota
	Walking
	Cycling
	Vehicle
)

// Config is the static tuning attached to each mode.
type Config struct {
	MaxSpeedKmh  float64
	MinMovementM float64
	Throttle     time.Duration
	Avatar       string
}

var configs = map[Mode]Config{
	Stationary: {MaxSpeedKmh: 2, MinMovementM: 2, Throttle: 5 * time.Second, Avatar: "🧍"},
	Walking:    {MaxSpeedKmh: 10, MinMovementM: 5, Throttle: 3 * time.Second, Avatar: "🚶"},
	Cycling:    {MaxSpeedKmh: 35, MinMovementM: 10, Throttle: 2 * time.Second, Avatar: "🚴"},
	Vehicle:    {MaxSpeedKmh: 150, MinMovementM: 20, Throttle: time.Second, Avatar: "🚗"},
}

func (m Mode) Config() Config {
	return configs[m]
}

func (m Mode) String() string {
	switch m {
	case Stationary:
		return "stationary"
	case Walking:
		return "walking"
	case Cycling:
		return "cycling"
	case Vehicle:
		return "vehicle"
	}
	return "unknown"
}

// Parse maps a persisted mode name back to its Mode. Unknown names fall back
// to Stationary so corrupted storage never fails a load.
func Parse(s string) (Mode, error) {
	switch s {
	case "stationary", "":
		return Stationary, nil
	case "walking":
		return Walking, nil
	case "cycling":
		return Cycling, nil
	case "vehicle":
		return Vehicle, nil
	}
	return Stationary, fmt.Errorf("unknown mode %q", s)
}

// Candidate returns the slowest mode whose speed ceiling contains speedKmh.
// Speeds above every ceiling map to the fastest enabled mode.
func Candidate(speedKmh float64, vehicleEnabled bool) Mode {
	top := Cycling
	if vehicleEnabled {
		top = Vehicle
	}
	for m := Stationary; m <= top; m++ {
		if speedKmh <= m.Config().MaxSpeedKmh {
			return m
		}
	}
	return top
}

// Faster returns the faster of two modes by the total speed-ceiling order.
func Faster(a, b Mode) Mode {
	if a >= b {
		return a
	}
	return b
}
