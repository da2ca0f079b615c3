package progress

import (
	"math"
	"sync"
	"time"

	"backend-tripoverlay/internal/mode"
	"backend-tripoverlay/internal/shared/geo"
)

// Store is the single owned holder of State. It enforces no trip policy of
// its own, but every externally supplied distance passes ClampKm so a control
// command cannot bypass the bounds persistence load applies.
type Store struct {
	mu        sync.RWMutex
	state     State
	connected bool
}

func NewStore(targetKm float64, units Units) *Store {
	targetKm = ClampKm(targetKm)
	if targetKm == 0 {
		targetKm = 100
	}
	return &Store{
		state: State{
			TotalTargetKm: targetKm,
			CurrentMode:   mode.Stationary,
			Units:         units,
		},
	}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	remaining := st.TotalTargetKm - st.TotalTraveledKm
	if remaining < 0 {
		remaining = 0
	}
	percent := 0.0
	if st.TotalTargetKm > 0 {
		percent = math.Min(100, st.TotalTraveledKm/st.TotalTargetKm*100)
	}
	return Snapshot{
		TotalTraveledKm: st.TotalTraveledKm,
		TodayTraveledKm: st.TodayTraveledKm,
		TotalTargetKm:   st.TotalTargetKm,
		RemainingKm:     remaining,
		ProgressPercent: percent,
		Mode:            st.CurrentMode.String(),
		Avatar:          st.CurrentMode.Config().Avatar,
		Units:           string(st.Units),
		Connected:       s.connected,
	}
}

func (s *Store) Mode() mode.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.CurrentMode
}

func (s *Store) SetMode(m mode.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.CurrentMode = m
}

func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}

// SeedStart records the trip origin. The seeding sample defines the origin
// and contributes no distance.
func (s *Store) SeedStart(pos geo.Coordinate, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := pos
	s.state.StartLocation = &p
	last := pos
	s.state.LastPosition = &last
	s.touchLocked(at)
}

// ResumeAt re-anchors the last position without touching the start location
// or counters. Used for the first sample after a restart restored a trip that
// already has an origin.
func (s *Store) ResumeAt(pos geo.Coordinate, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := pos
	s.state.LastPosition = &p
	s.touchLocked(at)
}

// ApplyCommit adds an accepted distance delta and advances position/time.
// Only the engine's processing path calls this.
func (s *Store) ApplyCommit(deltaKm float64, pos geo.Coordinate, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TotalTraveledKm += deltaKm
	s.state.TodayTraveledKm += deltaKm
	p := pos
	s.state.LastPosition = &p
	s.touchLocked(at)
}

func (s *Store) touchLocked(at time.Time) {
	s.state.LastUpdateAt = at
	s.state.LastActiveAt = at
	s.state.LastActiveDate = at.Format(DateLayout)
}

// LastFix returns the last committed position and its time.
func (s *Store) LastFix() (*geo.Coordinate, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LastPosition, s.state.LastUpdateAt
}

func (s *Store) StartLocation() *geo.Coordinate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.StartLocation
}

// Control-surface mutations. All clamped.

func (s *Store) AddDistance(km float64) {
	km = ClampKm(km)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TotalTraveledKm = ClampKm(s.state.TotalTraveledKm + km)
	s.state.TodayTraveledKm = ClampKm(s.state.TodayTraveledKm + km)
}

func (s *Store) SetTotalTraveled(km float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TotalTraveledKm = ClampKm(km)
}

func (s *Store) SetTodayDistance(km float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TodayTraveledKm = ClampKm(km)
}

// SetTargetKm updates the trip goal. A non-positive or non-finite target is
// ignored; the overlay divides by it.
func (s *Store) SetTargetKm(km float64) {
	if math.IsNaN(km) || math.IsInf(km, 0) || km <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TotalTargetKm = ClampKm(km)
}

// JumpToPercent sets total traveled to the given fraction of the target.
func (s *Store) JumpToPercent(percent float64) {
	if math.IsNaN(percent) || math.IsInf(percent, 0) {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TotalTraveledKm = ClampKm(s.state.TotalTargetKm * percent / 100)
}

func (s *Store) SetUnits(u Units) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Units = u
}

// ResetProgress zeroes all counters and positions, keeping target and units.
func (s *Store) ResetProgress() {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := s.state.TotalTargetKm
	units := s.state.Units
	s.state = State{
		TotalTargetKm: target,
		CurrentMode:   mode.Stationary,
		Units:         units,
	}
}

func (s *Store) ResetToday() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TodayTraveledKm = 0
}

// ResetStartLocation clears the origin so the next valid sample re-seeds it.
func (s *Store) ResetStartLocation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.StartLocation = nil
	s.state.LastPosition = nil
}

// Restore replaces the state wholesale, clamping numeric fields and dropping
// invalid coordinates. Used by persistence load and state import.
func (s *Store) Restore(st State) {
	st.TotalTraveledKm = ClampKm(st.TotalTraveledKm)
	st.TodayTraveledKm = ClampKm(st.TodayTraveledKm)
	st.TotalTargetKm = ClampKm(st.TotalTargetKm)
	if st.TotalTargetKm == 0 {
		st.TotalTargetKm = s.State().TotalTargetKm
	}
	if st.StartLocation != nil && (!st.StartLocation.Valid() || st.StartLocation.IsNullIsland()) {
		st.StartLocation = nil
	}
	if st.LastPosition != nil && !st.LastPosition.Valid() {
		st.LastPosition = nil
	}
	if st.Units == "" {
		st.Units = UnitsKm
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Export captures the full state minus transient timers.
func (s *Store) Export() Exported {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	var activeMs int64
	if !st.LastActiveAt.IsZero() {
		activeMs = st.LastActiveAt.UnixMilli()
	}
	return Exported{
		TotalTraveledKm: st.TotalTraveledKm,
		TodayTraveledKm: st.TodayTraveledKm,
		TotalTargetKm:   st.TotalTargetKm,
		StartLocation:   st.StartLocation,
		LastPosition:    st.LastPosition,
		Mode:            st.CurrentMode.String(),
		Units:           string(st.Units),
		Date:            st.LastActiveDate,
		LastActiveAtMs:  activeMs,
	}
}

// Import restores from an exported snapshot.
func (s *Store) Import(e Exported) {
	m, _ := mode.Parse(e.Mode)
	st := State{
		TotalTraveledKm: e.TotalTraveledKm,
		TodayTraveledKm: e.TodayTraveledKm,
		TotalTargetKm:   e.TotalTargetKm,
		StartLocation:   e.StartLocation,
		LastPosition:    e.LastPosition,
		CurrentMode:     m,
		Units:           ParseUnits(e.Units),
		LastActiveDate:  e.Date,
	}
	if e.LastActiveAtMs > 0 {
		st.LastActiveAt = time.UnixMilli(e.LastActiveAtMs)
		st.LastUpdateAt = st.LastActiveAt
	}
	s.Restore(st)
}
