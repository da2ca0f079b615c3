package control

import (
	"backend-tripoverlay/internal/engine"
	"backend-tripoverlay/internal/mode"
	"backend-tripoverlay/internal/progress"
)

// Service is the operator command surface. Every mutation routes through the
// store's clamped entry points and re-notifies the engine so the change is
// broadcast and persisted like any committed sample.
type Service struct {
	store *progress.Store
	eng   *engine.Engine
}

func NewService(store *progress.Store, eng *engine.Engine) *Service {
	return &Service{store: store, eng: eng}
}

func (s *Service) AddDistance(km float64) progress.Snapshot {
	s.store.AddDistance(km)
	return s.notify()
}

// SetDistance sets the total traveled distance. Kept as a separate command
// name for console compatibility; identical to SetTotalTraveled.
func (s *Service) SetDistance(km float64) progress.Snapshot {
	return s.SetTotalTraveled(km)
}

func (s *Service) SetTotalTraveled(km float64) progress.Snapshot {
	s.store.SetTotalTraveled(km)
	return s.notify()
}

func (s *Service) SetTodayDistance(km float64) progress.Snapshot {
	s.store.SetTodayDistance(km)
	return s.notify()
}

// SetTotalDistance changes the trip goal.
func (s *Service) SetTotalDistance(km float64) progress.Snapshot {
	s.store.SetTargetKm(km)
	return s.notify()
}

func (s *Service) JumpToProgress(percent float64) progress.Snapshot {
	s.store.JumpToPercent(percent)
	return s.notify()
}

func (s *Service) SetUnits(units string) progress.Snapshot {
	s.store.SetUnits(progress.ParseUnits(units))
	return s.notify()
}

func (s *Service) ResetProgress() progress.Snapshot {
	s.store.ResetProgress()
	s.eng.ResetMode(mode.Stationary)
	return s.store.Snapshot()
}

func (s *Service) ResetTodayDistance() progress.Snapshot {
	s.store.ResetToday()
	return s.notify()
}

func (s *Service) ResetStartLocation() progress.Snapshot {
	s.store.ResetStartLocation()
	return s.notify()
}

func (s *Service) ExportState() progress.Exported {
	return s.store.Export()
}

func (s *Service) ImportState(e progress.Exported) progress.Snapshot {
	s.store.Import(e)
	m, _ := mode.Parse(e.Mode)
	s.eng.ResetMode(m)
	return s.store.Snapshot()
}

func (s *Service) Snapshot() progress.Snapshot {
	return s.store.Snapshot()
}

func (s *Service) notify() progress.Snapshot {
	s.eng.NotifyMutation()
	return s.store.Snapshot()
}
