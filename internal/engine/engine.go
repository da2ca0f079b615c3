package engine

import (
	"log"
	"math"
	"sync"
	"time"

	"backend-tripoverlay/internal/mode"
	"backend-tripoverlay/internal/persist"
	"backend-tripoverlay/internal/progress"
	"backend-tripoverlay/internal/shared/geo"
)

// jumpSlack is the tolerance factor on top of the plausible distance for the
// active mode before a sample counts as a GPS teleport.
const jumpSlack = 1.5

// Decision is the outcome of processing one sample. Every non-committed
// outcome is a no-op on progress state.
type Decision string

const (
	DecisionCommitted Decision = "committed"
	DecisionSeeded    Decision = "seeded"
	DecisionThrottled Decision = "throttled"
	DecisionInvalid   Decision = "invalid"
	DecisionNoise     Decision = "noise"
	DecisionJump      Decision = "jump"
)

// Sample is one raw GPS fix pushed by the location source.
type Sample struct {
	Coordinate geo.Coordinate
	AccuracyM  float64
	SpeedKmh   float64
	Timestamp  time.Time
}

// Publisher delivers snapshots to the render layer on every committed
// mutation. The stream hub implements it.
type Publisher interface {
	PublishProgress(progress.Snapshot)
}

// Recorder receives committed distance deltas for the history log.
type Recorder interface {
	RecordCommit(CommitEvent)
}

// CommitEvent describes one accepted distance delta.
type CommitEvent struct {
	At       time.Time
	Position geo.Coordinate
	DeltaKm  float64
	SpeedKmh float64
	Mode     mode.Mode
}

// Config carries the deployment knobs for the engine.
type Config struct {
	AutoStart      bool
	VehicleEnabled bool
	DowngradeDelay time.Duration
}

// Engine turns raw position samples into accumulated trip progress. Samples
// are processed strictly in arrival order under one mutex; there is no
// internal buffering and at most one in-flight sample.
type Engine struct {
	mu         sync.Mutex
	store      *progress.Store
	calc       *geo.DistanceCalculator
	classifier *mode.Classifier
	saver      *persist.Adapter
	publisher  Publisher
	recorder   Recorder

	autoStart      bool
	vehicleEnabled bool
}

func New(store *progress.Store, saver *persist.Adapter, publisher Publisher, recorder Recorder, cfg Config) *Engine {
	e := &Engine{
		store:          store,
		calc:           geo.NewDistanceCalculator(),
		saver:          saver,
		publisher:      publisher,
		recorder:       recorder,
		autoStart:      cfg.AutoStart,
		vehicleEnabled: cfg.VehicleEnabled,
	}
	e.classifier = mode.NewClassifier(store.Mode(), cfg.VehicleEnabled, cfg.DowngradeDelay, e.applyDowngrade)
	return e
}

// Process evaluates one sample through the full pipeline: throttle, validate,
// seed, distance delta, speed reconciliation, noise floor, jump rejection,
// commit. Rejections never partially mutate state.
func (e *Engine) Process(sample Sample) Decision {
	decision, ev := e.process(sample)
	// Recording happens outside the engine mutex so a slow event store never
	// stalls sample processing or the timer callbacks.
	if ev != nil && e.recorder != nil {
		e.recorder.RecordCommit(*ev)
	}
	return decision
}

func (e *Engine) process(sample Sample) (Decision, *CommitEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := sample.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	current := e.store.Mode()
	last, lastAt := e.store.LastFix()

	if last != nil && !lastAt.IsZero() && now.Sub(lastAt) < current.Config().Throttle {
		return DecisionThrottled, nil
	}

	if !sample.Coordinate.Valid() {
		log.Printf("ignoring invalid coordinate (%v, %v)", sample.Coordinate.Lat, sample.Coordinate.Lon)
		return DecisionInvalid, nil
	}

	if last == nil {
		if e.store.StartLocation() == nil {
			if sample.Coordinate.IsNullIsland() {
				// (0,0) before the first fix is a receiver fault, not a place.
				log.Printf("ignoring null-island sample while seeding start location")
				return DecisionInvalid, nil
			}
			if e.autoStart {
				e.store.SeedStart(sample.Coordinate, now)
			} else {
				e.store.ResumeAt(sample.Coordinate, now)
			}
		} else {
			// Start survived a restart but the last position did not; this
			// sample re-anchors deltas without contributing distance.
			e.store.ResumeAt(sample.Coordinate, now)
		}
		e.afterMutation()
		return DecisionSeeded, nil
	}

	deltaKm := e.calc.DistanceKm(*last, sample.Coordinate)

	elapsedSec := now.Sub(lastAt).Seconds()
	if elapsedSec < 1 {
		elapsedSec = 1
	}
	calculatedKmh := deltaKm / (elapsedSec / 3600)
	speedKmh := effectiveSpeedKmh(sample.SpeedKmh, calculatedKmh)

	// The mode in effect for this sample: the more permissive of the current
	// mode and the one the speed itself implies.
	active := mode.Faster(current, mode.Candidate(speedKmh, e.vehicleEnabled))

	if deltaKm < active.Config().MinMovementM/1000 {
		return DecisionNoise, nil
	}

	maxPlausibleKm := elapsedSec * (active.Config().MaxSpeedKmh / 3.6) / 1000
	if deltaKm > maxPlausibleKm*jumpSlack {
		log.Printf("rejecting implausible jump: %.3f km in %.0fs (%s ceiling %.0f km/h)",
			deltaKm, elapsedSec, active, active.Config().MaxSpeedKmh)
		return DecisionJump, nil
	}

	applied := e.classifier.Observe(speedKmh)
	e.store.SetMode(applied)
	e.store.ApplyCommit(deltaKm, sample.Coordinate, now)
	e.afterMutation()

	return DecisionCommitted, &CommitEvent{
		At:       now,
		Position: sample.Coordinate,
		DeltaKm:  deltaKm,
		SpeedKmh: speedKmh,
		Mode:     applied,
	}
}

// effectiveSpeedKmh reconciles the receiver-reported speed with the one
// derived from distance over time by taking the larger. Tunable policy, kept
// from the original behavior: under-reporting masks movement while
// over-reporting is capped by jump rejection.
func effectiveSpeedKmh(reported, calculated float64) float64 {
	if math.IsNaN(reported) || math.IsInf(reported, 0) || reported < 0 {
		reported = 0
	}
	return math.Max(reported, calculated)
}

// SetConnected flips the externally visible connection flag. A hidden/offline
// signal is a connectivity change, never a GPS reading.
func (e *Engine) SetConnected(connected bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.SetConnected(connected)
	e.publish()
}

func (e *Engine) applyDowngrade(m mode.Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.SetMode(m)
	e.afterMutation()
}

// NotifyMutation re-broadcasts and schedules a save after an external control
// mutation routed through the store.
func (e *Engine) NotifyMutation() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.afterMutation()
}

// ResetMode forces the classifier and store back to a mode, dropping any
// pending downgrade. Used by control resets and state import.
func (e *Engine) ResetMode(m mode.Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.classifier.Set(m)
	e.store.SetMode(m)
	e.afterMutation()
}

func (e *Engine) Snapshot() progress.Snapshot {
	return e.store.Snapshot()
}

func (e *Engine) afterMutation() {
	if e.saver != nil {
		e.saver.RequestSave(e.store.State())
	}
	e.publish()
}

func (e *Engine) publish() {
	if e.publisher != nil {
		e.publisher.PublishProgress(e.store.Snapshot())
	}
}

// Close cancels both engine-owned timers (mode downgrade, save debounce) and
// performs a final synchronous save.
func (e *Engine) Close() {
	e.classifier.Stop()
	if e.saver != nil {
		e.saver.Close()
		if err := e.saver.SaveNow(e.store.State()); err != nil {
			log.Printf("final save failed: %v", err)
		}
	}
}
