package engine

import (
	"math"
	"sync"
	"testing"
	"time"

	"backend-tripoverlay/internal/mode"
	"backend-tripoverlay/internal/progress"
	"backend-tripoverlay/internal/shared/geo"
)

type fakePublisher struct {
	mu    sync.Mutex
	snaps []progress.Snapshot
}

func (f *fakePublisher) PublishProgress(s progress.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, s)
}

func (f *fakePublisher) last() (progress.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.snaps) == 0 {
		return progress.Snapshot{}, false
	}
	return f.snaps[len(f.snaps)-1], true
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []CommitEvent
}

func (f *fakeRecorder) RecordCommit(ev CommitEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

var vienna = geo.Coordinate{Lat: 48.2082, Lon: 16.3738}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *progress.Store, *fakePublisher, *fakeRecorder) {
	t.Helper()
	store := progress.NewStore(100, progress.UnitsKm)
	pub := &fakePublisher{}
	rec := &fakeRecorder{}
	return New(store, nil, pub, rec, cfg), store, pub, rec
}

// seedWalking seeds a trip at Vienna at t0 and puts the engine in walking
// mode so throttle/ceiling checks use the walking configuration.
func seedWalking(t *testing.T, e *Engine, store *progress.Store, t0 time.Time) {
	t.Helper()
	if d := e.Process(Sample{Coordinate: vienna, Timestamp: t0}); d != DecisionSeeded {
		t.Fatalf("expected seed, got %v", d)
	}
	e.classifier.Set(mode.Walking)
	store.SetMode(mode.Walking)
}

func TestFirstSampleSeedsWithoutDistance(t *testing.T) {
	e, store, _, rec := newTestEngine(t, Config{AutoStart: true})
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	if d := e.Process(Sample{Coordinate: vienna, Timestamp: t0}); d != DecisionSeeded {
		t.Fatalf("expected seed, got %v", d)
	}

	st := store.State()
	if st.TotalTraveledKm != 0 {
		t.Fatalf("seeding must not add distance, got %v", st.TotalTraveledKm)
	}
	if st.StartLocation == nil || *st.StartLocation != vienna {
		t.Fatalf("start location not seeded: %+v", st.StartLocation)
	}
	if st.LastPosition == nil || *st.LastPosition != vienna {
		t.Fatalf("last position not seeded")
	}
	if len(rec.events) != 0 {
		t.Fatalf("seeding must not record a commit")
	}
}

func TestNullIslandNeverSeedsStart(t *testing.T) {
	e, store, _, _ := newTestEngine(t, Config{AutoStart: true})

	if d := e.Process(Sample{Coordinate: geo.Coordinate{}, Timestamp: time.Now()}); d != DecisionInvalid {
		t.Fatalf("expected invalid, got %v", d)
	}
	if store.StartLocation() != nil {
		t.Fatalf("(0,0) must not seed the start location")
	}
}

func TestInvalidCoordinateRejected(t *testing.T) {
	e, store, _, _ := newTestEngine(t, Config{AutoStart: true})
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	seedWalking(t, e, store, t0)

	before := store.State()
	for _, c := range []geo.Coordinate{
		{Lat: 91, Lon: 16},
		{Lat: 48, Lon: 200},
		{Lat: math.NaN(), Lon: 16},
	} {
		if d := e.Process(Sample{Coordinate: c, Timestamp: t0.Add(time.Minute)}); d != DecisionInvalid {
			t.Fatalf("expected invalid for %+v, got %v", c, d)
		}
	}
	after := store.State()
	if after.TotalTraveledKm != before.TotalTraveledKm || *after.LastPosition != *before.LastPosition {
		t.Fatalf("invalid samples must not mutate state")
	}
}

func TestThrottleDiscardsEarlySamples(t *testing.T) {
	e, store, _, _ := newTestEngine(t, Config{AutoStart: true})
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	seedWalking(t, e, store, t0)

	// Walking throttles at 3 s; a sample 1 s later is dropped whole.
	d := e.Process(Sample{
		Coordinate: geo.Coordinate{Lat: 48.2090, Lon: 16.3738},
		Timestamp:  t0.Add(time.Second),
	})
	if d != DecisionThrottled {
		t.Fatalf("expected throttled, got %v", d)
	}
	if store.State().TotalTraveledKm != 0 {
		t.Fatalf("throttled sample must not add distance")
	}
}

func TestNoiseFloorFiltersJitter(t *testing.T) {
	e, store, _, _ := newTestEngine(t, Config{AutoStart: true})
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	seedWalking(t, e, store, t0)

	// ~1 m of drift after 10 s is jitter, below walking's 5 m floor.
	d := e.Process(Sample{
		Coordinate: geo.Coordinate{Lat: 48.208209, Lon: 16.3738},
		Timestamp:  t0.Add(10 * time.Second),
	})
	if d != DecisionNoise {
		t.Fatalf("expected noise, got %v", d)
	}
	st := store.State()
	if st.TotalTraveledKm != 0 {
		t.Fatalf("noise must not add distance, got %v", st.TotalTraveledKm)
	}
	if *st.LastPosition != vienna {
		t.Fatalf("noise must not move the last position")
	}
}

// 200 m north 3 seconds after the seed implies ~240 km/h,
// far beyond any enabled ceiling; the sample is a teleport.
func TestJumpRejection(t *testing.T) {
	e, store, _, _ := newTestEngine(t, Config{AutoStart: true})
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	seedWalking(t, e, store, t0)

	// Walking throttle is 3 s, so a sample exactly 3 s later passes it.
	d := e.Process(Sample{
		Coordinate: geo.Coordinate{Lat: 48.21, Lon: 16.3738}, // ~200 m north
		Timestamp:  t0.Add(3 * time.Second),
	})
	if d != DecisionJump {
		t.Fatalf("expected jump rejection, got %v", d)
	}
	if store.State().TotalTraveledKm != 0 {
		t.Fatalf("rejected jump must not add distance")
	}

	// A later plausible sample ~7 m away commits normally.
	d = e.Process(Sample{
		Coordinate: geo.Coordinate{Lat: 48.208263, Lon: 16.3738},
		Timestamp:  t0.Add(6 * time.Second),
	})
	if d != DecisionCommitted {
		t.Fatalf("expected commit, got %v", d)
	}
	total := store.State().TotalTraveledKm
	if total < 0.005 || total > 0.010 {
		t.Fatalf("expected ~0.007 km committed, got %v", total)
	}
}

func TestCommitUpdatesEverything(t *testing.T) {
	e, store, pub, rec := newTestEngine(t, Config{AutoStart: true})
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	seedWalking(t, e, store, t0)

	next := geo.Coordinate{Lat: 48.20829, Lon: 16.3738} // ~10 m north
	d := e.Process(Sample{Coordinate: next, Timestamp: t0.Add(5 * time.Second)})
	if d != DecisionCommitted {
		t.Fatalf("expected commit, got %v", d)
	}

	st := store.State()
	if st.TotalTraveledKm <= 0 || st.TodayTraveledKm != st.TotalTraveledKm {
		t.Fatalf("totals not updated: %+v", st)
	}
	if *st.LastPosition != next {
		t.Fatalf("last position not advanced")
	}
	if snap, ok := pub.last(); !ok || snap.TotalTraveledKm != st.TotalTraveledKm {
		t.Fatalf("commit must broadcast a snapshot")
	}
	if len(rec.events) != 1 || rec.events[0].DeltaKm != st.TotalTraveledKm {
		t.Fatalf("commit must record one history event, got %+v", rec.events)
	}
}

// reentrantRecorder calls back into the engine from RecordCommit, the way a
// recorder blocked on a slow store would interleave with other entry points.
type reentrantRecorder struct {
	eng    *Engine
	events int
}

func (r *reentrantRecorder) RecordCommit(CommitEvent) {
	r.eng.SetConnected(true)
	r.events++
}

func TestRecorderRunsOutsideEngineLock(t *testing.T) {
	store := progress.NewStore(100, progress.UnitsKm)
	rec := &reentrantRecorder{}
	e := New(store, nil, nil, rec, Config{AutoStart: true})
	rec.eng = e
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	seedWalking(t, e, store, t0)

	next := geo.Coordinate{Lat: 48.20829, Lon: 16.3738}
	d := e.Process(Sample{Coordinate: next, Timestamp: t0.Add(5 * time.Second)})
	if d != DecisionCommitted {
		t.Fatalf("expected commit, got %v", d)
	}
	if rec.events != 1 {
		t.Fatalf("expected one recorded event, got %d", rec.events)
	}
	if !store.Connected() {
		t.Fatalf("recorder callback must be able to reach the engine")
	}
}

func TestReportedSpeedUpgradesMode(t *testing.T) {
	e, store, _, _ := newTestEngine(t, Config{AutoStart: true})
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	seedWalking(t, e, store, t0)

	// ~25 m in 5 s is 18 km/h; reported speed agrees. Cycling applies
	// immediately on commit.
	d := e.Process(Sample{
		Coordinate: geo.Coordinate{Lat: 48.208425, Lon: 16.3738},
		SpeedKmh:   18,
		Timestamp:  t0.Add(5 * time.Second),
	})
	if d != DecisionCommitted {
		t.Fatalf("expected commit, got %v", d)
	}
	if store.Mode() != mode.Cycling {
		t.Fatalf("expected immediate upgrade to cycling, got %v", store.Mode())
	}
}

func TestDowngradeHysteresis(t *testing.T) {
	store := progress.NewStore(100, progress.UnitsKm)
	pub := &fakePublisher{}
	e := New(store, nil, pub, nil, Config{AutoStart: true, DowngradeDelay: 40 * time.Millisecond})
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	e.Process(Sample{Coordinate: vienna, Timestamp: t0})
	e.classifier.Set(mode.Cycling)
	store.SetMode(mode.Cycling)

	// ~12 m in 5 s is ~8.6 km/h: walking bracket, downgrade goes pending.
	d := e.Process(Sample{
		Coordinate: geo.Coordinate{Lat: 48.208308, Lon: 16.3738},
		Timestamp:  t0.Add(5 * time.Second),
	})
	if d != DecisionCommitted {
		t.Fatalf("expected commit, got %v", d)
	}
	if store.Mode() != mode.Cycling {
		t.Fatalf("downgrade must not apply immediately, got %v", store.Mode())
	}

	// A cycling-bracket sample within the window cancels the downgrade.
	e.Process(Sample{
		Coordinate: geo.Coordinate{Lat: 48.208532, Lon: 16.3738}, // ~25 m
		SpeedKmh:   20,
		Timestamp:  t0.Add(10 * time.Second),
	})
	time.Sleep(100 * time.Millisecond)
	if store.Mode() != mode.Cycling {
		t.Fatalf("cancelled downgrade still fired, got %v", store.Mode())
	}

	// Drop to walking pace again and let the timer run out.
	e.Process(Sample{
		Coordinate: geo.Coordinate{Lat: 48.208640, Lon: 16.3738}, // ~12 m
		Timestamp:  t0.Add(15 * time.Second),
	})
	time.Sleep(100 * time.Millisecond)
	if store.Mode() != mode.Walking {
		t.Fatalf("expected walking after delay, got %v", store.Mode())
	}
	if snap, ok := pub.last(); !ok || snap.Mode != "walking" {
		t.Fatalf("downgrade commit must broadcast, got %+v", snap)
	}
}

func TestMonotonicTotals(t *testing.T) {
	e, store, _, _ := newTestEngine(t, Config{AutoStart: true})
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	seedWalking(t, e, store, t0)

	prev := 0.0
	lat := 48.2082
	for i := 1; i <= 20; i++ {
		lat += 0.0001 // ~11 m per step
		e.Process(Sample{
			Coordinate: geo.Coordinate{Lat: lat, Lon: 16.3738},
			Timestamp:  t0.Add(time.Duration(i*5) * time.Second),
		})
		total := store.State().TotalTraveledKm
		if total < prev {
			t.Fatalf("total decreased: %v -> %v", prev, total)
		}
		prev = total
	}
	if prev == 0 {
		t.Fatalf("expected distance to accumulate")
	}
}

func TestSetConnectedOnlyFlipsFlag(t *testing.T) {
	e, store, pub, _ := newTestEngine(t, Config{AutoStart: true})
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	seedWalking(t, e, store, t0)
	before := store.State()

	e.SetConnected(true)

	snap, ok := pub.last()
	if !ok || !snap.Connected {
		t.Fatalf("expected connected snapshot, got %+v", snap)
	}
	after := store.State()
	if after.TotalTraveledKm != before.TotalTraveledKm || *after.LastPosition != *before.LastPosition {
		t.Fatalf("connectivity signal must not touch totals or position")
	}
}

func TestResumeAfterRestartAddsNoDistance(t *testing.T) {
	e, store, _, _ := newTestEngine(t, Config{AutoStart: true})

	// Simulate a restored state: start location known, last position lost.
	start := vienna
	store.Restore(progress.State{
		TotalTraveledKm: 10,
		TotalTargetKm:   100,
		StartLocation:   &start,
		Units:           progress.UnitsKm,
	})

	d := e.Process(Sample{
		Coordinate: geo.Coordinate{Lat: 48.3, Lon: 16.4},
		Timestamp:  time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC),
	})
	if d != DecisionSeeded {
		t.Fatalf("expected re-anchor, got %v", d)
	}
	st := store.State()
	if st.TotalTraveledKm != 10 {
		t.Fatalf("re-anchoring must not add distance, got %v", st.TotalTraveledKm)
	}
	if *st.StartLocation != vienna {
		t.Fatalf("start location must survive re-anchoring")
	}
}
