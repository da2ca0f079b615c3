package persist

import (
	"context"
	"strings"
	"testing"
	"time"

	"backend-tripoverlay/internal/progress"
	"backend-tripoverlay/internal/shared/geo"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testAdapter(t *testing.T, debounce time.Duration) (*Adapter, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewAdapter(client, "overlay:test:progress", debounce), s
}

func TestSaveNowAndLoadRoundTrip(t *testing.T) {
	a, _ := testAdapter(t, DefaultDebounce)

	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	st := progress.State{
		TotalTraveledKm: 123.4,
		TodayTraveledKm: 12.5,
		StartLocation:   &geo.Coordinate{Lat: 48.2082, Lon: 16.3738},
		Units:           progress.UnitsKm,
		LastActiveDate:  "2026-05-01",
		LastActiveAt:    at,
	}
	if err := a.SaveNow(st); err != nil {
		t.Fatalf("save: %v", err)
	}

	a.nowFn = func() time.Time { return at.Add(time.Hour) }
	loaded, err := a.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.TotalTraveledKm != 123.4 || loaded.TodayTraveledKm != 12.5 {
		t.Fatalf("unexpected totals: %+v", loaded)
	}
	if loaded.StartLocation == nil || loaded.StartLocation.Lat != 48.2082 {
		t.Fatalf("start location not restored: %+v", loaded.StartLocation)
	}
	if !loaded.LastActiveAt.Equal(at) {
		t.Fatalf("last active not restored: %v", loaded.LastActiveAt)
	}
}

func TestLoadMissingKeyReturnsDefaults(t *testing.T) {
	a, _ := testAdapter(t, DefaultDebounce)
	st, err := a.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st.TotalTraveledKm != 0 || st.StartLocation != nil {
		t.Fatalf("expected zero state, got %+v", st)
	}
}

func TestLoadCorruptedPayloadFallsBack(t *testing.T) {
	a, s := testAdapter(t, DefaultDebounce)
	s.Set("overlay:test:progress", "{not json")

	st, err := a.Load(context.Background())
	if err != nil {
		t.Fatalf("corrupted payload must not fail load: %v", err)
	}
	if st.TotalTraveledKm != 0 {
		t.Fatalf("expected defaults, got %+v", st)
	}
}

func TestLoadClampsCorruptedNumbers(t *testing.T) {
	a, s := testAdapter(t, DefaultDebounce)
	s.Set("overlay:test:progress", `{"total_traveled_km":999999,"today_traveled_km":-3,"date":"2026-05-01","units":"furlongs"}`)

	a.nowFn = func() time.Time {
		return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	}
	st, err := a.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st.TotalTraveledKm != 50000 {
		t.Fatalf("expected clamp to 50000, got %v", st.TotalTraveledKm)
	}
	if st.TodayTraveledKm != 0 {
		t.Fatalf("expected negative today to coerce to 0, got %v", st.TodayTraveledKm)
	}
	if st.Units != progress.UnitsKm {
		t.Fatalf("expected unit fallback, got %q", st.Units)
	}
}

func TestShouldResetToday(t *testing.T) {
	now := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)

	// Saved yesterday, idle 10 hours -> reset.
	if !ShouldResetToday("2026-05-01", now.Add(-10*time.Hour), now) {
		t.Fatalf("expected reset after long gap")
	}
	// Saved yesterday, idle 2 hours (stream crossed midnight) -> keep.
	if ShouldResetToday("2026-05-01", now.Add(-2*time.Hour), now) {
		t.Fatalf("did not expect reset across midnight")
	}
	// Same calendar date -> never reset.
	if ShouldResetToday("2026-05-02", now.Add(-20*time.Hour), now) {
		t.Fatalf("same date must not reset")
	}
	// No saved date -> nothing to roll over.
	if ShouldResetToday("", time.Time{}, now) {
		t.Fatalf("empty date must not reset")
	}
}

func TestLoadAppliesRollover(t *testing.T) {
	a, s := testAdapter(t, DefaultDebounce)
	s.Set("overlay:test:progress", `{"total_traveled_km":100,"today_traveled_km":40,"date":"2026-05-01","last_active_at_ms":1777600800000}`)

	active := time.UnixMilli(1777600800000)
	a.nowFn = func() time.Time { return active.Add(26 * time.Hour) }

	st, err := a.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if st.TodayTraveledKm != 0 {
		t.Fatalf("expected today reset, got %v", st.TodayTraveledKm)
	}
	if st.TotalTraveledKm != 100 {
		t.Fatalf("total must survive rollover, got %v", st.TotalTraveledKm)
	}
}

func TestRequestSaveDebounces(t *testing.T) {
	a, s := testAdapter(t, 20*time.Millisecond)

	for i := 1; i <= 5; i++ {
		a.RequestSave(progress.State{TotalTraveledKm: float64(i)})
	}
	if s.Exists("overlay:test:progress") {
		t.Fatalf("write must not happen before the debounce window")
	}

	time.Sleep(60 * time.Millisecond)

	got, err := s.Get("overlay:test:progress")
	if err != nil {
		t.Fatalf("expected one coalesced write: %v", err)
	}
	// Only the latest payload survives the window.
	if want := `"total_traveled_km":5`; !strings.Contains(got, want) {
		t.Fatalf("expected latest state persisted, got %s", got)
	}
}

func TestCloseFlushesPendingWrite(t *testing.T) {
	a, s := testAdapter(t, time.Hour)

	a.RequestSave(progress.State{TotalTraveledKm: 7})
	a.Close()

	got, err := s.Get("overlay:test:progress")
	if err != nil {
		t.Fatalf("expected flush on close: %v", err)
	}
	if !strings.Contains(got, `"total_traveled_km":7`) {
		t.Fatalf("unexpected payload: %s", got)
	}
}

func TestNilClientIsNoop(t *testing.T) {
	a := NewAdapter(nil, "k", DefaultDebounce)
	a.RequestSave(progress.State{TotalTraveledKm: 1})
	if err := a.SaveNow(progress.State{}); err != nil {
		t.Fatalf("nil client save: %v", err)
	}
	if _, err := a.Load(context.Background()); err != nil {
		t.Fatalf("nil client load: %v", err)
	}
	a.Close()
}
