package persist

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"backend-tripoverlay/internal/progress"
	"backend-tripoverlay/internal/shared/geo"

	"github.com/redis/go-redis/v9"
)

// DefaultDebounce batches bursts of mutations into one Redis write.
const DefaultDebounce = 500 * time.Millisecond

// rolloverGap is the minimum idle time, on top of a calendar date change,
// before "today" resets. A stream crossing midnight keeps its counter.
const rolloverGap = 6 * time.Hour

const writeTimeout = 2 * time.Second

// Record is the persisted layout. Readers tolerate missing fields; absent
// values fall back to defaults on load.
type Record struct {
	TotalTraveledKm float64         `json:"total_traveled_km"`
	TodayTraveledKm float64         `json:"today_traveled_km"`
	Date            string          `json:"date"`
	LastActiveAtMs  int64           `json:"last_active_at_ms"`
	StartLocation   *geo.Coordinate `json:"start_location,omitempty"`
	Units           string          `json:"units"`
}

// Adapter persists progress to a Redis key with debounced fire-and-forget
// writes. A nil Redis client disables persistence without changing behavior
// elsewhere; in-memory state stays authoritative either way.
type Adapter struct {
	rdb      *redis.Client
	key      string
	debounce time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending *Record

	nowFn func() time.Time
}

func NewAdapter(rdb *redis.Client, key string, debounce time.Duration) *Adapter {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Adapter{
		rdb:      rdb,
		key:      key,
		debounce: debounce,
		nowFn:    time.Now,
	}
}

// RequestSave schedules a debounced write of the given state. Calls within
// the debounce window replace the pending payload; only the latest state is
// written when the timer fires.
func (a *Adapter) RequestSave(st progress.State) {
	if a.rdb == nil {
		return
	}
	rec := recordFrom(st)

	a.mu.Lock()
	a.pending = &rec
	if a.timer == nil {
		a.timer = time.AfterFunc(a.debounce, a.flushPending)
	}
	a.mu.Unlock()
}

func (a *Adapter) flushPending() {
	a.mu.Lock()
	rec := a.pending
	a.pending = nil
	a.timer = nil
	a.mu.Unlock()

	if rec != nil {
		if err := a.write(*rec); err != nil {
			log.Printf("progress save failed: %v", err)
		}
	}
}

// SaveNow writes synchronously, bypassing the debounce. Used on shutdown.
func (a *Adapter) SaveNow(st progress.State) error {
	if a.rdb == nil {
		return nil
	}
	return a.write(recordFrom(st))
}

func (a *Adapter) write(rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return a.rdb.Set(ctx, a.key, payload, 0).Err()
}

// Load reads and sanitizes the persisted record, applying day rollover.
// A missing key or corrupted payload yields defaults, never an error the
// caller must abort on.
func (a *Adapter) Load(ctx context.Context) (progress.State, error) {
	var st progress.State
	if a.rdb == nil {
		return st, nil
	}

	payload, err := a.rdb.Get(ctx, a.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return st, nil
	}
	if err != nil {
		return st, err
	}

	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		log.Printf("corrupted progress record, starting fresh: %v", err)
		return st, nil
	}

	st.TotalTraveledKm = progress.ClampKm(rec.TotalTraveledKm)
	st.TodayTraveledKm = progress.ClampKm(rec.TodayTraveledKm)
	st.Units = progress.ParseUnits(rec.Units)
	st.LastActiveDate = rec.Date
	if rec.LastActiveAtMs > 0 {
		st.LastActiveAt = time.UnixMilli(rec.LastActiveAtMs)
		st.LastUpdateAt = st.LastActiveAt
	}
	if rec.StartLocation != nil && rec.StartLocation.Valid() && !rec.StartLocation.IsNullIsland() {
		loc := *rec.StartLocation
		st.StartLocation = &loc
	}

	if ShouldResetToday(rec.Date, st.LastActiveAt, a.nowFn()) {
		st.TodayTraveledKm = 0
		st.LastActiveDate = a.nowFn().Format(progress.DateLayout)
	}
	return st, nil
}

// Close flushes any pending debounced write synchronously.
func (a *Adapter) Close() {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	rec := a.pending
	a.pending = nil
	a.mu.Unlock()

	if rec != nil {
		if err := a.write(*rec); err != nil {
			log.Printf("final progress save failed: %v", err)
		}
	}
}

// ShouldResetToday applies the day-rollover rule: the saved calendar date
// must differ from the current one AND more than six idle hours must have
// passed since the last activity.
func ShouldResetToday(savedDate string, lastActive, now time.Time) bool {
	if savedDate == "" || savedDate == now.Format(progress.DateLayout) {
		return false
	}
	if lastActive.IsZero() {
		return true
	}
	return now.Sub(lastActive) > rolloverGap
}

func recordFrom(st progress.State) Record {
	var activeMs int64
	if !st.LastActiveAt.IsZero() {
		activeMs = st.LastActiveAt.UnixMilli()
	}
	return Record{
		TotalTraveledKm: st.TotalTraveledKm,
		TodayTraveledKm: st.TodayTraveledKm,
		Date:            st.LastActiveDate,
		LastActiveAtMs:  activeMs,
		StartLocation:   st.StartLocation,
		Units:           string(st.Units),
	}
}
