package history

import (
	"context"
	"log"
	"time"

	"backend-tripoverlay/internal/db"
	"backend-tripoverlay/internal/engine"

	"github.com/google/uuid"
)

const recordTimeout = 2 * time.Second

// Service appends committed distance deltas to Postgres and answers the
// overlay's history queries. It implements engine.Recorder.
type Service struct {
	db        db.Querier
	overlayID string
}

func NewService(q db.Querier, overlayID string) *Service {
	return &Service{db: q, overlayID: overlayID}
}

// RecordCommit inserts one event. A storage failure is logged and dropped;
// the engine's in-memory totals stay authoritative.
func (s *Service) RecordCommit(ev engine.CommitEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	_, err := s.db.Exec(ctx, `
		INSERT INTO distance_events (id, overlay_id, recorded_at, delta_km, speed_kmh, mode, lat, lon)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, uuid.NewString(), s.overlayID, ev.At, ev.DeltaKm, ev.SpeedKmh, ev.Mode.String(), ev.Position.Lat, ev.Position.Lon)
	if err != nil {
		log.Printf("history insert failed: %v", err)
	}
}

func (s *Service) Events(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, recorded_at, delta_km, speed_kmh, mode, lat, lon
		FROM distance_events
		WHERE overlay_id=$1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, s.overlayID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e := Event{OverlayID: s.overlayID}
		if err := rows.Scan(&e.ID, &e.RecordedAt, &e.DeltaKm, &e.SpeedKmh, &e.Mode, &e.Lat, &e.Lon); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func (s *Service) Daily(ctx context.Context) ([]DailyTotal, error) {
	rows, err := s.db.Query(ctx, `
		SELECT to_char(recorded_at, 'YYYY-MM-DD') AS day, COALESCE(SUM(delta_km),0), COUNT(*)
		FROM distance_events
		WHERE overlay_id=$1
		GROUP BY 1
		ORDER BY 1 DESC
	`, s.overlayID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []DailyTotal
	for rows.Next() {
		var d DailyTotal
		if err := rows.Scan(&d.Day, &d.DistanceKm, &d.Events); err != nil {
			return nil, err
		}
		totals = append(totals, d)
	}
	return totals, nil
}
