package ingest

import (
	"time"

	"backend-tripoverlay/internal/engine"
	"backend-tripoverlay/internal/progress"
	"backend-tripoverlay/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

type LocationRequest struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	AccuracyM   float64 `json:"accuracy"`
	SpeedKmh    float64 `json:"speed_kmh"`
	TimestampMs int64   `json:"timestamp_ms"`
}

type statusRequest struct {
	Connected bool `json:"connected"`
}

type decisionResponse struct {
	Decision engine.Decision   `json:"decision"`
	Snapshot progress.Snapshot `json:"snapshot"`
}

// sample converts the wire form into an engine sample. A missing timestamp
// means the sender has no clock worth trusting, so the server's is used.
func (r LocationRequest) sample(now time.Time) engine.Sample {
	ts := now
	if r.TimestampMs > 0 {
		ts = time.UnixMilli(r.TimestampMs).UTC()
	}
	return engine.Sample{
		Coordinate: geo.Coordinate{Lat: r.Lat, Lon: r.Lon},
		AccuracyM:  r.AccuracyM,
		SpeedKmh:   r.SpeedKmh,
		Timestamp:  ts,
	}
}

func RegisterRoutes(r fiber.Router, eng *engine.Engine) {
	r.Post("/location", func(c *fiber.Ctx) error {
		var req LocationRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		decision := eng.Process(req.sample(time.Now().UTC()))
		return c.JSON(decisionResponse{Decision: decision, Snapshot: eng.Snapshot()})
	})

	r.Post("/nmea", func(c *fiber.Ctx) error {
		samples := samplesFromNMEA(string(c.Body()), time.Now().UTC())
		if len(samples) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "no valid RMC sentences")
		}
		var decision engine.Decision
		for _, s := range samples {
			decision = eng.Process(s)
		}
		return c.JSON(decisionResponse{Decision: decision, Snapshot: eng.Snapshot()})
	})

	r.Post("/status", func(c *fiber.Ctx) error {
		var req statusRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		eng.SetConnected(req.Connected)
		return c.JSON(eng.Snapshot())
	})
}
