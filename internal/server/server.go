package server

import (
	"context"
	"encoding/json"
	"log"

	"backend-tripoverlay/internal/auth"
	"backend-tripoverlay/internal/config"
	"backend-tripoverlay/internal/control"
	"backend-tripoverlay/internal/engine"
	"backend-tripoverlay/internal/history"
	"backend-tripoverlay/internal/ingest"
	"backend-tripoverlay/internal/mode"
	"backend-tripoverlay/internal/persist"
	"backend-tripoverlay/internal/progress"
	"backend-tripoverlay/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub
	Store  *progress.Store
	Engine *engine.Engine
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) (*Server, error) {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	store := progress.NewStore(cfg.TripTargetKm, progress.ParseUnits(cfg.Units))
	hub := stream.NewHub(redisClient)

	var saver *persist.Adapter
	if redisClient != nil {
		saver = persist.NewAdapter(redisClient, stateKey(cfg.OverlayID), 0)
		st, err := saver.Load(context.Background())
		if err != nil {
			log.Printf("could not load persisted progress: %v", err)
		}
		if st.Units == "" {
			st.Units = progress.ParseUnits(cfg.Units)
		}
		store.Restore(st)
	}

	var histSvc *history.Service
	var recorder engine.Recorder
	if db != nil {
		histSvc = history.NewService(db, cfg.OverlayID)
		recorder = histSvc
	}

	eng := engine.New(store, saver, stream.NewProgressPublisher(hub, cfg.OverlayID), recorder, engine.Config{
		AutoStart:      cfg.AutoStart,
		VehicleEnabled: cfg.VehicleMode,
		DowngradeDelay: mode.DefaultDowngradeDelay,
	})

	// New stream clients get the current snapshot immediately instead of
	// waiting for the next fix.
	hub.Current = func(overlayID string) []byte {
		if overlayID != cfg.OverlayID {
			return nil
		}
		payload, err := json.Marshal(eng.Snapshot())
		if err != nil {
			return nil
		}
		return payload
	}

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: hub,
		Store:  store,
		Engine: eng,
	}

	if err := registerRoutes(s, histSvc); err != nil {
		return nil, err
	}
	return s, nil
}

func registerRoutes(s *Server, histSvc *history.Service) error {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	authSvc, err := auth.NewService(s.Cfg.JWTSecret, s.Cfg.ControlPassword)
	if err != nil {
		return err
	}
	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), authSvc)
	ingest.RegisterRoutes(s.App.Group("/ingest"), s.Engine)
	control.RegisterRoutes(s.App.Group("/control"), control.NewService(s.Store, s.Engine), jwtMiddleware)
	if histSvc != nil {
		history.RegisterRoutes(s.App.Group("/history"), histSvc)
	}
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
	return nil
}

func stateKey(overlayID string) string {
	return "overlay:" + overlayID + ":progress-state"
}
