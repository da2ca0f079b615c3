package control

import (
	"backend-tripoverlay/internal/progress"

	"github.com/gofiber/fiber/v2"
)

type kmRequest struct {
	Km float64 `json:"km"`
}

type percentRequest struct {
	Percent float64 `json:"percent"`
}

type unitsRequest struct {
	Units string `json:"units"`
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	// The snapshot itself is public; the overlay page polls it.
	r.Get("/snapshot", func(c *fiber.Ctx) error {
		return c.JSON(svc.Snapshot())
	})

	r.Post("/distance/add", authMiddleware, kmHandler(svc.AddDistance))
	r.Post("/distance/set", authMiddleware, kmHandler(svc.SetDistance))
	r.Post("/distance/total", authMiddleware, kmHandler(svc.SetTotalTraveled))
	r.Post("/distance/today", authMiddleware, kmHandler(svc.SetTodayDistance))
	r.Post("/target", authMiddleware, kmHandler(svc.SetTotalDistance))

	r.Post("/jump", authMiddleware, func(c *fiber.Ctx) error {
		var req percentRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.JSON(svc.JumpToProgress(req.Percent))
	})

	r.Post("/units", authMiddleware, func(c *fiber.Ctx) error {
		var req unitsRequest
		if err := c.BodyParser(&req); err != nil || req.Units == "" {
			return fiber.NewError(fiber.StatusBadRequest, "units required")
		}
		return c.JSON(svc.SetUnits(req.Units))
	})

	r.Post("/reset", authMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(svc.ResetProgress())
	})
	r.Post("/reset/today", authMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(svc.ResetTodayDistance())
	})
	r.Post("/reset/start", authMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(svc.ResetStartLocation())
	})

	r.Get("/export", authMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(svc.ExportState())
	})
	r.Post("/import", authMiddleware, func(c *fiber.Ctx) error {
		var e progress.Exported
		if err := c.BodyParser(&e); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.JSON(svc.ImportState(e))
	})
}

func kmHandler(op func(float64) progress.Snapshot) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req kmRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.JSON(op(req.Km))
	}
}
