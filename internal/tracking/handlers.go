package tracking

import (
	"errors"

	"backend-slopetrack/internal/auth"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/sessions", authMiddleware, func(c *fiber.Ctx) error {
		var req StartRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		session, err := svc.StartSession(c.Context(), auth.DeviceID(c), req)
		if err != nil {
			return serviceError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	r.Post("/sessions/:id/readings", authMiddleware, func(c *fiber.Ctx) error {
		var batch ReadingBatch
		if err := c.BodyParser(&batch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if len(batch.Readings) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "readings required")
		}
		result, err := svc.AddReadings(c.Context(), c.Params("id"), auth.DeviceID(c), batch)
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(result)
	})

	r.Post("/sessions/:id/battery", authMiddleware, func(c *fiber.Ctx) error {
		var status BatteryStatus
		if err := c.BodyParser(&status); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if status.Level > 1 {
			return fiber.NewError(fiber.StatusBadRequest, "level must be a fraction between 0 and 1")
		}
		if err := svc.SetBattery(c.Params("id"), auth.DeviceID(c), status); err != nil {
			return serviceError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/sessions/:id/stop", authMiddleware, func(c *fiber.Ctx) error {
		result, err := svc.StopSession(c.Context(), c.Params("id"), auth.DeviceID(c))
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(result)
	})

	r.Get("/sessions/:id/live", func(c *fiber.Ctx) error {
		payload, err := svc.LiveJSON(c.Context(), c.Params("id"))
		if err != nil {
			return serviceError(err)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(payload)
	})

	r.Get("/sessions/:id", func(c *fiber.Ctx) error {
		session, err := svc.Session(c.Context(), c.Params("id"))
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(session)
	})
}

func serviceError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotOwner):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidMode):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
