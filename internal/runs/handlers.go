package runs

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Reader is the read side of a run store.
type Reader interface {
	Get(ctx context.Context, id string) (Run, error)
	ListBySession(ctx context.Context, sessionID string) ([]Run, error)
}

func RegisterRoutes(r fiber.Router, store Reader) {
	r.Get("/session/:id", func(c *fiber.Ctx) error {
		list, err := store.ListBySession(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if list == nil {
			list = []Run{}
		}
		return c.JSON(list)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		run, err := lookup(c, store)
		if err != nil {
			return err
		}
		return c.JSON(run)
	})

	r.Get("/:id/geojson", func(c *fiber.Ctx) error {
		run, err := lookup(c, store)
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		body, err := FeatureCollection(run).MarshalJSON()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Send(body)
	})
}

func lookup(c *fiber.Ctx, store Reader) (Run, error) {
	run, err := store.Get(c.Context(), c.Params("id"))
	if errors.Is(err, ErrNotFound) {
		return Run{}, fiber.NewError(fiber.StatusNotFound, "run not found")
	}
	if err != nil {
		return Run{}, fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return run, nil
}
