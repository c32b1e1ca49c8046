package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rahmatrdn/go-query-insight/internal/scheduler"
)

// JobHandler exposes the scheduler's manual-trigger and status surface.
type JobHandler struct {
	sched *scheduler.Scheduler
}

func NewJobHandler(sched *scheduler.Scheduler) *JobHandler {
	return &JobHandler{sched: sched}
}

func (h *JobHandler) Register(app *fiber.App, auth fiber.Handler) {
	group := app.Group("/api/jobs", auth)
	group.Get("/status", h.Status)
	group.Post("/:name/trigger", h.Trigger)
}

func (h *JobHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.sched.Status())
}

func (h *JobHandler) Trigger(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := h.sched.TriggerNow(name); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"triggered": name})
}
