package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	errwrap "github.com/pkg/errors"

	"github.com/rahmatrdn/go-query-insight/internal/http/middleware"
	"github.com/rahmatrdn/go-query-insight/internal/usecase"
)

type QueryHandler struct {
	queryUsecase *usecase.QueryUsecase
}

func NewQueryHandler(queryUsecase *usecase.QueryUsecase) *QueryHandler {
	return &QueryHandler{queryUsecase: queryUsecase}
}

func (h *QueryHandler) Register(app *fiber.App, auth fiber.Handler) {
	group := app.Group("/api", auth)
	group.Get("/slow-queries", h.ListSlowQueries)
	group.Get("/slow-queries/:id", h.GetSlowQueryDetail)
	group.Get("/metrics/daily", h.DailyMetrics)
	group.Get("/metrics/fingerprints", h.FingerprintMetrics)
}

func (h *QueryHandler) ListSlowQueries(c *fiber.Ctx) error {
	userID := middleware.CallerUserID(c)

	rows, err := h.queryUsecase.ListSlowQueries(c.Context(), userID, usecase.ListParams{
		SourceDBType:    c.Query("db_type"),
		Status:          c.Query("status"),
		FingerprintHash: c.Query("fingerprint_hash"),
		Limit:           c.QueryInt("limit", 50),
		Offset:          c.QueryInt("offset", 0),
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"data": rows})
}

func (h *QueryHandler) GetSlowQueryDetail(c *fiber.Ctx) error {
	queryID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid query id"})
	}

	detail, err := h.queryUsecase.GetSlowQueryDetail(c.Context(), middleware.CallerUserID(c), queryID)
	if err != nil {
		if errwrap.Is(err, usecase.ErrNotVisible) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{"data": detail})
}

func (h *QueryHandler) DailyMetrics(c *fiber.Ctx) error {
	metrics, err := h.queryUsecase.DailyMetrics(c.Context(), middleware.CallerUserID(c),
		c.Query("from"), c.Query("to"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"data": metrics})
}

func (h *QueryHandler) FingerprintMetrics(c *fiber.Ctx) error {
	metrics, err := h.queryUsecase.FingerprintMetrics(c.Context(), middleware.CallerUserID(c),
		c.QueryInt("limit", 50))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"data": metrics})
}
