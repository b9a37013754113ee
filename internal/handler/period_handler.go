package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/middleware"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
	"github.com/noah-isme/tutorhub-api/internal/utils"
)

// PeriodHandler exposes the period registry.
type PeriodHandler struct {
	service service.PeriodService
	logger  zerolog.Logger
}

// NewPeriodHandler constructs the handler.
func NewPeriodHandler(service service.PeriodService, logger zerolog.Logger) *PeriodHandler {
	return &PeriodHandler{
		service: service,
		logger:  logger.With().Str("component", "period_handler").Logger(),
	}
}

// Register attaches period routes. Reads are open to any authenticated caller; lifecycle
// changes require ADMIN.
func (h *PeriodHandler) Register(router fiber.Router) {
	admin := middleware.RequireRole(models.RoleAdmin)

	router.Get("", h.list)
	router.Get("/active", h.active)
	router.Get("/:id", h.get)
	router.Post("", admin, h.create)
	router.Post("/:id/activate", admin, h.activate)
	router.Post("/:id/complete", admin, h.complete)
}

func (h *PeriodHandler) list(c *fiber.Ctx) error {
	page, pageSize, err := parsePagination(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.List(requestContext(c), dto.PeriodListRequest{
		Status:   c.Query("status"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to list periods")
	}

	return utils.OK(c, response.Items, "periods retrieved", response.Pagination)
}

func (h *PeriodHandler) active(c *fiber.Ctx) error {
	period, err := h.service.GetActivePeriod(requestContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load active period")
	}
	if period == nil {
		return utils.SendError(c, fiber.StatusNotFound, "no active period")
	}

	return utils.SendSuccess(c, "active period retrieved", dto.NewPeriodResponse(*period))
}

func (h *PeriodHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	period, err := h.service.GetPeriodByID(requestContext(c), id)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load period")
	}
	if period == nil {
		return utils.SendError(c, fiber.StatusNotFound, service.ErrPeriodNotFound.Error())
	}

	return utils.SendSuccess(c, "period retrieved", dto.NewPeriodResponse(*period))
}

func (h *PeriodHandler) create(c *fiber.Ctx) error {
	var payload dto.PeriodCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	period, err := h.service.Create(requestContext(c), actorFromContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to create period")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "period created", period)
}

func (h *PeriodHandler) activate(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	period, err := h.service.Activate(requestContext(c), actorFromContext(c), id)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to activate period")
	}

	return utils.SendSuccess(c, "period activated", period)
}

func (h *PeriodHandler) complete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	period, err := h.service.Complete(requestContext(c), actorFromContext(c), id)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to complete period")
	}

	return utils.SendSuccess(c, "period completed", period)
}
