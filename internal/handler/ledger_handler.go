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

// LedgerHandler exposes the points and experience write paths and history.
type LedgerHandler struct {
	service      service.LedgerService
	writeLimiter fiber.Handler
	logger       zerolog.Logger
}

// NewLedgerHandler constructs the handler. writeLimiter may be nil.
func NewLedgerHandler(service service.LedgerService, writeLimiter fiber.Handler, logger zerolog.Logger) *LedgerHandler {
	if writeLimiter == nil {
		writeLimiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &LedgerHandler{
		service:      service,
		writeLimiter: writeLimiter,
		logger:       logger.With().Str("component", "ledger_handler").Logger(),
	}
}

// Register attaches ledger routes to the router group.
func (h *LedgerHandler) Register(router fiber.Router) {
	staff := middleware.RequireStaff()
	reviewers := middleware.RequireRole(models.RoleAdmin, models.RoleBoardMember)

	router.Post("/points/award", staff, h.writeLimiter, h.award)
	router.Post("/points/redeem", staff, h.writeLimiter, h.redeem)
	router.Post("/experience", staff, h.writeLimiter, h.experience)
	router.Post("/transactions/:kind/:id/rollback", reviewers, h.writeLimiter, h.rollback)
	router.Get("/students/:id/transactions", middleware.StaffOrSelf(h.history, "id"))
}

func (h *LedgerHandler) award(c *fiber.Ctx) error {
	var payload dto.AwardPointsRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.AwardPoints(requestContext(c), actorFromContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to award points")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "points awarded", response)
}

func (h *LedgerHandler) redeem(c *fiber.Ctx) error {
	var payload dto.RedeemPointsRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.RedeemPoints(requestContext(c), actorFromContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to redeem points")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "points redeemed", response)
}

func (h *LedgerHandler) experience(c *fiber.Ctx) error {
	var payload dto.ExperienceRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.RecordExperience(requestContext(c), actorFromContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to record experience")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "experience recorded", response)
}

func (h *LedgerHandler) rollback(c *fiber.Ctx) error {
	kind, ok := models.ParseTransactionKind(c.Params("kind"))
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, service.ErrInvalidTransactionKind.Error())
	}
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.RollbackRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.Rollback(requestContext(c), actorFromContext(c), kind, id, payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to roll back transaction")
	}

	return utils.SendSuccess(c, "transaction rolled back", response)
}

func (h *LedgerHandler) history(c *fiber.Ctx) error {
	studentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	periodID, err := parseOptionalUintQuery(c, "period_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	page, pageSize, err := parsePagination(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.ListTransactions(requestContext(c), studentID, dto.TransactionListRequest{
		Kind:              c.Query("kind"),
		PeriodID:          periodID,
		IncludeRolledBack: c.QueryBool("include_rolled_back", false),
		Page:              page,
		PageSize:          pageSize,
	})
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to list transactions")
	}

	return utils.SendSuccess(c, "transactions retrieved", response)
}
