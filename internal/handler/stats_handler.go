package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/middleware"
	"github.com/noah-isme/tutorhub-api/internal/service"
	"github.com/noah-isme/tutorhub-api/internal/utils"
)

// StatsHandler exposes ledger-derived balances joined with user identities.
type StatsHandler struct {
	service service.StatsService
	logger  zerolog.Logger
}

// NewStatsHandler constructs the handler.
func NewStatsHandler(service service.StatsService, logger zerolog.Logger) *StatsHandler {
	return &StatsHandler{
		service: service,
		logger:  logger.With().Str("component", "stats_handler").Logger(),
	}
}

// Register attaches stats routes to the router group.
func (h *StatsHandler) Register(router fiber.Router) {
	router.Get("/me", h.me)
	router.Get("/leaderboard", h.leaderboard)
	router.Get("/users/:id", middleware.StaffOrSelf(h.user, "id"))
	router.Post("/batch", middleware.RequireStaff(), h.batch)
}

func (h *StatsHandler) me(c *fiber.Ctx) error {
	userID, err := extractUserID(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	}
	return h.respondUser(c, userID)
}

func (h *StatsHandler) user(c *fiber.Ctx) error {
	userID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	return h.respondUser(c, userID)
}

func (h *StatsHandler) respondUser(c *fiber.Ctx, userID uint) error {
	periodID, err := parseOptionalUintQuery(c, "period_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	stats, err := h.service.GetUserWithCalculatedStats(requestContext(c), userID, periodID)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load user stats")
	}
	if stats == nil {
		return utils.SendError(c, fiber.StatusNotFound, "user not found")
	}

	if stats.Degraded {
		requestLogger(h.logger, c).Warn().Uint("user_id", userID).Msg("serving degraded user stats")
	}
	return utils.OK(c, stats, "user stats retrieved", degradedMeta(stats.Degraded))
}

func (h *StatsHandler) batch(c *fiber.Ctx) error {
	var payload dto.BatchStatsRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.BatchStats(requestContext(c), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load batch stats")
	}

	return utils.OK(c, response, "batch stats retrieved", degradedMeta(response.Degraded))
}

func (h *StatsHandler) leaderboard(c *fiber.Ctx) error {
	periodID, err := parseOptionalUintQuery(c, "period_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	response, err := h.service.Leaderboard(requestContext(c), periodID, limit)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load leaderboard")
	}

	return utils.OK(c, response, "leaderboard retrieved", degradedMeta(response.Degraded))
}
