package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tutorhub-api/internal/middleware"
	"github.com/noah-isme/tutorhub-api/internal/service"
)

const streamPingInterval = 30 * time.Second

// LedgerStreamHandler pushes the caller's ledger events over a websocket.
type LedgerStreamHandler struct {
	events service.LedgerEventService
	logger zerolog.Logger
}

// NewLedgerStreamHandler constructs the websocket handler.
func NewLedgerStreamHandler(events service.LedgerEventService, logger zerolog.Logger) *LedgerStreamHandler {
	return &LedgerStreamHandler{
		events: events,
		logger: logger.With().Str("component", "ledger_stream_handler").Logger(),
	}
}

// Register binds the websocket upgrade under the provided router group.
func (h *LedgerStreamHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals("stream_user_id", middleware.UserIDFromContext(c))
		return c.Next()
	})
	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *LedgerStreamHandler) handleConnection(conn *websocket.Conn) {
	userID, _ := conn.Locals("stream_user_id").(uint)
	correlation, _ := conn.Locals("correlation_id").(string)
	logger := h.logger.With().Uint("user_id", userID).Str("correlation_id", correlation).Logger()

	if userID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		_ = conn.Close()
		return
	}

	events, cleanup := h.events.Subscribe(userID)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Info().Msg("ledger stream connected")
	defer logger.Info().Msg("ledger stream disconnected")

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("ledger stream write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
