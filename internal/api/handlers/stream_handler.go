package handlers

import (
	"context"
	"errors"

	"ragvault/internal/stream"
	"ragvault/pkg/auth"
	"ragvault/pkg/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type StreamHandler struct {
	ctx       context.Context
	processor stream.QueryProcessor
	cfg       stream.Config
	logger    *zap.Logger
}

// NewStreamHandler serves websocket sessions. Sessions end when ctx is done.
func NewStreamHandler(ctx context.Context, processor stream.QueryProcessor, cfg stream.Config, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		ctx:       ctx,
		processor: processor,
		cfg:       cfg,
		logger:    logger,
	}
}

// RequireUpgrade rejects plain HTTP requests on the websocket route.
func (h *StreamHandler) RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return errorJSON(c, fiber.StatusUpgradeRequired, "upgrade_required", "Websocket upgrade required")
}

// Stream godoc
// @Summary Streaming query session
// @Description Websocket: send {"type":"query"|"ping"|"cancel"}; receive progress, response chunks and citations
// @Tags query
// @Param token query string false "JWT when the Authorization header cannot be set"
// @Success 101
// @Failure 401 {object} dto.ErrorResponse
// @Failure 426 {object} dto.ErrorResponse
// @Router /ws [get]
func (h *StreamHandler) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		claims, ok := conn.Locals(middleware.ClaimsKey).(*auth.Claims)
		if !ok {
			_ = conn.WriteJSON(stream.ServerMessage{Type: stream.TypeError, Error: "unauthorized", Message: "Unauthorized"})
			return
		}

		identity := stream.Identity{UserID: claims.UserID, BotID: claims.BotID, Admin: claims.IsAdmin()}
		logger := h.logger.With(zap.String("user_id", identity.UserID), zap.String("bot_id", identity.BotID))
		logger.Info("Stream session opened")

		session := stream.NewSession(conn, h.processor, identity, h.cfg, h.logger)
		err := session.Run(h.ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled), websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
			logger.Info("Stream session closed")
		default:
			logger.Warn("Stream session ended", zap.Error(err))
		}
	})
}
