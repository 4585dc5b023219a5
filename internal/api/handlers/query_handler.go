package handlers

import (
	"strings"

	"ragvault/internal/dto"
	"ragvault/internal/models"
	"ragvault/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type QueryHandler struct {
	processor stream.QueryProcessor
	logger    *zap.Logger
}

func NewQueryHandler(processor stream.QueryProcessor, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		processor: processor,
		logger:    logger,
	}
}

// Query godoc
// @Summary Ask the bot a question
// @Description Runs retrieval and generation over the bot's sources and returns the answer with citations
// @Tags query
// @Accept json
// @Produce json
// @Param request body dto.QueryRequest true "Query"
// @Security Bearer
// @Success 200 {object} dto.QueryResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /api/v1/query [post]
func (h *QueryHandler) Query(c *fiber.Ctx) error {
	claims, err := getClaims(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "unauthorized", "Unauthorized")
	}

	var req dto.QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, models.KindInvalidQuery, "Invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return errorJSON(c, fiber.StatusBadRequest, models.KindInvalidQuery, "Query text is required")
	}

	mode, err := models.ParsePrivacyMode(req.PrivacyMode)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, models.KindInvalidQuery, "Unknown privacy mode")
	}
	if mode == models.PrivacyModeInternal && !claims.IsAdmin() {
		return errorJSON(c, fiber.StatusForbidden, "forbidden", "Internal mode requires an admin token")
	}

	q := &models.RAGQuery{
		ID:               uuid.NewString(),
		Text:             req.Query,
		UserID:           claims.UserID,
		BotID:            claims.BotID,
		PrivacyMode:      mode,
		TopK:             req.TopK,
		MaxContextTokens: req.MaxContextTokens,
		Temperature:      req.Temperature,
		ConversationID:   req.ConversationID,
		MessageID:        req.MessageID,
	}

	resp, err := h.processor.ProcessQuery(c.UserContext(), q)
	if err != nil {
		h.logger.Error("Query failed",
			zap.String("query_id", q.ID),
			zap.String("bot_id", q.BotID),
			zap.String("kind", models.ErrorKind(err)),
			zap.Error(err),
		)
		return respondError(c, err)
	}

	return c.JSON(dto.NewQueryResponse(resp))
}
