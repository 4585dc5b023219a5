package handlers

import (
	"context"
	"encoding/base64"

	"ragvault/internal/dto"
	"ragvault/internal/models"
	"ragvault/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SourceManager is the ingestion side of the core.
type SourceManager interface {
	IngestDocument(ctx context.Context, req service.IngestRequest) (*service.IngestResult, error)
	DeleteSource(ctx context.Context, botID string, id uuid.UUID) error
	ListSources(ctx context.Context, botID string, limit, offset int) ([]*models.Source, error)
}

type SourceHandler struct {
	sources SourceManager
	logger  *zap.Logger
}

func NewSourceHandler(sources SourceManager, logger *zap.Logger) *SourceHandler {
	return &SourceHandler{
		sources: sources,
		logger:  logger,
	}
}

// IngestSource godoc
// @Summary Ingest a source document
// @Description Extracts, chunks and embeds a base64 document or a URL into the bot's namespace
// @Tags sources
// @Accept json
// @Produce json
// @Param request body dto.IngestSourceRequest true "Source"
// @Security Bearer
// @Success 201 {object} dto.IngestSourceResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 422 {object} dto.IngestSourceResponse
// @Router /api/v1/sources [post]
func (h *SourceHandler) IngestSource(c *fiber.Ctx) error {
	claims, err := getClaims(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "unauthorized", "Unauthorized")
	}

	var req dto.IngestSourceRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, models.KindInvalidQuery, "Invalid request body")
	}

	ingest := service.IngestRequest{
		BotID:    claims.BotID,
		Citable:  req.Citable,
		URL:      req.URL,
		MIMEType: req.MIMEType,
		Filename: req.Filename,
	}
	if req.SourceID != "" {
		if ingest.SourceID, err = uuid.Parse(req.SourceID); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, models.KindInvalidQuery, "Invalid source ID")
		}
	}
	if req.Content != "" {
		if ingest.Content, err = base64.StdEncoding.DecodeString(req.Content); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, models.KindInvalidQuery, "Content must be base64 encoded")
		}
	}

	result, err := h.sources.IngestDocument(c.UserContext(), ingest)
	if err != nil {
		h.logger.Error("Failed to ingest source", zap.String("bot_id", claims.BotID), zap.Error(err))
		if result == nil {
			return respondError(c, err)
		}
		return c.Status(statusForKind(result.ErrorKind)).JSON(newIngestResponse(result))
	}

	return c.Status(fiber.StatusCreated).JSON(newIngestResponse(result))
}

// ListSources godoc
// @Summary List the bot's sources
// @Tags sources
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Security Bearer
// @Success 200 {array} dto.SourceResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /api/v1/sources [get]
func (h *SourceHandler) ListSources(c *fiber.Ctx) error {
	claims, err := getClaims(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "unauthorized", "Unauthorized")
	}

	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	sources, err := h.sources.ListSources(c.UserContext(), claims.BotID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list sources", zap.Error(err))
		return errorJSON(c, fiber.StatusInternalServerError, models.KindInternal, "Failed to list sources")
	}

	response := make([]dto.SourceResponse, 0, len(sources))
	for _, s := range sources {
		response = append(response, dto.NewSourceResponse(s))
	}
	return c.JSON(response)
}

// DeleteSource godoc
// @Summary Delete a source
// @Description Removes the source together with its chunks and vectors
// @Tags sources
// @Param id path string true "Source ID"
// @Security Bearer
// @Success 204
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/sources/{id} [delete]
func (h *SourceHandler) DeleteSource(c *fiber.Ctx) error {
	claims, err := getClaims(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "unauthorized", "Unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, models.KindInvalidQuery, "Invalid source ID")
	}

	if err := h.sources.DeleteSource(c.UserContext(), claims.BotID, id); err != nil {
		h.logger.Error("Failed to delete source", zap.String("source_id", id.String()), zap.Error(err))
		return respondError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func newIngestResponse(r *service.IngestResult) dto.IngestSourceResponse {
	return dto.IngestSourceResponse{
		SourceID:   r.SourceID.String(),
		Status:     string(r.Status),
		ChunkCount: r.ChunkCount,
		TokenCount: r.TokenCount,
		Skipped:    r.Skipped,
		Error:      r.ErrorKind,
		Message:    r.Message,
	}
}
