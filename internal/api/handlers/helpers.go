package handlers

import (
	"errors"

	"ragvault/internal/dto"
	"ragvault/internal/models"
	"ragvault/internal/repository"
	"ragvault/internal/service"
	"ragvault/pkg/auth"
	"ragvault/pkg/middleware"

	"github.com/gofiber/fiber/v2"
)

func getClaims(c *fiber.Ctx) (*auth.Claims, error) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok || claims.UserID == "" || claims.BotID == "" {
		return nil, fiber.ErrUnauthorized
	}
	return claims, nil
}

func errorJSON(c *fiber.Ctx, status int, kind, message string) error {
	return c.Status(status).JSON(dto.ErrorResponse{Error: kind, Message: message})
}

// respondError maps a pipeline error onto an HTTP status and the public
// {error, message} pair.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return errorJSON(c, fiber.StatusNotFound, "not_found", "Source not found")
	case errors.Is(err, service.ErrBotMismatch):
		return errorJSON(c, fiber.StatusForbidden, "forbidden", "Source belongs to another bot")
	case errors.Is(err, service.ErrMissingContent), errors.Is(err, service.ErrMissingBot):
		return errorJSON(c, fiber.StatusBadRequest, models.KindInvalidQuery, err.Error())
	}
	kind := models.ErrorKind(err)
	return errorJSON(c, statusForKind(kind), kind, models.PublicMessage(err))
}

func statusForKind(kind string) int {
	switch kind {
	case models.KindInvalidQuery:
		return fiber.StatusBadRequest
	case models.KindExtraction, models.KindChunking, models.KindPrivacyViolation:
		return fiber.StatusUnprocessableEntity
	case models.KindBudgetExceeded:
		return fiber.StatusTooManyRequests
	case models.KindEmbedding, models.KindGeneration:
		return fiber.StatusBadGateway
	case models.KindVectorStorage:
		return fiber.StatusServiceUnavailable
	case models.KindCancelled:
		return fiber.StatusRequestTimeout
	}
	return fiber.StatusInternalServerError
}
