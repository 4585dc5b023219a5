package api

import (
	"errors"
	"time"

	"ragvault/docs"
	"ragvault/internal/api/handlers"
	"ragvault/pkg/auth"
	"ragvault/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"
)

type RouterConfig struct {
	CORSOrigins  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RequestLogging enables the fiber access log.
	RequestLogging bool
}

func SetupRouter(
	queryHandler *handlers.QueryHandler,
	sourceHandler *handlers.SourceHandler,
	streamHandler *handlers.StreamHandler,
	jwtManager *auth.JWTManager,
	cfg RouterConfig,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code, message := fiber.StatusInternalServerError, fiber.ErrInternalServerError.Message
			var e *fiber.Error
			if errors.As(err, &e) {
				code, message = e.Code, e.Message
			} else {
				appLogger.Error("Unhandled request error", zap.String("path", c.Path()), zap.Error(err))
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   "request_failed",
				"message": message,
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	origins := cfg.CORSOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	if cfg.RequestLogging {
		app.Use(logger.New())
	}

	// Importing docs registers the OpenAPI document with swag.
	_ = docs.SwaggerInfo
	app.Get("/swagger/*", swagger.HandlerDefault)

	authRequired := middleware.AuthMiddleware(jwtManager, appLogger)

	app.Get("/ws", streamHandler.RequireUpgrade, authRequired, streamHandler.Stream())

	protected := app.Group("/api/v1", authRequired)
	protected.Post("/query", queryHandler.Query)

	sources := protected.Group("/sources")
	sources.Post("", sourceHandler.IngestSource)
	sources.Get("", sourceHandler.ListSources)
	sources.Delete("/:id", sourceHandler.DeleteSource)

	return app
}
