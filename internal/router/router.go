package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Instaken/realtimechat-app/internal/config"
	"github.com/Instaken/realtimechat-app/internal/handler"
	"github.com/Instaken/realtimechat-app/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	RoomHandler    *handler.RoomHandler
	AuthMiddleware fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/api/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	authMiddleware := deps.AuthMiddleware
	if authMiddleware == nil {
		authMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.RoomHandler != nil {
		rooms := app.Group("/api/rooms", func(c *fiber.Ctx) error {
			c.Set("X-Application", cfg.AppName)
			return c.Next()
		}, authMiddleware)
		deps.RoomHandler.Register(rooms)

		realtimeGroup := app.Group("/realtime", authMiddleware)
		deps.RoomHandler.RegisterWebsocket(realtimeGroup)
	}
}
