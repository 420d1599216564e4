package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/Instaken/realtimechat-app/internal/config"
	"github.com/Instaken/realtimechat-app/internal/database"
	"github.com/Instaken/realtimechat-app/internal/handler"
	"github.com/Instaken/realtimechat-app/internal/middleware"
	"github.com/Instaken/realtimechat-app/internal/models"
	"github.com/Instaken/realtimechat-app/internal/repository"
	"github.com/Instaken/realtimechat-app/internal/router"
	"github.com/Instaken/realtimechat-app/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Room{}, &models.RoomParticipant{}, &models.ChatMessage{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	roomRepo := repository.NewRoomRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	roomService := service.NewRoomService(roomRepo, messageRepo, redisClient, "chat", natsConn, validate, cfg.HistoryLimit, logger)
	moderationService := service.NewModerationService(roomRepo, roomService, logger)
	retentionService := service.NewRetentionService(roomRepo, messageRepo, logger)

	roomHandler := handler.NewRoomHandler(roomRepo, roomService, moderationService, validate, handler.RoomHandlerConfig{
		DefaultCapacity:  cfg.DefaultCapacity,
		DefaultRetention: cfg.RetentionDays,
	}, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		WriteTimeout: cfg.WriteTimeout,
	})

	middleware.Register(app, logger)
	router.Register(app, cfg, router.Dependencies{
		RoomHandler: roomHandler,
		AuthMiddleware: middleware.Auth(middleware.AuthConfig{
			Secret:      cfg.JWTSecret,
			AllowGuests: cfg.AllowGuests,
		}),
	})

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	roomService.Start(runCtx)
	retentionService.Start(runCtx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
