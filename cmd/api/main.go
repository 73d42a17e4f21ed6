package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/shop-agent/backend/internal/agent"
	"github.com/shop-agent/backend/internal/api/handlers"
	redisCache "github.com/shop-agent/backend/internal/cache/redis"
	"github.com/shop-agent/backend/internal/intent"
	"github.com/shop-agent/backend/internal/interpret"
	"github.com/shop-agent/backend/internal/llm"
	"github.com/shop-agent/backend/internal/metrics"
	"github.com/shop-agent/backend/internal/middleware/ratelimit"
	"github.com/shop-agent/backend/internal/middleware/security"
	"github.com/shop-agent/backend/internal/middleware/validation"
	"github.com/shop-agent/backend/internal/shopify"
	"github.com/shop-agent/backend/internal/shopifyql"
	"github.com/shop-agent/backend/pkg/config"
	appLogger "github.com/shop-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Merchant Insights Agent API Server")

	metrics.Init()

	var redisClient *redisCache.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisCache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, rate limiting falls back to local buckets", zap.Error(err))
		} else {
			defer redisClient.Close()
		}
	}

	var completer interpret.Completer
	if cfg.LLM.APIKey != "" {
		completer = llm.NewClient(
			cfg.LLM.APIKey,
			cfg.LLM.Model,
			cfg.LLM.Temperature,
			cfg.LLM.MaxTokens,
			cfg.LLM.TimeoutSec,
		)
	} else {
		appLogger.Warn("No LLM API key configured, answers use heuristic summaries only")
	}

	shopifyClient := shopify.NewClient(shopify.Config{
		APIVersion: cfg.Shopify.APIVersion,
		Timeout:    time.Duration(cfg.Shopify.TimeoutSec) * time.Second,
	})

	orchestrator := agent.NewOrchestrator(
		intent.NewClassifier(),
		shopifyql.NewSynthesizer(),
		shopifyClient,
		interpret.NewInterpreter(completer),
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
		Redis:                redisClient,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		MaxQuestionLength: agent.MaxQuestionLength,
		Logger:            appLogger.GetLogger(),
	}))

	questionHandler := handlers.NewQuestionHandler(orchestrator)
	wsHandler := handlers.NewWebSocketHandler(orchestrator)

	api := app.Group("/api/v1")

	api.Post("/process-question", questionHandler.HandleProcessQuestion)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws", websocket.New(wsHandler.HandleConnection))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
