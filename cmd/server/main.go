package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/hiswaca/etl-console/internal/auth"
	"github.com/hiswaca/etl-console/internal/client"
	"github.com/hiswaca/etl-console/internal/config"
	"github.com/hiswaca/etl-console/internal/etl"
	"github.com/hiswaca/etl-console/internal/handler"
	"github.com/hiswaca/etl-console/internal/middleware"
	"github.com/hiswaca/etl-console/internal/model"
	"github.com/hiswaca/etl-console/internal/service"
	ws "github.com/hiswaca/etl-console/internal/websocket"
	"github.com/hiswaca/etl-console/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()
	defer hub.Stop()

	// Portal backend client: the caller's token when there is one, else the service token
	portalClient := client.NewPortalClient(&cfg.Portal, auth.ForwardedCredentials{
		Fallback: auth.StaticCredentials(cfg.Portal.ServiceToken),
	})

	// Initialize R2 client (optional - output workbooks are streamed if not configured)
	var artifactStore client.ArtifactStore
	r2Configured := false
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			artifactStore = r2Client
			r2Configured = true
		}
	} else {
		log.Println("Info: R2 storage not configured, output files are streamed from the backend")
	}

	// Initialize OIDC JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.OIDC.Issuer != "" {
		var err error
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.OIDC)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Initialize services
	coordinator := etl.NewCoordinator(portalClient, cfg.ETL.DataModels, validate)
	ingestionService := service.NewIngestionService(coordinator, service.IngestionOptions{
		Narrator:      etl.Narrator{Cadence: cfg.ETL.NarrationCadence},
		Observer:      hub,
		AutoReset:     cfg.ETL.AutoResetAfter,
		SubmitTimeout: cfg.ETL.SubmitTimeout,
	})
	historyService := service.NewHistoryService(portalClient, artifactStore, cfg.ETL.ArtifactURLTTL)
	processService := service.NewProcessService(asynqClient, redisClient, cfg.ETL.PollTimeout)

	// Initialize handlers
	etlHandler := handler.NewETLHandler(ingestionService, validate)
	uploadsHandler := handler.NewUploadsHandler(historyService, processService, validate)

	// Initialize auth handler for ForwardAuth verification
	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	authHandler := handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret)

	// Initialize middleware (with fallback support)
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		var authMiddleware *middleware.AuthMiddleware
		if tokenVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(tokenVerifier, cfg.JWT.Secret)
		} else if tokenVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(tokenVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    55 * 1024 * 1024, // 50MB file plus form fields
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"portal": portalClient.IsConfigured(),
				"r2":     r2Configured,
				"auth":   jwksVerifier != nil || cfg.JWT.Secret != "",
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)
	etlAPI := api.Group("/etl")

	etlAPI.Get("/models", etlHandler.Models)

	jobs := etlAPI.Group("/jobs")
	jobs.Post("/", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerHour), etlHandler.Submit)
	jobs.Get("/current", etlHandler.Current)
	jobs.Post("/current/reset", etlHandler.Reset)
	jobs.Get("/:jobId", etlHandler.Job)

	uploads := etlAPI.Group("/uploads", rateLimiter.ReadLimit(cfg.RateLimit.ReadPerMin))
	uploads.Get("/", uploadsHandler.List)
	uploads.Get("/:id", uploadsHandler.Get)
	uploads.Get("/:id/artifact", uploadsHandler.Artifact)
	uploads.Get("/:id/outcome", uploadsHandler.Outcome)
	uploads.Post("/:id/process", middleware.RequireRole(model.RoleAdmin), rateLimiter.ProcessLimit(cfg.RateLimit.ProcessPerHour), uploadsHandler.Process)
	uploads.Delete("/:id", middleware.RequireRole(model.RoleAdmin), uploadsHandler.Delete)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", apiAuthMiddleware, etlHandler.StreamGuard, websocket.New(func(c *websocket.Conn) {
		job, _ := c.Locals("job").(model.IngestionJob)
		userID, _ := c.Locals("userId").(string)
		hub.HandleConnection(c, job.ID, func() interface{} {
			current, err := ingestionService.Lookup(userID, job.ID)
			if err != nil {
				current = job
			}
			return model.WSStatusMessage{
				Type:  model.WSMessageTypeStatus,
				JobID: current.ID,
				Job:   current,
			}
		})
	}))

	app.Get("/ws/uploads/:id", apiAuthMiddleware, middleware.RequireRole(model.RoleAdmin), websocket.New(func(c *websocket.Conn) {
		id, err := strconv.Atoi(c.Params("id"))
		if err != nil || id <= 0 {
			return
		}
		hub.HandleConnection(c, model.UploadChannel(id), nil)
	}))

	// Start Asynq worker server
	workerSrv := newWorkerServer(cfg)
	go func() {
		mux := asynq.NewServeMux()
		processWorker := worker.NewProcessWorker(portalClient, hub, processService, cfg.ETL.PollInterval, cfg.ETL.PollTimeout)
		mux.HandleFunc(service.TaskTypeProcessUpload, processWorker.ProcessTask)

		if err := workerSrv.Run(mux); err != nil {
			log.Printf("Asynq worker error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := ingestionService.Close(ctx); err != nil {
			log.Printf("Ingestion jobs did not finish: %v", err)
		}
		workerSrv.Shutdown()
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func newWorkerServer(cfg *config.Config) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				service.QueueETL: 1,
			},
			LogLevel: asynqLogLevel,
		},
	)
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
