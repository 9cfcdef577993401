package main

import (
	"context"
	"log"
	"os"
	"os/signal"
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
	"github.com/robfig/cron/v3"

	"github.com/reelforge/api/internal/config"
	"github.com/reelforge/api/internal/events"
	"github.com/reelforge/api/internal/handler"
	"github.com/reelforge/api/internal/jobqueue"
	"github.com/reelforge/api/internal/middleware"
	"github.com/reelforge/api/internal/pipeline"
	"github.com/reelforge/api/internal/review"
	"github.com/reelforge/api/internal/store"
	"github.com/reelforge/api/internal/worker"
	ws "github.com/reelforge/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Open the durable store
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

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

	// Initialize services
	scorer := review.NewClient(&cfg.Reviewer)
	publisher := events.NewAsynqPublisher(asynqClient)
	pipelineService := pipeline.NewService(st, scorer, publisher, cfg.Pipeline)

	transcodeQueue := jobqueue.New(time.Duration(cfg.Jobs.RetentionDays) * 24 * time.Hour)
	transcodeRunner := jobqueue.NewRunner(transcodeQueue, hub, 0)

	// Initialize handlers
	projectHandler := handler.NewProjectHandler(pipelineService, validate)
	taskHandler := handler.NewTaskHandler(pipelineService, validate)
	transcodeHandler := handler.NewTranscodeHandler(transcodeQueue, transcodeRunner, validate)
	sweepHandler := handler.NewSweepHandler(pipelineService, transcodeQueue, cfg.Sweep.Secret)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // 10MB
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Sweep endpoint for external schedulers (secret-keyed, not JWT)
	app.Post("/internal/sweep", sweepHandler.Run)

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	// Project routes
	projects := api.Group("/projects")
	projects.Post("/", rateLimiter.ProjectLimit(cfg.RateLimit.ProjectPerDay), projectHandler.Create)
	projects.Get("/:projectId", projectHandler.Get)
	projects.Get("/:projectId/tasks", projectHandler.ListTasks)

	// Task routes
	tasks := api.Group("/tasks")
	tasks.Get("/:taskId", taskHandler.Get)
	tasks.Post("/:taskId/claim", rateLimiter.ClaimLimit(cfg.RateLimit.ClaimPerMin), taskHandler.Claim)
	tasks.Post("/:taskId/submit", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerMin), taskHandler.Submit)
	tasks.Post("/:taskId/abandon", taskHandler.Abandon)
	tasks.Post("/:taskId/review", authMiddleware.RequireAdmin(), taskHandler.Review)

	// Admin transcode queue routes
	transcode := api.Group("/admin/transcode", authMiddleware.RequireAdmin())
	transcode.Post("/", transcodeHandler.Start)
	transcode.Get("/stats", transcodeHandler.Stats)
	transcode.Get("/", transcodeHandler.List)
	transcode.Get("/:jobId", transcodeHandler.Status)
	transcode.Post("/:jobId/cancel", transcodeHandler.Cancel)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/transcode/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server for event delivery
	go startWorkerServer(cfg, redisClient)

	// In-process maintenance sweeps
	scheduler := cron.New()
	spec := "@every " + cfg.Sweep.Interval.String()
	if _, err := scheduler.AddFunc(spec, func() {
		now := time.Now()
		if n, err := pipelineService.ReapExpired(context.Background(), now); err != nil {
			log.Printf("Sweep: reap failed: %v", err)
		} else if n > 0 {
			log.Printf("Sweep: reclaimed %d expired claims", n)
		}
		if n, err := pipelineService.SweepPhases(context.Background()); err != nil {
			log.Printf("Sweep: phase advance failed: %v", err)
		} else if n > 0 {
			log.Printf("Sweep: advanced %d phases", n)
		}
		if n := transcodeQueue.Purge(now); n > 0 {
			log.Printf("Sweep: purged %d transcode jobs", n)
		}
	}); err != nil {
		log.Fatalf("Failed to schedule sweep: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, redisClient *redis.Client) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"audit":  5,
				"notify": 5,
			},
		},
	)

	auditWorker := worker.NewAuditWorker(redisClient)
	notifyWorker := worker.NewNotifyWorker(redisClient)

	mux := asynq.NewServeMux()
	mux.HandleFunc(events.TypeAudit, auditWorker.ProcessTask)
	mux.HandleFunc(events.TypeNotify, notifyWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
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
