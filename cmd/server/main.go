package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"

	"github.com/makeasinger/sunoflow/internal/app"
	"github.com/makeasinger/sunoflow/internal/config"
	"github.com/makeasinger/sunoflow/internal/handler"
	"github.com/makeasinger/sunoflow/internal/middleware"
	"github.com/makeasinger/sunoflow/internal/service"
	ws "github.com/makeasinger/sunoflow/internal/websocket"
	"github.com/makeasinger/sunoflow/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, hub)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize handlers
	generateHandler := handler.NewGenerateHandler(a.Generation, validate)
	taskHandler := handler.NewTaskHandler(a.Generation, validate, cfg.Tasks.KeepDays)
	songHandler := handler.NewSongHandler(a.Generation)
	promptHandler := handler.NewPromptHandler(a.Prompts, validate)
	var library handler.LibraryBrowser
	if a.Direct != nil {
		library = a.Direct
	}
	libraryHandler := handler.NewLibraryHandler(library)

	rateLimiter := middleware.NewRateLimiter(a.Redis)

	// Initialize Fiber app
	fiberApp := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Global middleware
	fiberApp.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
		log.Println("Debug logging enabled")
	}
	fiberApp.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	fiberApp.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Base URL - timestamp
	fiberApp.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		session := "disabled"
		if a.Direct != nil {
			session = a.Direct.State().String()
		}
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"suno":    a.Suno.IsConfigured(),
				"groq":    a.Groq.IsConfigured(),
				"r2":      a.Storage != nil,
				"session": session,
			},
			"tasks": fiber.Map{
				"active":        a.Tasks.ActiveCount(),
				"maxConcurrent": a.Tasks.MaxConcurrent(),
			},
		})
	})

	api := fiberApp.Group("/api")

	// Generation routes
	api.Post("/generate", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), generateHandler.Generate)
	api.Post("/generate/theme", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), generateHandler.FromTheme)
	api.Get("/credits", generateHandler.Credits)

	// Task routes
	tasks := api.Group("/tasks")
	tasks.Get("/", taskHandler.List)
	tasks.Post("/prune", taskHandler.Prune)
	tasks.Get("/:taskId", taskHandler.Get)
	tasks.Delete("/:taskId", taskHandler.Delete)
	tasks.Post("/:taskId/resume", taskHandler.Resume)

	// Song routes
	songs := api.Group("/songs")
	songs.Get("/", songHandler.List)
	songs.Get("/stats", songHandler.Stats)
	songs.Get("/:songId", songHandler.Get)
	songs.Delete("/:songId", songHandler.Delete)
	songs.Post("/:songId/refresh", songHandler.Refresh)
	songs.Get("/:songId/youtube", songHandler.Export)

	// Prompt routes
	prompts := api.Group("/prompts", rateLimiter.PromptLimit(cfg.RateLimit.PromptsPerMin))
	prompts.Post("/generate", promptHandler.Generate)
	prompts.Post("/batch", promptHandler.Batch)
	prompts.Post("/variations", promptHandler.Variations)
	prompts.Post("/themes", promptHandler.Themes)

	// Studio library routes
	libraryGroup := api.Group("/library")
	libraryGroup.Get("/feed", libraryHandler.Feed)
	libraryGroup.Get("/clips/:clipId", libraryHandler.Clip)

	// WebSocket routes
	fiberApp.Use("/ws", handler.RequireUpgrade)
	fiberApp.Get("/ws/tasks/:taskId", handler.TaskSocket(hub, a.Tasks))

	// Start Asynq worker server and scheduler
	srv := newWorkerServer(cfg)
	mux := asynq.NewServeMux()
	worker.NewGenerationWorker(a.Generation, cfg.Tasks.KeepDays).Register(mux)
	if err := srv.Start(mux); err != nil {
		log.Printf("Warning: asynq worker not started: %v", err)
	}
	scheduler := newScheduler(cfg)
	if err := scheduler.Start(); err != nil {
		log.Printf("Warning: asynq scheduler not started: %v", err)
	}

	// Pick up tasks left pending by a previous run
	if n, err := a.Generation.Recover(ctx); err != nil {
		log.Printf("Warning: task recovery incomplete (%d queued): %v", n, err)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		scheduler.Shutdown()
		srv.Shutdown()
		if err := fiberApp.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := fiberApp.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch {
	case strings.EqualFold(level, "debug"):
		return asynq.DebugLevel
	case strings.EqualFold(level, "warn"):
		return asynq.WarnLevel
	case strings.EqualFold(level, "error"):
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}

func newWorkerServer(cfg *config.Config) *asynq.Server {
	concurrency := cfg.Suno.MaxConcurrent
	if concurrency < 1 {
		concurrency = 1
	}
	return asynq.NewServer(
		app.RedisOpt(&cfg.Redis),
		asynq.Config{
			// one slot per admitted task plus one for maintenance
			Concurrency: concurrency + 1,
			Queues: map[string]int{
				service.QueueGeneration:  6,
				service.QueueMaintenance: 1,
			},
			LogLevel:        asynqLogLevel(cfg.Server.LogLevel),
			ShutdownTimeout: 10 * time.Second,
		},
	)
}

func newScheduler(cfg *config.Config) *asynq.Scheduler {
	scheduler := asynq.NewScheduler(app.RedisOpt(&cfg.Redis), &asynq.SchedulerOpts{
		LogLevel: asynqLogLevel(cfg.Server.LogLevel),
	})
	task, err := service.NewPruneTask(cfg.Tasks.KeepDays)
	if err != nil {
		log.Fatalf("Failed to build prune task: %v", err)
	}
	if _, err := scheduler.Register("@daily", task, asynq.Queue(service.QueueMaintenance)); err != nil {
		log.Fatalf("Failed to schedule prune task: %v", err)
	}
	return scheduler
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
