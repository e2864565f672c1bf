package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taxotree/internal/config"
	"taxotree/internal/database"
	"taxotree/internal/handlers"
	"taxotree/internal/jobs"
	"taxotree/internal/lifecycle"
	"taxotree/internal/logging"
	"taxotree/internal/middleware"
	"taxotree/internal/services"
	"taxotree/internal/store"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting taxotree server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	// Load configuration
	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s)", cfg.Port)

	// Connect to MongoDB
	mongoDB, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	initCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := mongoDB.Initialize(initCtx); err != nil {
		cancel()
		log.Fatalf("❌ Failed to initialize MongoDB indexes: %v", err)
	}
	cancel()
	defer mongoDB.Close(context.Background())

	// Connect to Redis (optional)
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Redis unavailable, caching and locks disabled: %v", err)
			redisService = nil
		}
	} else {
		log.Println("⚠️  REDIS_URL not set, caching and locks disabled")
	}

	// Metrics
	metrics := services.InitMetrics()

	// Per-use-case overrides
	var useCases *config.UseCasesFile
	if cfg.UseCasesFile != "" {
		useCases, err = config.LoadUseCases(cfg.UseCasesFile)
		if err != nil {
			log.Fatalf("❌ Failed to load use cases: %v", err)
		}
		log.Printf("✅ Loaded %d use case configs", len(useCases.UseCases))
	}

	classifyPrompt := ""
	groupingPrompt := ""
	if uc := useCases.FindUseCase(cfg.UseCaseID); uc != nil {
		classifyPrompt = uc.ClassifyPrompt
		groupingPrompt = uc.GroupingPrompt
	}

	// Services
	classifier := services.NewClassifierService(services.ClassifierConfig{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Prompt:  classifyPrompt,
	})
	grouping := services.NewGroupingService(classifier, groupingPrompt)
	transcripts := services.NewTranscriptService()

	versionStore := store.NewVersionStore(mongoDB)
	classificationStore := store.NewClassificationStore(mongoDB)

	lifecycleService := lifecycle.NewService(versionStore, lifecycle.Options{
		AutoActivateAll: cfg.AutoActivateAll,
	})
	hierarchyService := services.NewHierarchyService(lifecycleService, classificationStore, grouping, redisService, metrics)
	classificationService := services.NewClassificationService(classifier, transcripts, classificationStore, metrics)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "taxotree v1.0",
		ReadTimeout:  120 * time.Second, // classification holds the request during the model round trip
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    10 * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("taxotree")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	app.Use(cors.New(cors.Config{
		AllowOrigins: getAllowedOrigins(),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-API-Key",
	}))

	rateLimits := middleware.LoadRateLimitConfig()
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimits))
	log.Printf("🛡️  [RATE-LIMIT] Global=%d/min, Classify=%d/min, Propose=%d/min",
		rateLimits.GlobalAPIMax, rateLimits.ClassifyMax, rateLimits.ProposeMax)

	// Handlers
	healthHandler := handlers.NewHealthHandler(mongoDB, redisService)
	classifyHandler := handlers.NewClassifyHandler(classificationService)
	hierarchyHandler := handlers.NewHierarchyHandler(hierarchyService)

	// Routes
	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api", middleware.APIKeyMiddleware(cfg.APIKey))
	classifyLimiter := middleware.ClassifyRateLimiter(rateLimits)
	api.Post("/classify", classifyLimiter, classifyHandler.Classify)
	api.Post("/classify/batch", classifyLimiter, classifyHandler.ClassifyBatch)
	api.Post("/hierarchy/propose", middleware.ProposeRateLimiter(rateLimits), hierarchyHandler.Propose)
	api.Post("/hierarchy/activate", hierarchyHandler.Activate)
	api.Get("/hierarchy/active", hierarchyHandler.GetActive)
	api.Get("/hierarchy/versions", hierarchyHandler.ListVersions)
	api.Get("/hierarchy/versions/:id", hierarchyHandler.GetVersion)

	// Background jobs
	scheduler, err := jobs.NewScheduler(redisService)
	if err != nil {
		log.Fatalf("❌ Failed to create scheduler: %v", err)
	}
	reconciler := jobs.NewMirrorReconcilerJob(versionStore, metrics)
	interval := time.Duration(cfg.ReconcileIntervalMinutes) * time.Minute
	if err := scheduler.RegisterReconciler(reconciler, interval); err != nil {
		log.Printf("⚠️  Failed to register reconciler: %v", err)
	}
	scheduler.Start()

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if err := scheduler.Stop(); err != nil {
			log.Printf("⚠️ Error stopping scheduler: %v", err)
		}

		if redisService != nil {
			if err := redisService.Close(); err != nil {
				log.Printf("⚠️ Error closing Redis: %v", err)
			}
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

func getAllowedOrigins() string {
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		return origins
	}
	return "http://localhost:5173,http://localhost:3000"
}
