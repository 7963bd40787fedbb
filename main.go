package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"reachly/config"
	"reachly/engine"
	"reachly/middleware"
	"reachly/routes"
	"reachly/utils"
	"reachly/worker"
)

func main() {
	logger := log.New(os.Stdout, "REACHLY: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Sentry is optional; without a DSN the captures are no-ops
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry init failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	app.Use(middleware.CORS())

	// Wire the engine: resolver -> enrollments -> scheduler/review
	resolver := engine.NewResolver(config.DB, log.New(os.Stdout, "RESOLVER: ", log.LstdFlags))
	enrollments := engine.NewEnrollmentManager(config.DB, resolver,
		log.New(os.Stdout, "ENROLL: ", log.LstdFlags), config.AppConfig.EnrollChunkSize)

	var drafter engine.Drafter = engine.TemplateDrafter{}
	if config.AppConfig.OpenAIAPIKey != "" {
		drafter = &engine.FallbackDrafter{
			Primary:  engine.NewOpenAIDrafter(config.AppConfig.OpenAIAPIKey, config.AppConfig.OpenAIModel),
			Fallback: engine.TemplateDrafter{},
			Logger:   log.New(os.Stdout, "DRAFTER: ", log.LstdFlags),
		}
	}

	scheduler := engine.NewScheduler(config.DB, drafter,
		log.New(os.Stdout, "SCHEDULER: ", log.LstdFlags),
		time.Duration(config.AppConfig.ReviewWindowHours)*time.Hour)

	mailer := utils.NewMailer(config.AppConfig.SMTP)
	review := engine.NewReviewService(config.DB, enrollments, mailer,
		log.New(os.Stdout, "REVIEW: ", log.LstdFlags))

	// Start background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schedulerWorker := worker.NewSchedulerWorker(scheduler,
		time.Duration(config.AppConfig.SchedulerIntervalSec)*time.Second,
		log.New(os.Stdout, "SCHEDULER: ", log.LstdFlags))
	go schedulerWorker.Start(ctx)

	expiryWorker := worker.NewExpiryWorker(review,
		time.Duration(config.AppConfig.ExpirySweepSec)*time.Second,
		log.New(os.Stdout, "EXPIRY: ", log.LstdFlags))
	go expiryWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, config.DB, routes.Deps{
		Resolver:    resolver,
		Enrollments: enrollments,
		Review:      review,
	})

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
