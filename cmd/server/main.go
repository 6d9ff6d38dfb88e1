package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/arturoeanton/go-profile-hub/internal/adapter/arr"
	"github.com/arturoeanton/go-profile-hub/internal/adapter/guide"
	"github.com/arturoeanton/go-profile-hub/internal/adapter/secrets"
	"github.com/arturoeanton/go-profile-hub/internal/adapter/store"
	"github.com/arturoeanton/go-profile-hub/internal/handler"
	"github.com/arturoeanton/go-profile-hub/internal/middleware"
	"github.com/arturoeanton/go-profile-hub/internal/port"
	"github.com/arturoeanton/go-profile-hub/internal/service"
	"github.com/arturoeanton/go-profile-hub/pkg/config"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"

	_ "github.com/lib/pq"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("🚀 Starting Profile Hub",
		"port", cfg.Port,
		"guide_repo", cfg.GuideRepo.Owner+"/"+cfg.GuideRepo.Name,
		"sync_enabled", cfg.SyncEnabled,
		"sync_interval_hours", cfg.SyncIntervalHours,
	)

	// ── Database ─────────────────────────────────────────────────────────
	pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()

	if err := pgStore.EnsureSchema(context.Background()); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	// ── Adapters ─────────────────────────────────────────────────────────
	var credentials port.CredentialResolver
	if cfg.EncryptionKey == "" {
		slog.Warn("ENCRYPTION_KEY not set; instance credentials cannot be stored or used")
		credentials = secrets.Disabled{}
	} else {
		box, err := secrets.NewBox(cfg.EncryptionKey)
		if err != nil {
			slog.Error("invalid encryption key", "error", err)
			os.Exit(1)
		}
		credentials = box
	}

	httpTimeout := time.Duration(cfg.HTTPTimeoutSecs) * time.Second

	var guideOpts []guide.Option
	if cfg.GitHubToken != "" {
		guideOpts = append(guideOpts, guide.WithToken(cfg.GitHubToken))
	}
	guideSource := guide.NewGitHubSource(httpTimeout, guideOpts...)
	clientFactory := arr.NewFactory(httpTimeout)

	// ── Services ─────────────────────────────────────────────────────────
	logger := slog.Default()

	guideService := service.NewGuideService(guideSource, pgStore, pgStore, logger)
	reconciler := service.NewReconciler(pgStore, pgStore, logger)
	deployer := service.NewDeployer(pgStore, pgStore, credentials, clientFactory, logger, cfg.DeployConcurrency)
	scheduler := service.NewScheduler(
		cfg.ResolveGuideRepo,
		guideService,
		reconciler,
		deployer,
		pgStore,
		logger,
		cfg.SyncEnabled,
		cfg.SyncIntervalHours,
	)

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))

	// Audit middleware (logs all requests)
	app.Use(middleware.AuditMiddleware(pgStore))

	// ── Public Routes ────────────────────────────────────────────────────
	authHandler := handler.NewAuthHandler(cfg, pgStore)
	authHandler.Register(app)

	// Health check
	app.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"app":     cfg.AppName,
			"version": "1.0.0",
		})
	})

	// ── Protected Routes ─────────────────────────────────────────────────
	jwtMiddleware := middleware.JWTMiddleware(middleware.JWTConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		ExpiresIn: time.Duration(cfg.JWTExpiration) * time.Hour,
	})

	api := app.Group("/api/v1", jwtMiddleware)

	syncHandler := handler.NewSyncHandler(scheduler, pgStore)
	syncHandler.Register(api)

	instanceHandler := handler.NewInstanceHandler(pgStore, credentials)
	instanceHandler.Register(api)

	trackedHandler := handler.NewTrackedHandler(pgStore)
	trackedHandler.Register(api)

	auditHandler := handler.NewAuditHandler(pgStore)
	auditHandler.Register(api)

	// ── Background Sync ──────────────────────────────────────────────────
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
