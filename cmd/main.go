package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/bracket-progression/brackets"
	"github.com/Dosada05/bracket-progression/cache"
	"github.com/Dosada05/bracket-progression/config"
	"github.com/Dosada05/bracket-progression/db"
	"github.com/Dosada05/bracket-progression/events"
	"github.com/Dosada05/bracket-progression/handlers"
	"github.com/Dosada05/bracket-progression/middleware"
	"github.com/Dosada05/bracket-progression/repositories"
	api "github.com/Dosada05/bracket-progression/routes"
	"github.com/Dosada05/bracket-progression/services"
	"github.com/Dosada05/bracket-progression/storage"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.String("storage_driver", cfg.StorageDriver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("application failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application exited")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := services.NewMetrics(registry)

	// Шина изменений матчей
	bus := events.NewBus(logger)
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Error("failed to close change bus", slog.Any("error", err))
		}
	}()

	// Хранилище
	var (
		matchRepo      repositories.MatchRepository
		tournamentRepo repositories.TournamentRepository
		playerRepo     repositories.PlayerRepository
		pinger         handlers.Pinger
	)
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		store := repositories.NewMemoryStore(repositories.WithNotifier(bus, logger))
		matchRepo, tournamentRepo, playerRepo = store, store.Tournaments(), store
		logger.Warn("using in-memory storage, data is lost on restart")
	default:
		dbConn, err := openDatabase(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := dbConn.Close(); err != nil {
				logger.Error("failed to close database connection", slog.Any("error", err))
			} else {
				logger.Info("database connection closed")
			}
		}()
		matchRepo = repositories.NewPostgresMatchRepository(dbConn)
		tournamentRepo = repositories.NewPostgresTournamentRepository(dbConn)
		playerRepo = repositories.NewPostgresPlayerRepository(dbConn)
		pinger = dbConn

		listener := events.NewPostgresListener(cfg.DatabaseURL, bus, logger)
		go func() {
			if err := listener.Run(ctx); err != nil {
				logger.Error("postgres listener stopped", slog.Any("error", err))
			}
		}()
	}
	logger.Info("repositories initialized")

	// Cooldown авто-исправлений: Redis, если задан, иначе память процесса
	var cooldowns services.CooldownStore
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		cooldowns = cache.NewRedisCooldown(client, "")
		logger.Info("redis cooldown store initialized")
	} else {
		cooldowns = cache.NewMemoryCooldown()
	}

	// Архив завершённых сеток (Cloudflare R2), необязательно
	var archiver services.Archiver
	r2cfg := storage.R2Config{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	}
	if r2cfg.Enabled() {
		uploader, err := storage.NewR2Uploader(ctx, r2cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize Cloudflare R2 uploader: %w", err)
		}
		archiver = storage.NewBracketArchiver(uploader)
		logger.Info("Cloudflare R2 bracket archiver initialized")
	}

	// Инициализация WebSocket Hub
	wsHub := brackets.NewHub(logger)
	go wsHub.Run(ctx)
	logger.Info("WebSocket Hub started")

	// Инициализация сервисов
	advancementService := services.NewAdvancementService(matchRepo, tournamentRepo, cfg.AdvanceTimeout, logger, metrics)
	scoreService := services.NewScoreService(matchRepo, tournamentRepo, advancementService, wsHub, archiver, logger, metrics)
	tournamentService := services.NewTournamentService(tournamentRepo, matchRepo, playerRepo, logger)
	progressionService := services.NewProgressionService(tournamentRepo, matchRepo)
	autoFix := services.NewAutoFixScheduler(advancementService, cooldowns, cfg.AutoFixCooldown, wsHub, logger, metrics)
	defer func() {
		if err := autoFix.Close(); err != nil {
			logger.Error("failed to close cooldown store", slog.Any("error", err))
		}
	}()
	logger.Info("services initialized")

	watcher := services.NewProgressionWatcher(bus, progressionService, autoFix, wsHub, cfg.AdvanceTimeout*2, logger)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Error("progression watcher stopped", slog.Any("error", err))
		}
	}()

	sweeper := services.NewSweeper(tournamentRepo, progressionService, autoFix, cfg.SweepInterval, logger)
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := sweeper.Shutdown(); err != nil {
			logger.Error("failed to stop sweeper", slog.Any("error", err))
		}
	}()

	// Инициализация обработчиков HTTP
	matchHandler := handlers.NewMatchHandler(scoreService, advancementService, tournamentService)
	tournamentHandler := handlers.NewTournamentHandler(tournamentService, progressionService, advancementService, autoFix)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, tournamentService, cfg.CORSAllowedOrigins, logger)
	healthHandler := handlers.NewHealthHandler(pinger)
	docsHandler := handlers.NewDocsHandler("/docs/openapi.json")

	router := chi.NewRouter()
	api.SetupRoutes(router, api.Options{
		JWTSecret:      []byte(cfg.JWTSecretKey),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		ScoreLimiter:   middleware.NewRateLimiter(cfg.ScoreRateLimit, cfg.ScoreRateBurst),
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	}, matchHandler, tournamentHandler, webSocketHandler, healthHandler, docsHandler)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("server stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
	if err := server.Shutdown(shutdownCtx); err != nil {
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("failed to force close server", slog.Any("error", closeErr))
		}
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server shutdown complete")
	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	pool := db.DefaultPool()
	pool.MaxOpenConns = cfg.DBMaxOpenConns
	dbConn, err := db.Connect(ctx, cfg.DatabaseURL, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("database connection established")

	if err := db.Migrate(ctx, dbConn); err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	logger.Info("database migrations applied")
	return dbConn, nil
}
