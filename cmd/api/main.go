package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SergeiKhy/shortlinks/internal/config"
	"github.com/SergeiKhy/shortlinks/internal/handler"
	"github.com/SergeiKhy/shortlinks/internal/migrations"
	"github.com/SergeiKhy/shortlinks/internal/repository"
	"github.com/SergeiKhy/shortlinks/internal/service"
	"github.com/SergeiKhy/shortlinks/internal/telegram"
	"go.uber.org/zap"
)

func main() {
	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	location, err := cfg.App.Location()
	if err != nil {
		logger.Fatal("Invalid timezone", zap.Error(err))
	}

	// Схема базы
	migrator, err := migrations.New(cfg.DB.DSN(), logger)
	if err != nil {
		logger.Fatal("Failed to init migrations", zap.Error(err))
	}
	if err := migrator.Up(); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	if err := migrator.Close(); err != nil {
		logger.Warn("Failed to close migrator", zap.Error(err))
	}

	// Подключение к БД (postgres)
	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Подключение к Redis
	redis, err := repository.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()
	logger.Info("Connected to Redis")

	// Старое хранилище нужно только для переноса, сервис работает и без него
	var importer service.LegacyImporter
	legacyRedis, err := repository.NewRedisClient(cfg.Legacy.Redis)
	if err != nil {
		logger.Warn("Legacy store unavailable, migration endpoint disabled", zap.Error(err))
	} else {
		defer legacyRedis.Close()
	}

	// Инициализация репозиториев
	mappingRepo := repository.NewMappingRepository(db)
	cacheRepo := repository.NewCacheRepository(redis)
	visitRepo := repository.NewVisitRepository(redis)

	// Инициализация сервисов
	mappingService := service.NewMappingService(mappingRepo, cacheRepo, cfg.Cache.TTL, logger)
	classifier := service.NewExpiryClassifier(mappingRepo, location)
	if legacyRedis != nil {
		importer = service.NewLegacyImporter(
			repository.NewLegacyRepository(legacyRedis, cfg.Legacy.Pattern),
			mappingService,
			logger,
		)
	}

	// Учёт переходов (Worker Pool)
	visitRecorder := service.NewVisitRecorder(visitRepo, logger)
	visitRecorder.Start()
	defer visitRecorder.Stop()

	// Очистка истёкших ссылок по расписанию
	reclaimer := service.NewReclaimer(mappingRepo, cacheRepo, service.ReclaimerConfig{
		Schedule:  cfg.Cleanup.Schedule,
		BatchSize: cfg.Cleanup.BatchSize,
	}, logger)
	if err := reclaimer.Start(); err != nil {
		logger.Fatal("Failed to schedule cleanup", zap.Error(err))
	}
	defer reclaimer.Stop()

	// Telegram-бот включается токеном
	var bot service.BotService
	if cfg.Telegram.BotToken != "" {
		bot = service.NewBotService(mappingService, telegram.NewClient(cfg.Telegram), service.BotConfig{
			AdminChatID: cfg.Telegram.AdminChatID,
			Origin:      cfg.App.Origin,
		}, logger)
		logger.Info("Telegram bot enabled")
	}

	if len(cfg.Auth.APIKeys) > 0 {
		logger.Info("API key authentication enabled", zap.Int("keys_count", len(cfg.Auth.APIKeys)))
	} else {
		logger.Warn("API_KEYS is empty, admin API is not protected")
	}

	// Настройка роутера
	router := handler.NewRouter(handler.Services{
		Mappings:   mappingService,
		Classifier: classifier,
		Visits:     visitRecorder,
		Importer:   importer,
		Reclaimer:  reclaimer,
		Bot:        bot,
	}, handler.RouterConfig{
		APIKeys:       cfg.Auth.APIKeys,
		WebhookToken:  cfg.Telegram.BotToken,
		WebhookSecret: cfg.Telegram.WebhookSecret,
		AssetsDir:     cfg.App.AssetsDir,
	}, logger)

	// Запуск сервера
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // перенос из старого хранилища идёт синхронно
		IdleTimeout:  60 * time.Second,
	}

	// Запуск в горутине
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
