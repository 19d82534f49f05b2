package handler

import (
	"github.com/SergeiKhy/shortlinks/internal/middleware"
	"github.com/SergeiKhy/shortlinks/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Services зависимости роутера. Необязательные компоненты могут быть nil,
// тогда соответствующие эндпоинты не регистрируются.
type Services struct {
	Mappings   service.MappingService
	Classifier service.ExpiryClassifier
	Visits     service.VisitRecorder
	Importer   service.LegacyImporter
	Reclaimer  service.Reclaimer
	Bot        service.BotService
}

// RouterConfig настройки роутера. Пустой APIKeys отключает аутентификацию админки,
// WebhookSecret - ожидаемый заголовок X-Telegram-Bot-Api-Secret-Token.
type RouterConfig struct {
	APIKeys       map[string]string
	WebhookToken  string
	WebhookSecret string
	AssetsDir     string
}

func NewRouter(svc Services, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	mappingHandler := NewMappingHandler(svc.Mappings, svc.Classifier, svc.Visits, logger)

	v1 := router.Group("/api/v1")
	v1.GET("/health", HealthCheck)

	// Webhook защищён токеном в пути, а не API ключом
	if svc.Bot != nil {
		botHandler := NewBotHandler(svc.Bot, cfg.WebhookToken, cfg.WebhookSecret, logger)
		v1.POST("/telegram/webhook/:token", botHandler.Webhook)
		v1.GET("/telegram/webhook/:token", botHandler.Verify)
	}

	admin := v1.Group("")
	if len(cfg.APIKeys) > 0 {
		keys := middleware.NewAPIKey(middleware.APIKeyConfig{ValidKeys: cfg.APIKeys})
		authHandler := NewAuthHandler(keys, logger)
		v1.POST("/login", authHandler.Login)
		v1.POST("/logout", authHandler.Logout)

		admin.Use(keys.Middleware())
	}
	{
		admin.GET("/mappings", mappingHandler.List)
		admin.POST("/mappings", mappingHandler.Create)
		admin.GET("/mappings/expiring", mappingHandler.Expiring)
		admin.PUT("/mappings/:path", mappingHandler.Update)
		admin.DELETE("/mappings/:path", mappingHandler.Delete)

		if svc.Visits != nil {
			admin.GET("/mappings/:path/visits", mappingHandler.Visits)
		}

		adminHandler := NewAdminHandler(svc.Importer, svc.Reclaimer, logger)
		if svc.Importer != nil {
			admin.POST("/migrate", adminHandler.Migrate)
		}
		if svc.Reclaimer != nil {
			admin.POST("/cleanup", adminHandler.Cleanup)
		}
	}

	if svc.Visits != nil {
		router.GET("/__total_count", mappingHandler.TotalCount)
	}

	// Статика админки и "/" -> /admin.html
	AddAssetRoutes(router, cfg.AssetsDir)

	// Редирект (корневой путь) - без API key проверки
	router.GET("/:path", mappingHandler.Redirect)

	return router
}
