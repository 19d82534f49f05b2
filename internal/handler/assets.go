package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/SergeiKhy/shortlinks/internal/service"
	"github.com/gin-gonic/gin"
)

// Страницы админки без расширения
var pageAliases = map[string]string{
	"admin": "admin.html",
	"login": "login.html",
}

// HealthCheck godoc
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/health [get]
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "shortlinks",
	})
}

// AddAssetRoutes раздаёт файлы админки из dir. Пустой dir - статика не раздаётся,
// запросы к этим путям получат 404 от обработчика редиректа.
func AddAssetRoutes(router *gin.Engine, dir string) {
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/admin.html")
	})

	if dir == "" {
		return
	}
	// Файлы - зарезервированные пути с расширением
	for _, name := range service.ReservedPaths() {
		if strings.Contains(name, ".") {
			router.StaticFile("/"+name, filepath.Join(dir, name))
		}
	}
	for alias, file := range pageAliases {
		router.StaticFile("/"+alias, filepath.Join(dir, file))
	}
}
