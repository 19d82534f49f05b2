package handler

import (
	"net/http"

	"github.com/SergeiKhy/shortlinks/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler операции обслуживания, запускаемые оператором
type AdminHandler struct {
	importer  service.LegacyImporter
	reclaimer service.Reclaimer
	logger    *zap.Logger
}

func NewAdminHandler(importer service.LegacyImporter, reclaimer service.Reclaimer, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		importer:  importer,
		reclaimer: reclaimer,
		logger:    logger,
	}
}

type MigrateResponse struct {
	Success  bool `json:"success"`
	Scanned  int  `json:"scanned"`
	Imported int  `json:"imported"`
	Skipped  int  `json:"skipped"`
	Failed   int  `json:"failed"`
}

type CleanupResponse struct {
	Success bool  `json:"success"`
	Deleted int64 `json:"deleted"`
}

// Migrate godoc
// @Summary Import mappings from the legacy key-value store
// @Tags admin
// @Produce json
// @Success 200 {object} MigrateResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/migrate [post]
func (h *AdminHandler) Migrate(c *gin.Context) {
	report, err := h.importer.Import(c.Request.Context())
	if err != nil {
		h.logger.Error("Legacy import aborted", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "migration_failed",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, MigrateResponse{
		Success:  true,
		Scanned:  report.Scanned,
		Imported: report.Imported,
		Skipped:  report.Skipped,
		Failed:   report.Failed,
	})
}

// Cleanup godoc
// @Summary Delete expired mappings now
// @Tags admin
// @Produce json
// @Success 200 {object} CleanupResponse
// @Router /api/v1/cleanup [post]
func (h *AdminHandler) Cleanup(c *gin.Context) {
	deleted, err := h.reclaimer.Run(c.Request.Context())
	if err != nil {
		h.logger.Error("Cleanup aborted", zap.Int64("deleted", deleted), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "cleanup_failed",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, CleanupResponse{Success: true, Deleted: deleted})
}
