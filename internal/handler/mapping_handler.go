package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SergeiKhy/shortlinks/internal/models"
	"github.com/SergeiKhy/shortlinks/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type MappingHandler struct {
	mappings   service.MappingService
	classifier service.ExpiryClassifier
	visits     service.VisitRecorder
	logger     *zap.Logger
	now        func() time.Time
}

func NewMappingHandler(
	mappings service.MappingService,
	classifier service.ExpiryClassifier,
	visits service.VisitRecorder,
	logger *zap.Logger,
) *MappingHandler {
	return &MappingHandler{
		mappings:   mappings,
		classifier: classifier,
		visits:     visits,
		logger:     logger,
		now:        time.Now,
	}
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type TotalCountResponse struct {
	Total int64 `json:"total"`
}

// Redirect godoc
// @Summary Redirect to target URL
// @Tags mappings
// @Param path path string true "Short path"
// @Success 302
// @Failure 404 {object} ErrorResponse
// @Router /{path} [get]
func (h *MappingHandler) Redirect(c *gin.Context) {
	path := c.Param("path")

	target, err := h.mappings.GetActiveTarget(c.Request.Context(), path, h.now())
	if err != nil {
		if !errors.Is(err, service.ErrNotFound) {
			h.logger.Error("Failed to resolve mapping", zap.String("path", path), zap.Error(err))
		}
		h.respondError(c, err)
		return
	}

	// Учёт перехода асинхронный и не влияет на ответ
	if h.visits != nil {
		if err := h.visits.Record(c.Request.Context(), &models.VisitEvent{Path: path}); err != nil {
			h.logger.Debug("Failed to record visit (non-blocking)", zap.Error(err))
		}
	}

	c.Redirect(http.StatusFound, target)
}

// TotalCount общее число переходов по всем ссылкам
func (h *MappingHandler) TotalCount(c *gin.Context) {
	total, err := h.visits.Total(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, TotalCountResponse{Total: total})
}

// List godoc
// @Summary List mappings
// @Tags mappings
// @Produce json
// @Param page query int false "Page" default(1)
// @Param pageSize query int false "Page size" default(10)
// @Success 200 {object} models.MappingPage
// @Router /api/v1/mappings [get]
func (h *MappingHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "10"))

	result, err := h.mappings.List(c.Request.Context(), page, pageSize)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Create godoc
// @Summary Create a mapping
// @Tags mappings
// @Accept json
// @Produce json
// @Param request body models.MappingInput true "Mapping"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/mappings [post]
func (h *MappingHandler) Create(c *gin.Context) {
	var input models.MappingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.respondBindError(c, err)
		return
	}

	if _, err := h.mappings.Create(c.Request.Context(), &input); err != nil {
		h.logger.Warn("Failed to create mapping", zap.String("path", input.Path), zap.Error(err))
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// Update godoc
// @Summary Update or rename a mapping
// @Tags mappings
// @Accept json
// @Param path path string true "Current path"
// @Param request body models.MappingInput true "New values; empty path keeps the current one"
// @Success 200 {object} SuccessResponse
// @Router /api/v1/mappings/{path} [put]
func (h *MappingHandler) Update(c *gin.Context) {
	oldPath := c.Param("path")

	var input models.MappingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.respondBindError(c, err)
		return
	}
	if input.Path == "" {
		input.Path = oldPath
	}

	if _, err := h.mappings.Update(c.Request.Context(), oldPath, &input); err != nil {
		h.logger.Warn("Failed to update mapping",
			zap.String("old_path", oldPath),
			zap.String("path", input.Path),
			zap.Error(err),
		)
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// Delete godoc
// @Summary Delete a mapping
// @Tags mappings
// @Param path path string true "Path"
// @Success 200 {object} SuccessResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/mappings/{path} [delete]
func (h *MappingHandler) Delete(c *gin.Context) {
	path := c.Param("path")

	if err := h.mappings.Delete(c.Request.Context(), path); err != nil {
		h.logger.Warn("Failed to delete mapping", zap.String("path", path), zap.Error(err))
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// Expiring истёкшие и скоро истекающие ссылки для панели администратора
func (h *MappingHandler) Expiring(c *gin.Context) {
	report, err := h.classifier.Classify(c.Request.Context(), h.now())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Visits число переходов по одной ссылке
func (h *MappingHandler) Visits(c *gin.Context) {
	stats, err := h.visits.Count(c.Request.Context(), c.Param("path"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *MappingHandler) respondBindError(c *gin.Context, err error) {
	h.logger.Warn("Invalid request body", zap.Error(err))
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "invalid_request",
		Message: err.Error(),
	})
}

// respondError переводит категорию ошибки сервиса в HTTP-статус.
// Защищённый путь проверяется первым: он комбинируется с другими категориями.
func (h *MappingHandler) respondError(c *gin.Context, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Внутренняя ошибка сервера"
	}
	c.JSON(status, ErrorResponse{Error: code, Message: message})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrProtectedPath):
		return http.StatusForbidden, "protected_path"
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	}
	return http.StatusInternalServerError, "internal_error"
}
