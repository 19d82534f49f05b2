package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/SergeiKhy/shortlinks/internal/models"
	"github.com/SergeiKhy/shortlinks/internal/repository"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Константы сервиса
const (
	defaultCacheTTL = 24 * time.Hour
	defaultPage     = 1
	defaultPageSize = 10
	maxPageSize     = 100
)

// Путь - один сегмент URL без пробелов и служебных символов
var pathPattern = regexp.MustCompile(`^[^/\s?#%]{1,128}$`)

// Форматы срока действия, включая встречающиеся в старом хранилище.
// Форматы без зоны трактуются как UTC.
var expiryLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	time.RFC1123,
	time.RFC1123Z,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"Jan 2, 2006",
}

// MappingService хранилище связей путь -> URL со всеми инвариантами
type MappingService interface {
	Create(ctx context.Context, input *models.MappingInput) (*models.Mapping, error)
	Update(ctx context.Context, oldPath string, input *models.MappingInput) (*models.Mapping, error)
	Delete(ctx context.Context, path string) error
	GetActiveTarget(ctx context.Context, path string, now time.Time) (string, error)
	List(ctx context.Context, page, pageSize int) (*models.MappingPage, error)
}

type mappingService struct {
	mappingRepo repository.MappingRepository
	cacheRepo   repository.CacheRepository
	cacheTTL    time.Duration
	validate    *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewMappingService создаёт сервис ссылок; cacheTTL <= 0 означает TTL по умолчанию
func NewMappingService(
	mappingRepo repository.MappingRepository,
	cacheRepo repository.CacheRepository,
	cacheTTL time.Duration,
	logger *zap.Logger,
) MappingService {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &mappingService{
		mappingRepo: mappingRepo,
		cacheRepo:   cacheRepo,
		cacheTTL:    cacheTTL,
		validate:    validator.New(),
		logger:      logger,
		now:         time.Now,
	}
}

// Create создаёт новую ссылку
func (s *mappingService) Create(ctx context.Context, input *models.MappingInput) (*models.Mapping, error) {
	if IsReservedPath(input.Path) {
		return nil, fmt.Errorf("%w: %w: %q", ErrValidation, ErrProtectedPath, input.Path)
	}
	if err := validatePath(input.Path); err != nil {
		return nil, err
	}

	mapping, err := s.buildMapping(input.Path, input, input.QRCodeData)
	if err != nil {
		return nil, err
	}
	mapping.CreatedAt = s.now().UTC()

	if err := s.mappingRepo.Create(ctx, mapping); err != nil {
		return nil, storeError(err, mapping.Path)
	}

	s.invalidate(ctx, mapping.Path)
	return mapping, nil
}

// Update изменяет ссылку oldPath, в том числе переименовывает её в input.Path.
// Если ссылка WeChat и QR-данные не переданы, берутся сохранённые данные oldPath.
func (s *mappingService) Update(ctx context.Context, oldPath string, input *models.MappingInput) (*models.Mapping, error) {
	if oldPath == "" {
		return nil, fmt.Errorf("%w: не указан исходный путь", ErrValidation)
	}
	if IsReservedPath(input.Path) {
		return nil, fmt.Errorf("%w: %w: %q", ErrConflict, ErrProtectedPath, input.Path)
	}
	if err := validatePath(input.Path); err != nil {
		return nil, err
	}

	qrCodeData := input.QRCodeData
	if input.IsWechat && isBlank(qrCodeData) {
		// QR-код дорого генерировать заново, поэтому сохраняем прежний
		previous, err := s.mappingRepo.GetByPath(ctx, oldPath)
		switch {
		case err == nil:
			qrCodeData = previous.QRCodeData
		case errors.Is(err, repository.ErrMappingNotFound):
			return nil, fmt.Errorf("%w: %q", ErrNotFound, oldPath)
		default:
			return nil, fmt.Errorf("failed to load previous mapping: %w", err)
		}
	}

	mapping, err := s.buildMapping(input.Path, input, qrCodeData)
	if err != nil {
		return nil, err
	}

	if err := s.mappingRepo.Update(ctx, oldPath, mapping); err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, oldPath)
		}
		return nil, storeError(err, mapping.Path)
	}

	s.invalidate(ctx, oldPath, mapping.Path)
	return mapping, nil
}

// Delete удаляет ссылку. Удаление несуществующего пути успешно.
func (s *mappingService) Delete(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("%w: не указан путь", ErrValidation)
	}
	if IsReservedPath(path) {
		return fmt.Errorf("%w: %q нельзя удалить", ErrProtectedPath, path)
	}

	if err := s.mappingRepo.Delete(ctx, path); err != nil {
		return err
	}

	s.invalidate(ctx, path)
	return nil
}

// GetActiveTarget возвращает цель редиректа, если ссылка включена и не истекла к моменту now
func (s *mappingService) GetActiveTarget(ctx context.Context, path string, now time.Time) (string, error) {
	if path == "" || IsReservedPath(path) {
		return "", ErrNotFound
	}

	// Проверка кэша; срок действия перепроверяется, кэш не источник истины
	if cached, err := s.cacheRepo.Get(ctx, path); err == nil {
		if cached.Expiry == nil || cached.Expiry.After(now) {
			return cached.Target, nil
		}
		return "", ErrNotFound
	}

	// Поколение читается до базы: инвалидация между чтением и записью отменит запись в кэш
	generation, genErr := s.cacheRepo.Generation(ctx, path)
	if genErr != nil {
		s.logger.Warn("Не удалось прочитать поколение кэша", zap.String("path", path), zap.Error(genErr))
	}

	target, err := s.mappingRepo.GetActiveTarget(ctx, path, now)
	if err != nil {
		if errors.Is(err, repository.ErrMappingNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}

	ttl := s.cacheTTL
	if target.Expiry != nil {
		if untilExpiry := target.Expiry.Sub(now); untilExpiry < ttl {
			ttl = untilExpiry
		}
	}
	if genErr == nil && ttl >= time.Millisecond {
		switch err := s.cacheRepo.Set(ctx, path, target, ttl, generation); {
		case errors.Is(err, repository.ErrStaleGeneration):
			s.logger.Debug("Ссылка изменилась во время чтения, кэш не обновлён", zap.String("path", path))
		case err != nil:
			s.logger.Warn("Не удалось закэшировать цель", zap.String("path", path), zap.Error(err))
		}
	}

	return target.Target, nil
}

// List возвращает страницу ссылок без зарезервированных путей, новые первыми
func (s *mappingService) List(ctx context.Context, page, pageSize int) (*models.MappingPage, error) {
	if page < 1 {
		page = defaultPage
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	// Смещение (page-1)*pageSize не должно переполнять int
	if maxPage := math.MaxInt/pageSize + 1; page > maxPage {
		page = maxPage
	}

	mappings, total, err := s.mappingRepo.List(ctx, (page-1)*pageSize, pageSize, ReservedPaths())
	if err != nil {
		return nil, err
	}

	return &models.MappingPage{
		Mappings:   mappings,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}, nil
}

// buildMapping проверяет поля и собирает запись без CreatedAt
func (s *mappingService) buildMapping(path string, input *models.MappingInput, qrCodeData *string) (*models.Mapping, error) {
	target := strings.TrimSpace(input.Target)
	if target == "" {
		return nil, fmt.Errorf("%w: не указан целевой URL", ErrValidation)
	}
	if err := s.validate.Var(target, "url"); err != nil {
		return nil, fmt.Errorf("%w: некорректный целевой URL %q", ErrValidation, target)
	}

	expiry, err := parseExpiry(input.Expiry)
	if err != nil {
		return nil, err
	}

	if input.IsWechat && isBlank(qrCodeData) {
		return nil, fmt.Errorf("%w: для WeChat-ссылки нужны исходные данные QR-кода", ErrValidation)
	}

	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}

	return &models.Mapping{
		Path:       path,
		Target:     target,
		Name:       nilIfBlank(input.Name),
		Expiry:     expiry,
		Enabled:    enabled,
		IsWechat:   input.IsWechat,
		QRCodeData: nilIfBlank(qrCodeData),
	}, nil
}

// invalidate сбрасывает кэш; ошибка кэша не должна ломать запись
func (s *mappingService) invalidate(ctx context.Context, paths ...string) {
	if err := s.cacheRepo.Delete(ctx, paths...); err != nil {
		s.logger.Warn("Не удалось сбросить кэш", zap.Strings("paths", paths), zap.Error(err))
	}
}

// validatePath проверяет формат пути
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: не указан путь", ErrValidation)
	}
	if !pathPattern.MatchString(path) {
		return fmt.Errorf("%w: недопустимый путь %q", ErrValidation, path)
	}
	return nil
}

// parseExpiry разбирает срок действия; пустое значение - бессрочная ссылка
func parseExpiry(raw *string) (*time.Time, error) {
	if isBlank(raw) {
		return nil, nil
	}

	value := strings.TrimSpace(*raw)
	for _, layout := range expiryLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}

	return nil, fmt.Errorf("%w: некорректный срок действия %q", ErrValidation, value)
}

// storeError переводит ошибки хранилища в категории сервиса
func storeError(err error, path string) error {
	switch {
	case errors.Is(err, repository.ErrPathExists):
		return fmt.Errorf("%w: путь %q уже занят", ErrConflict, path)
	case errors.Is(err, repository.ErrMissingQRCode):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return err
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

func nilIfBlank(s *string) *string {
	if isBlank(s) {
		return nil
	}
	return s
}
