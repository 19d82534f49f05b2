package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/SergeiKhy/shortlinks/internal/models"
	"github.com/SergeiKhy/shortlinks/internal/repository"
	"go.uber.org/zap"
)

// Размер страницы перечисления ключей старого хранилища
const legacyPageSize = 1000

// LegacyImporter однократный перенос ссылок из старого key-value хранилища.
// Повторный запуск безопасен: уже перенесённые пути дают конфликт и пропускаются.
type LegacyImporter interface {
	Import(ctx context.Context) (*models.ImportReport, error)
}

type legacyImporter struct {
	source   repository.LegacyRepository
	mappings MappingService
	logger   *zap.Logger
}

func NewLegacyImporter(source repository.LegacyRepository, mappings MappingService, logger *zap.Logger) LegacyImporter {
	return &legacyImporter{
		source:   source,
		mappings: mappings,
		logger:   logger,
	}
}

// Import проходит по всем ключам источника. Ошибка отдельной записи
// логируется и не прерывает перенос; прерывает только ошибка перечисления.
func (i *legacyImporter) Import(ctx context.Context) (*models.ImportReport, error) {
	report := &models.ImportReport{}
	cursor := ""

	for {
		page, err := i.source.ListKeys(ctx, cursor, legacyPageSize)
		if err != nil {
			return report, fmt.Errorf("failed to list legacy keys: %w", err)
		}

		for _, key := range page.Keys {
			report.Scanned++
			i.importKey(ctx, key, report)
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	i.logger.Info("Перенос из старого хранилища завершён",
		zap.Int("scanned", report.Scanned),
		zap.Int("imported", report.Imported),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (i *legacyImporter) importKey(ctx context.Context, key string, report *models.ImportReport) {
	if IsReservedPath(key) {
		report.Skipped++
		return
	}

	record, err := i.source.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrLegacyKeyNotFound) {
			report.Skipped++
			return
		}
		i.logger.Warn("Не удалось прочитать запись", zap.String("key", key), zap.Error(err))
		report.Failed++
		return
	}

	input := &models.MappingInput{
		Path:       key,
		Target:     record.Target,
		Name:       record.Name,
		Expiry:     record.Expiry,
		Enabled:    record.Enabled,
		IsWechat:   record.IsWechat,
		QRCodeData: record.QRCodeData,
	}

	if _, err := i.mappings.Create(ctx, input); err != nil {
		i.logger.Warn("Не удалось перенести запись", zap.String("key", key), zap.Error(err))
		report.Failed++
		return
	}

	report.Imported++
}
