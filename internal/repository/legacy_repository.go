package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/SergeiKhy/shortlinks/internal/models"
	"github.com/redis/go-redis/v9"
)

var ErrLegacyKeyNotFound = errors.New("legacy key not found")

// LegacyRepository старое key-value хранилище ссылок: ключ - путь, значение - JSON
type LegacyRepository interface {
	ListKeys(ctx context.Context, cursor string, limit int) (*models.LegacyPage, error)
	Get(ctx context.Context, key string) (*models.LegacyRecord, error)
}

type legacyRepository struct {
	redis   *RedisDB
	pattern string
}

func NewLegacyRepository(redis *RedisDB, pattern string) LegacyRepository {
	if pattern == "" {
		pattern = "*"
	}
	return &legacyRepository{redis: redis, pattern: pattern}
}

// ListKeys одна итерация SCAN. Курсор "" или "0" начинает перечисление,
// пустой NextCursor означает, что Redis вернул курсор 0 и ключей больше нет.
// limit для SCAN лишь подсказка, страница может оказаться больше или меньше.
func (r *legacyRepository) ListKeys(ctx context.Context, cursor string, limit int) (*models.LegacyPage, error) {
	var pos uint64
	if cursor != "" {
		var err error
		pos, err = strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid legacy cursor %q: %w", cursor, err)
		}
	}

	keys, next, err := r.redis.Client.Scan(ctx, pos, r.pattern, int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan legacy keys: %w", err)
	}

	page := &models.LegacyPage{Keys: keys}
	if next != 0 {
		page.NextCursor = strconv.FormatUint(next, 10)
	}
	return page, nil
}

func (r *legacyRepository) Get(ctx context.Context, key string) (*models.LegacyRecord, error) {
	data, err := r.redis.Client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrLegacyKeyNotFound
		}
		return nil, fmt.Errorf("failed to read legacy key %q: %w", key, err)
	}

	// Значение "null" осталось от удалённых записей старой системы
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrLegacyKeyNotFound
	}

	var record models.LegacyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode legacy key %q: %w", key, err)
	}

	return &record, nil
}
