package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/shortlinks/internal/models"
	"github.com/redis/go-redis/v9"
)

// Поколение пути живёт дольше любого TTL кэша
const generationTTL = 7 * 24 * time.Hour

// ErrStaleGeneration запись в кэш отклонена: путь инвалидирован после чтения из базы
var ErrStaleGeneration = errors.New("cache generation changed")

// CacheRepository кэш активных целей редиректа (cache-aside поверх Postgres).
// Delete увеличивает поколение пути, Set пишет только при неизменном поколении.
type CacheRepository interface {
	Get(ctx context.Context, path string) (*models.ActiveTarget, error)
	Generation(ctx context.Context, path string) (int64, error)
	Set(ctx context.Context, path string, target *models.ActiveTarget, ttl time.Duration, generation int64) error
	Delete(ctx context.Context, paths ...string) error
}

// KEYS[1] - кэш, KEYS[2] - поколение; ARGV: поколение, значение, TTL в мс
var setIfGeneration = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if not gen then gen = '0' end
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

type cacheRepository struct {
	redis *RedisDB
}

func NewCacheRepository(redis *RedisDB) CacheRepository {
	return &cacheRepository{redis: redis}
}

func (r *cacheRepository) Get(ctx context.Context, path string) (*models.ActiveTarget, error) {
	data, err := r.redis.Client.Get(ctx, r.key(path)).Bytes()
	if err != nil {
		return nil, err
	}

	var target models.ActiveTarget
	if err := json.Unmarshal(data, &target); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached target: %w", err)
	}

	return &target, nil
}

func (r *cacheRepository) Generation(ctx context.Context, path string) (int64, error) {
	gen, err := r.redis.Client.Get(ctx, r.generationKey(path)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *cacheRepository) Set(ctx context.Context, path string, target *models.ActiveTarget, ttl time.Duration, generation int64) error {
	data, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("failed to marshal cached target: %w", err)
	}

	stored, err := setIfGeneration.Run(ctx, r.redis.Client,
		[]string{r.key(path), r.generationKey(path)},
		generation, data, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return err
	}
	if stored == 0 {
		return ErrStaleGeneration
	}
	return nil
}

func (r *cacheRepository) Delete(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	keys := make([]string, len(paths))
	pipe := r.redis.Client.TxPipeline()
	for i, p := range paths {
		keys[i] = r.key(p)
		pipe.Incr(ctx, r.generationKey(p))
		pipe.Expire(ctx, r.generationKey(p), generationTTL)
	}
	pipe.Del(ctx, keys...)

	_, err := pipe.Exec(ctx)
	return err
}

func (r *cacheRepository) key(path string) string {
	return "mapping:" + path
}

func (r *cacheRepository) generationKey(path string) string {
	return "mapgen:" + path
}
