package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const totalVisitsKey = "visits:__total"

// VisitRepository счётчики переходов по коротким ссылкам
type VisitRepository interface {
	Increment(ctx context.Context, path string) error
	Count(ctx context.Context, path string) (int64, error)
	Total(ctx context.Context) (int64, error)
}

type visitRepository struct {
	redis *RedisDB
}

func NewVisitRepository(redis *RedisDB) VisitRepository {
	return &visitRepository{redis: redis}
}

// Increment увеличивает счётчик ссылки и общий счётчик одной транзакцией
func (r *visitRepository) Increment(ctx context.Context, path string) error {
	pipe := r.redis.Client.TxPipeline()
	pipe.Incr(ctx, r.key(path))
	pipe.Incr(ctx, totalVisitsKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record visit: %w", err)
	}
	return nil
}

func (r *visitRepository) Count(ctx context.Context, path string) (int64, error) {
	return r.get(ctx, r.key(path))
}

func (r *visitRepository) Total(ctx context.Context) (int64, error) {
	return r.get(ctx, totalVisitsKey)
}

func (r *visitRepository) get(ctx context.Context, key string) (int64, error) {
	n, err := r.redis.Client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read visit counter: %w", err)
	}
	return n, nil
}

func (r *visitRepository) key(path string) string {
	return "visits:" + path
}
