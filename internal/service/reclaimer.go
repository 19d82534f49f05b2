package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SergeiKhy/shortlinks/internal/repository"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Константы очистки
const (
	defaultReclaimBatchSize = 100
	defaultReclaimSchedule  = "@daily"
	defaultReclaimTimeout   = 10 * time.Minute
)

// Reclaimer периодически удаляет ссылки с истёкшим сроком действия.
// Это сборка мусора, а не проверка доступа: GetActiveTarget сам отсекает истёкшие ссылки.
type Reclaimer interface {
	Start() error
	Stop()
	Run(ctx context.Context) (int64, error)
}

type ReclaimerConfig struct {
	Schedule  string        // cron-выражение или дескриптор (@daily, @every 1h)
	BatchSize int           // максимум строк за одну итерацию
	Timeout   time.Duration // ограничение на один запуск по расписанию
}

type reclaimer struct {
	mappingRepo repository.MappingRepository
	cacheRepo   repository.CacheRepository
	config      ReclaimerConfig
	logger      *zap.Logger
	now         func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func NewReclaimer(
	mappingRepo repository.MappingRepository,
	cacheRepo repository.CacheRepository,
	config ReclaimerConfig,
	logger *zap.Logger,
) Reclaimer {
	if config.Schedule == "" {
		config.Schedule = defaultReclaimSchedule
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultReclaimBatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultReclaimTimeout
	}
	return &reclaimer{
		mappingRepo: mappingRepo,
		cacheRepo:   cacheRepo,
		config:      config,
		logger:      logger,
		now:         time.Now,
	}
}

// Start регистрирует задачу в планировщике. Пересекающиеся запуски пропускаются.
func (r *reclaimer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return nil
	}

	logger := cronLogger{r.logger.Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(r.config.Schedule, r.tick); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", r.config.Schedule, err)
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.cron = c
	c.Start()

	r.logger.Info("Очистка истёкших ссылок запланирована",
		zap.String("schedule", r.config.Schedule),
		zap.Int("batch_size", r.config.BatchSize),
	)
	return nil
}

// Stop останавливает планировщик и дожидается текущего запуска
func (r *reclaimer) Stop() {
	r.mu.Lock()
	c, cancel := r.cron, r.cancel
	r.cron, r.cancel = nil, nil
	r.mu.Unlock()

	if c == nil {
		return
	}

	cancel()
	<-c.Stop().Done()
	r.logger.Info("Очистка истёкших ссылок остановлена")
}

func (r *reclaimer) tick() {
	r.mu.Lock()
	parent := r.ctx
	r.mu.Unlock()
	if parent == nil {
		return
	}

	ctx, cancel := context.WithTimeout(parent, r.config.Timeout)
	defer cancel()

	if _, err := r.Run(ctx); err != nil {
		r.logger.Error("Очистка истёкших ссылок прервана", zap.Error(err))
	}
}

// Run удаляет истёкшие ссылки пачками по BatchSize, пока выборка не окажется неполной.
// Между пачками нет транзакции: прерванный запуск оставляет частичный прогресс,
// следующий запуск просто найдёт меньше строк.
func (r *reclaimer) Run(ctx context.Context) (int64, error) {
	now := r.now()
	start := time.Now()

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		paths, err := r.mappingRepo.ListExpiredPaths(ctx, now, r.config.BatchSize)
		if err != nil {
			return total, fmt.Errorf("failed to select expired mappings: %w", err)
		}
		if len(paths) == 0 {
			break
		}

		deleted, err := r.mappingRepo.DeleteByPaths(ctx, paths)
		if err != nil {
			return total, fmt.Errorf("failed to delete expired mappings: %w", err)
		}
		total += deleted

		if err := r.cacheRepo.Delete(ctx, paths...); err != nil {
			r.logger.Warn("Не удалось сбросить кэш удалённых ссылок", zap.Int("count", len(paths)), zap.Error(err))
		}

		if len(paths) < r.config.BatchSize {
			break
		}
	}

	r.logger.Info("Очистка истёкших ссылок завершена",
		zap.Int64("deleted", total),
		zap.Duration("took", time.Since(start)),
	)
	return total, nil
}

// cronLogger направляет внутренние сообщения cron в zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
