package service

import (
	"context"
	"sync"
	"time"

	"github.com/SergeiKhy/shortlinks/internal/models"
	"github.com/SergeiKhy/shortlinks/internal/repository"
	"go.uber.org/zap"
)

// Константы worker pool
const (
	defaultWorkerCount   = 3    // Количество воркеров
	defaultChannelBuffer = 1000 // Размер буфера канала
	maxRetries           = 3    // Максимальное количество попыток записи
)

// VisitRecorder асинхронный учёт переходов, не задерживающий редирект
type VisitRecorder interface {
	Start()
	Stop()
	Record(ctx context.Context, event *models.VisitEvent) error
	Count(ctx context.Context, path string) (*models.VisitStats, error)
	Total(ctx context.Context) (int64, error)
}

// visitRecorder реализация на пуле воркеров поверх буферизованного канала
type visitRecorder struct {
	visitRepo    repository.VisitRepository
	logger       *zap.Logger
	visitChannel chan *models.VisitEvent
	workerCount  int
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
}

func NewVisitRecorder(visitRepo repository.VisitRepository, logger *zap.Logger) VisitRecorder {
	return &visitRecorder{
		visitRepo:    visitRepo,
		logger:       logger,
		visitChannel: make(chan *models.VisitEvent, defaultChannelBuffer),
		workerCount:  defaultWorkerCount,
	}
}

// Start запускает worker pool
func (p *visitRecorder) Start() {
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.logger.Info("Запуск воркеров учёта переходов", zap.Int("count", p.workerCount))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop останавливает воркеры; события, оставшиеся в буфере, теряются
func (p *visitRecorder) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.wg.Wait()
	p.logger.Info("Учёт переходов остановлен")
}

func (p *visitRecorder) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("Воркер учёта переходов остановлен", zap.Int("id", id))
			return

		case event := <-p.visitChannel:
			p.process(event)
		}
	}
}

// process записывает переход с повторами
func (p *visitRecorder) process(event *models.VisitEvent) {
	ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
	defer cancel()

	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err = p.visitRepo.Increment(ctx, event.Path); err == nil {
			return
		}
		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}
	}

	p.logger.Error("Не удалось записать переход после всех попыток",
		zap.String("path", event.Path),
		zap.Error(err),
	)
}

// Record ставит событие в очередь и никогда не блокирует запрос
func (p *visitRecorder) Record(ctx context.Context, event *models.VisitEvent) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.visitChannel <- event:
		return nil
	default:
		// Буфер заполнен: статистика не важнее редиректа
		p.logger.Warn("Буфер учёта переходов заполнен, событие потеряно",
			zap.String("path", event.Path),
		)
		return nil
	}
}

func (p *visitRecorder) Count(ctx context.Context, path string) (*models.VisitStats, error) {
	visits, err := p.visitRepo.Count(ctx, path)
	if err != nil {
		return nil, err
	}
	return &models.VisitStats{Path: path, Visits: visits}, nil
}

func (p *visitRecorder) Total(ctx context.Context) (int64, error) {
	return p.visitRepo.Total(ctx)
}
