package service

import (
	"context"
	"time"

	"github.com/SergeiKhy/shortlinks/internal/models"
	"github.com/SergeiKhy/shortlinks/internal/repository"
)

// Сколько полных дней вперёд попадает в окно "скоро истекает"
const expiryLookaheadDays = 3

// ExpiryClassifier делит включённые ссылки со сроком действия на истёкшие и истекающие
type ExpiryClassifier interface {
	Classify(ctx context.Context, now time.Time) (*models.ExpiryReport, error)
}

type expiryClassifier struct {
	mappingRepo repository.MappingRepository
	location    *time.Location
}

// NewExpiryClassifier создаёт классификатор; границы дней считаются в loc (nil - UTC)
func NewExpiryClassifier(mappingRepo repository.MappingRepository, loc *time.Location) ExpiryClassifier {
	if loc == nil {
		loc = time.UTC
	}
	return &expiryClassifier{mappingRepo: mappingRepo, location: loc}
}

func (c *expiryClassifier) Classify(ctx context.Context, now time.Time) (*models.ExpiryReport, error) {
	dayStart, horizon := ExpiryWindow(now, c.location)

	mappings, err := c.mappingRepo.ListExpiring(ctx, horizon)
	if err != nil {
		return nil, err
	}

	return ClassifyExpiry(mappings, dayStart), nil
}

// ExpiryWindow возвращает начало текущего дня и конец третьего дня вперёд.
// Границы целодневные: ссылка, истёкшая сегодня утром, ещё считается "истекающей".
func ExpiryWindow(now time.Time, loc *time.Location) (dayStart, horizon time.Time) {
	local := now.In(loc)
	dayStart = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	horizon = dayStart.AddDate(0, 0, expiryLookaheadDays+1).Add(-time.Millisecond)
	return dayStart, horizon
}

// ClassifyExpiry раскладывает уже отсортированные по сроку ссылки по двум корзинам
func ClassifyExpiry(mappings []models.Mapping, dayStart time.Time) *models.ExpiryReport {
	report := &models.ExpiryReport{
		Expiring: []models.Mapping{},
		Expired:  []models.Mapping{},
	}

	for _, m := range mappings {
		if m.Expiry == nil {
			continue
		}
		if m.Expiry.Before(dayStart) {
			report.Expired = append(report.Expired, m)
		} else {
			report.Expiring = append(report.Expiring, m)
		}
	}

	return report
}
