package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/SergeiKhy/shortlinks/internal/models"
	"github.com/SergeiKhy/shortlinks/internal/service"
	"github.com/SergeiKhy/shortlinks/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paths(mappings []models.Mapping) []string {
	result := make([]string, 0, len(mappings))
	for _, m := range mappings {
		result = append(result, m.Path)
	}
	return result
}

// TestExpiryWindow проверяет границы окна в UTC и в другом часовом поясе
func TestExpiryWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)

	dayStart, horizon := service.ExpiryWindow(now, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), dayStart)
	assert.Equal(t, time.Date(2024, 6, 4, 23, 59, 59, int(999*time.Millisecond), time.UTC), horizon)

	// В UTC+8 уже следующий день
	shanghai := time.FixedZone("UTC+8", 8*60*60)
	late := time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)
	dayStart, _ = service.ExpiryWindow(late, shanghai)
	assert.True(t, dayStart.Equal(time.Date(2024, 6, 1, 16, 0, 0, 0, time.UTC)), "got %s", dayStart)
}

// TestClassifyExpiry проверяет раскладку по корзинам с сохранением порядка
func TestClassifyExpiry(t *testing.T) {
	dayStart := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	mappings := []models.Mapping{
		{Path: "old", Expiry: timePtr(dayStart.Add(-48 * time.Hour))},
		{Path: "yesterday", Expiry: timePtr(dayStart.Add(-time.Second))},
		{Path: "midnight", Expiry: timePtr(dayStart)},
		{Path: "morning", Expiry: timePtr(dayStart.Add(6 * time.Hour))},
		{Path: "later", Expiry: timePtr(dayStart.Add(50 * time.Hour))},
		{Path: "no-expiry"},
	}

	report := service.ClassifyExpiry(mappings, dayStart)

	assert.Equal(t, []string{"old", "yesterday"}, paths(report.Expired))
	assert.Equal(t, []string{"midnight", "morning", "later"}, paths(report.Expiring))
}

// TestClassifyExpiry_Empty пустой вход даёт пустые, а не nil, списки
func TestClassifyExpiry_Empty(t *testing.T) {
	report := service.ClassifyExpiry(nil, time.Now())

	assert.NotNil(t, report.Expired)
	assert.NotNil(t, report.Expiring)
	assert.Empty(t, report.Expired)
	assert.Empty(t, report.Expiring)
}

// TestExpiryClassifier_Classify проверяет выборку из хранилища
func TestExpiryClassifier_Classify(t *testing.T) {
	mappingRepo := mocks.NewMockMappingRepository()
	classifier := service.NewExpiryClassifier(mappingRepo, nil)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mappingRepo.Put(models.Mapping{Path: "expired", Target: "https://a", Enabled: true, Expiry: timePtr(time.Date(2024, 5, 31, 23, 59, 59, 0, time.UTC))})
	mappingRepo.Put(models.Mapping{Path: "in-two-days", Target: "https://a", Enabled: true, Expiry: timePtr(now.AddDate(0, 0, 2))})
	mappingRepo.Put(models.Mapping{Path: "horizon", Target: "https://a", Enabled: true, Expiry: timePtr(time.Date(2024, 6, 4, 23, 59, 59, 0, time.UTC))})
	mappingRepo.Put(models.Mapping{Path: "next-week", Target: "https://a", Enabled: true, Expiry: timePtr(now.AddDate(0, 0, 10))})
	mappingRepo.Put(models.Mapping{Path: "after-horizon", Target: "https://a", Enabled: true, Expiry: timePtr(time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC))})
	mappingRepo.Put(models.Mapping{Path: "disabled", Target: "https://a", Enabled: false, Expiry: timePtr(now.AddDate(0, 0, 1))})
	mappingRepo.Put(models.Mapping{Path: "forever", Target: "https://a", Enabled: true})

	report, err := classifier.Classify(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, []string{"expired"}, paths(report.Expired))
	assert.Equal(t, []string{"in-two-days", "horizon"}, paths(report.Expiring))
}

// TestExpiryClassifier_StoreError ошибка хранилища возвращается вызывающему
func TestExpiryClassifier_StoreError(t *testing.T) {
	mappingRepo := mocks.NewMockMappingRepository()
	mappingRepo.Err = mocks.ErrUnavailable

	_, err := service.NewExpiryClassifier(mappingRepo, time.UTC).Classify(context.Background(), time.Now())
	assert.ErrorIs(t, err, mocks.ErrUnavailable)
}
