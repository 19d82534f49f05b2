package mocks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/SergeiKhy/shortlinks/internal/models"
	"github.com/SergeiKhy/shortlinks/internal/repository"
)

// MockMappingRepository implements repository.MappingRepository for testing.
// Повторяет ограничения таблицы: уникальный path и CHECK для WeChat.
type MockMappingRepository struct {
	mu       sync.RWMutex
	mappings map[string]models.Mapping

	// Err, если задана, возвращается всеми методами
	Err error
	// DeleteBatches размеры пачек, переданных в DeleteByPaths
	DeleteBatches []int
}

func NewMockMappingRepository() *MockMappingRepository {
	return &MockMappingRepository{
		mappings: make(map[string]models.Mapping),
	}
}

func (m *MockMappingRepository) Create(ctx context.Context, mapping *models.Mapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	if _, exists := m.mappings[mapping.Path]; exists {
		return repository.ErrPathExists
	}
	if mapping.IsWechat && mapping.QRCodeData == nil {
		return repository.ErrMissingQRCode
	}

	m.mappings[mapping.Path] = *mapping
	return nil
}

func (m *MockMappingRepository) GetByPath(ctx context.Context, path string) (*models.Mapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	mapping, exists := m.mappings[path]
	if !exists {
		return nil, repository.ErrMappingNotFound
	}
	return &mapping, nil
}

func (m *MockMappingRepository) Update(ctx context.Context, oldPath string, mapping *models.Mapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	previous, exists := m.mappings[oldPath]
	if !exists {
		return repository.ErrMappingNotFound
	}
	if _, taken := m.mappings[mapping.Path]; taken && mapping.Path != oldPath {
		return repository.ErrPathExists
	}
	if mapping.IsWechat && mapping.QRCodeData == nil {
		return repository.ErrMissingQRCode
	}

	mapping.CreatedAt = previous.CreatedAt
	delete(m.mappings, oldPath)
	m.mappings[mapping.Path] = *mapping
	return nil
}

func (m *MockMappingRepository) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	delete(m.mappings, path)
	return nil
}

func (m *MockMappingRepository) GetActiveTarget(ctx context.Context, path string, now time.Time) (*models.ActiveTarget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	mapping, exists := m.mappings[path]
	if !exists || !mapping.Enabled || (mapping.Expiry != nil && !mapping.Expiry.After(now)) {
		return nil, repository.ErrMappingNotFound
	}
	return &models.ActiveTarget{Target: mapping.Target, Expiry: mapping.Expiry}, nil
}

func (m *MockMappingRepository) List(ctx context.Context, offset, limit int, excluded []string) ([]models.Mapping, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, 0, m.Err
	}

	skip := make(map[string]bool, len(excluded))
	for _, p := range excluded {
		skip[p] = true
	}

	var filtered []models.Mapping
	for _, mapping := range m.mappings {
		if !skip[mapping.Path] {
			filtered = append(filtered, mapping)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
		}
		return filtered[i].Path < filtered[j].Path
	})

	total := int64(len(filtered))
	if offset >= len(filtered) {
		return []models.Mapping{}, total, nil
	}
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[offset:end], total, nil
}

func (m *MockMappingRepository) ListExpiring(ctx context.Context, horizon time.Time) ([]models.Mapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}

	var result []models.Mapping
	for _, mapping := range m.mappings {
		if mapping.Enabled && mapping.Expiry != nil && !mapping.Expiry.After(horizon) {
			result = append(result, mapping)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Expiry.Before(*result[j].Expiry)
	})
	return result, nil
}

func (m *MockMappingRepository) ListExpiredPaths(ctx context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}

	var paths []string
	for path, mapping := range m.mappings {
		if mapping.Expiry != nil && mapping.Expiry.Before(now) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	if len(paths) > limit {
		paths = paths[:limit]
	}
	return paths, nil
}

func (m *MockMappingRepository) DeleteByPaths(ctx context.Context, paths []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return 0, m.Err
	}

	m.DeleteBatches = append(m.DeleteBatches, len(paths))
	var deleted int64
	for _, path := range paths {
		if _, exists := m.mappings[path]; exists {
			delete(m.mappings, path)
			deleted++
		}
	}
	return deleted, nil
}

// Put кладёт запись в обход проверок сервиса
func (m *MockMappingRepository) Put(mapping models.Mapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings[mapping.Path] = mapping
}

func (m *MockMappingRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mappings)
}

func (m *MockMappingRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings = make(map[string]models.Mapping)
	m.DeleteBatches = nil
	m.Err = nil
}

// MockCacheRepository implements repository.CacheRepository for testing
type MockCacheRepository struct {
	mu          sync.RWMutex
	cache       map[string]models.ActiveTarget
	generations map[string]int64
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		cache:       make(map[string]models.ActiveTarget),
		generations: make(map[string]int64),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, path string) (*models.ActiveTarget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	target, exists := m.cache[path]
	if !exists {
		return nil, repository.ErrMappingNotFound
	}
	return &target, nil
}

func (m *MockCacheRepository) Generation(ctx context.Context, path string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generations[path], nil
}

func (m *MockCacheRepository) Set(ctx context.Context, path string, target *models.ActiveTarget, ttl time.Duration, generation int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generations[path] != generation {
		return repository.ErrStaleGeneration
	}
	m.cache[path] = *target
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		delete(m.cache, p)
		m.generations[p]++
	}
	return nil
}

func (m *MockCacheRepository) Has(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.cache[path]
	return ok
}

func (m *MockCacheRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]models.ActiveTarget)
	m.generations = make(map[string]int64)
}

// MockVisitRepository implements repository.VisitRepository for testing
type MockVisitRepository struct {
	mu     sync.RWMutex
	visits map[string]int64
	total  int64
}

func NewMockVisitRepository() *MockVisitRepository {
	return &MockVisitRepository{
		visits: make(map[string]int64),
	}
}

func (m *MockVisitRepository) Increment(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visits[path]++
	m.total++
	return nil
}

func (m *MockVisitRepository) Count(ctx context.Context, path string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.visits[path], nil
}

func (m *MockVisitRepository) Total(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total, nil
}

// MockLegacyRepository implements repository.LegacyRepository for testing.
// Ключи отдаются в порядке добавления страницами по PageSize.
type MockLegacyRepository struct {
	mu       sync.RWMutex
	keys     []string
	records  map[string]*models.LegacyRecord
	failures map[string]error

	// PageSize переопределяет limit из запроса, 0 - использовать limit
	PageSize int
	// ListErr возвращается из ListKeys
	ListErr error
	// ListCalls число вызовов ListKeys
	ListCalls int
}

func NewMockLegacyRepository() *MockLegacyRepository {
	return &MockLegacyRepository{
		records:  make(map[string]*models.LegacyRecord),
		failures: make(map[string]error),
	}
}

// Add добавляет ключ; record == nil имитирует ключ без значения
func (m *MockLegacyRepository) Add(key string, record *models.LegacyRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	if record != nil {
		m.records[key] = record
	}
}

// Fail заставляет Get для ключа вернуть ошибку
func (m *MockLegacyRepository) Fail(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	m.failures[key] = err
}

func (m *MockLegacyRepository) ListKeys(ctx context.Context, cursor string, limit int) (*models.LegacyPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	start := 0
	if cursor != "" {
		for i, k := range m.keys {
			if k == cursor {
				start = i
				break
			}
		}
	}

	size := limit
	if m.PageSize > 0 {
		size = m.PageSize
	}
	end := start + size
	if end > len(m.keys) {
		end = len(m.keys)
	}

	page := &models.LegacyPage{Keys: append([]string(nil), m.keys[start:end]...)}
	if end < len(m.keys) {
		page.NextCursor = m.keys[end]
	}
	return page, nil
}

func (m *MockLegacyRepository) Get(ctx context.Context, key string) (*models.LegacyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, ok := m.failures[key]; ok {
		return nil, err
	}
	record, ok := m.records[key]
	if !ok {
		return nil, repository.ErrLegacyKeyNotFound
	}
	return record, nil
}

// ErrUnavailable имитирует недоступное хранилище
var ErrUnavailable = errors.New("store unavailable")
