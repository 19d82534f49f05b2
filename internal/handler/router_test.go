package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/SergeiKhy/shortlinks/internal/handler"
	"github.com/SergeiKhy/shortlinks/internal/models"
	"github.com/SergeiKhy/shortlinks/internal/service"
	"github.com/SergeiKhy/shortlinks/internal/service/mocks"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// fakeBot запоминает полученные обновления
type fakeBot struct {
	mu      sync.Mutex
	updates []int64
}

func (b *fakeBot) HandleUpdate(ctx context.Context, update *models.TelegramUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, update.UpdateID)
	return nil
}

// testEnv роутер поверх настоящих сервисов и моковых репозиториев
type testEnv struct {
	router      *gin.Engine
	mappingRepo *mocks.MockMappingRepository
	legacyRepo  *mocks.MockLegacyRepository
	visits      service.VisitRecorder
	bot         *fakeBot
}

func setupTestEnv(t *testing.T, cfg handler.RouterConfig) *testEnv {
	logger := zap.NewNop()
	mappingRepo := mocks.NewMockMappingRepository()
	cacheRepo := mocks.NewMockCacheRepository()
	legacyRepo := mocks.NewMockLegacyRepository()

	mappings := service.NewMappingService(mappingRepo, cacheRepo, time.Hour, logger)
	visits := service.NewVisitRecorder(mocks.NewMockVisitRepository(), logger)
	visits.Start()
	t.Cleanup(visits.Stop)

	bot := &fakeBot{}
	router := handler.NewRouter(handler.Services{
		Mappings:   mappings,
		Classifier: service.NewExpiryClassifier(mappingRepo, time.UTC),
		Visits:     visits,
		Importer:   service.NewLegacyImporter(legacyRepo, mappings, logger),
		Reclaimer:  service.NewReclaimer(mappingRepo, cacheRepo, service.ReclaimerConfig{BatchSize: 10}, logger),
		Bot:        bot,
	}, cfg, logger)

	return &testEnv{
		router:      router,
		mappingRepo: mappingRepo,
		legacyRepo:  legacyRepo,
		visits:      visits,
		bot:         bot,
	}
}

func (env *testEnv) do(method, path string, body interface{}, prepare ...func(*http.Request)) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, p := range prepare {
		p(req)
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

// TestRouter_MappingLifecycle создание, редирект, переименование и удаление
func TestRouter_MappingLifecycle(t *testing.T) {
	env := setupTestEnv(t, handler.RouterConfig{})

	w := env.do("POST", "/api/v1/mappings", map[string]interface{}{
		"path":   "promo",
		"target": "https://example.com/sale",
		"name":   "Распродажа",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	w = env.do("GET", "/promo", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/sale", w.Header().Get("Location"))

	w = env.do("PUT", "/api/v1/mappings/promo", map[string]interface{}{
		"path":   "promo2",
		"target": "https://example.com/sale2",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do("GET", "/promo", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do("GET", "/promo2", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/sale2", w.Header().Get("Location"))

	w = env.do("DELETE", "/api/v1/mappings/promo2", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do("GET", "/promo2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Удаление отсутствующей ссылки успешно
	w = env.do("DELETE", "/api/v1/mappings/promo2", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestRouter_Update_KeepsPath пустой path в теле оставляет текущий путь
func TestRouter_Update_KeepsPath(t *testing.T) {
	env := setupTestEnv(t, handler.RouterConfig{})
	env.mappingRepo.Put(models.Mapping{Path: "keep", Target: "https://a.example.com", Enabled: true})

	w := env.do("PUT", "/api/v1/mappings/keep", map[string]interface{}{
		"target":  "https://b.example.com",
		"enabled": false,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := env.mappingRepo.GetByPath(context.Background(), "keep")
	require.NoError(t, err)
	assert.Equal(t, "https://b.example.com", stored.Target)
	assert.False(t, stored.Enabled)
}

// TestRouter_ErrorStatuses соответствие категорий ошибок HTTP-статусам
func TestRouter_ErrorStatuses(t *testing.T) {
	env := setupTestEnv(t, handler.RouterConfig{})
	env.mappingRepo.Put(models.Mapping{Path: "taken", Target: "https://example.com", Enabled: true})

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"создание с системным путём", "POST", "/api/v1/mappings", map[string]string{"path": "admin", "target": "https://example.com"}, http.StatusForbidden},
		{"создание дубликата", "POST", "/api/v1/mappings", map[string]string{"path": "taken", "target": "https://example.com"}, http.StatusConflict},
		{"невалидная цель", "POST", "/api/v1/mappings", map[string]string{"path": "new", "target": "not-a-url"}, http.StatusBadRequest},
		{"кривой JSON", "POST", "/api/v1/mappings", "{", http.StatusBadRequest},
		{"переименование в системный путь", "PUT", "/api/v1/mappings/taken", map[string]string{"path": "login", "target": "https://example.com"}, http.StatusForbidden},
		{"изменение отсутствующей", "PUT", "/api/v1/mappings/ghost", map[string]string{"target": "https://example.com"}, http.StatusNotFound},
		{"удаление системного пути", "DELETE", "/api/v1/mappings/robots.txt", nil, http.StatusForbidden},
		{"редирект на отсутствующую", "GET", "/ghost", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			var resp handler.ErrorResponse
			decode(t, w, &resp)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

// TestRouter_RedirectExpired истёкшая и выключенная ссылки не редиректят
func TestRouter_RedirectExpired(t *testing.T) {
	env := setupTestEnv(t, handler.RouterConfig{})
	past := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	env.mappingRepo.Put(models.Mapping{Path: "old", Target: "https://example.com", Enabled: true, Expiry: &past})
	env.mappingRepo.Put(models.Mapping{Path: "off", Target: "https://example.com", Enabled: false})

	assert.Equal(t, http.StatusNotFound, env.do("GET", "/old", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do("GET", "/off", nil).Code)
}

// TestRouter_List страница без системных путей
func TestRouter_List(t *testing.T) {
	env := setupTestEnv(t, handler.RouterConfig{})
	for _, p := range []string{"a", "b", "c"} {
		env.mappingRepo.Put(models.Mapping{Path: p, Target: "https://example.com", Enabled: true, CreatedAt: time.Now()})
	}
	env.mappingRepo.Put(models.Mapping{Path: "admin", Target: "https://example.com", Enabled: true})

	w := env.do("GET", "/api/v1/mappings?page=1&pageSize=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page models.MappingPage
	decode(t, w, &page)
	assert.EqualValues(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Mappings, 2)
}

// TestRouter_Expiring отчёт об истекающих ссылках
func TestRouter_Expiring(t *testing.T) {
	env := setupTestEnv(t, handler.RouterConfig{})
	soon := time.Now().Add(24 * time.Hour)
	gone := time.Now().AddDate(0, 0, -3)
	env.mappingRepo.Put(models.Mapping{Path: "soon", Target: "https://example.com", Enabled: true, Expiry: &soon})
	env.mappingRepo.Put(models.Mapping{Path: "gone", Target: "https://example.com", Enabled: true, Expiry: &gone})

	w := env.do("GET", "/api/v1/mappings/expiring", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report models.ExpiryReport
	decode(t, w, &report)
	require.Len(t, report.Expiring, 1)
	require.Len(t, report.Expired, 1)
	assert.Equal(t, "soon", report.Expiring[0].Path)
	assert.Equal(t, "gone", report.Expired[0].Path)
}

// TestRouter_Visits счётчики переходов
func TestRouter_Visits(t *testing.T) {
	env := setupTestEnv(t, handler.RouterConfig{})
	env.mappingRepo.Put(models.Mapping{Path: "hit", Target: "https://example.com", Enabled: true})

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusFound, env.do("GET", "/hit", nil).Code)
	}

	assert.Eventually(t, func() bool {
		var resp handler.TotalCountResponse
		w := env.do("GET", "/__total_count", nil)
		return w.Code == http.StatusOK && json.Unmarshal(w.Body.Bytes(), &resp) == nil && resp.Total == 3
	}, 2*time.Second, 20*time.Millisecond)

	w := env.do("GET", "/api/v1/mappings/hit/visits", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.VisitStats
	decode(t, w, &stats)
	assert.EqualValues(t, 3, stats.Visits)
}

// TestRouter_MigrateAndCleanup операции обслуживания
func TestRouter_MigrateAndCleanup(t *testing.T) {
	env := setupTestEnv(t, handler.RouterConfig{})
	env.legacyRepo.Add("one", &models.LegacyRecord{Target: "https://example.com/1"})
	env.legacyRepo.Add("two", &models.LegacyRecord{Target: "https://example.com/2", Expiry: strPtr("2020-01-01")})
	env.legacyRepo.Add("bad", &models.LegacyRecord{Target: "not-a-url"})

	w := env.do("POST", "/api/v1/migrate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var migrate handler.MigrateResponse
	decode(t, w, &migrate)
	assert.True(t, migrate.Success)
	assert.Equal(t, 2, migrate.Imported)
	assert.Equal(t, 1, migrate.Failed)

	w = env.do("POST", "/api/v1/cleanup", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cleanup handler.CleanupResponse
	decode(t, w, &cleanup)
	assert.EqualValues(t, 1, cleanup.Deleted)
	assert.Equal(t, 1, env.mappingRepo.Len())
}

// TestRouter_MigrateFailure ошибка перечисления источника
func TestRouter_MigrateFailure(t *testing.T) {
	env := setupTestEnv(t, handler.RouterConfig{})
	env.legacyRepo.ListErr = mocks.ErrUnavailable

	w := env.do("POST", "/api/v1/migrate", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// TestRouter_APIKey админка закрыта ключом, вход выставляет cookie
func TestRouter_APIKey(t *testing.T) {
	env := setupTestEnv(t, handler.RouterConfig{APIKeys: map[string]string{"secret": "admin"}})

	assert.Equal(t, http.StatusUnauthorized, env.do("GET", "/api/v1/mappings", nil).Code)
	assert.Equal(t, http.StatusOK, env.do("GET", "/api/v1/health", nil).Code)

	w := env.do("GET", "/api/v1/mappings", nil, func(r *http.Request) { r.Header.Set("X-API-Key", "secret") })
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusUnauthorized, env.do("POST", "/api/v1/login", map[string]string{"password": "wrong"}).Code)

	w = env.do("POST", "/api/v1/login", map[string]string{"password": "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "token", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	w = env.do("GET", "/api/v1/mappings", nil, func(r *http.Request) { r.AddCookie(cookies[0]) })
	assert.Equal(t, http.StatusOK, w.Code)

	// Редирект публичный
	env.mappingRepo.Put(models.Mapping{Path: "pub", Target: "https://example.com", Enabled: true})
	assert.Equal(t, http.StatusFound, env.do("GET", "/pub", nil).Code)
}

// TestRouter_TelegramWebhook webhook принимает только свой токен
func TestRouter_TelegramWebhook(t *testing.T) {
	env := setupTestEnv(t, handler.RouterConfig{WebhookToken: "123:abc"})

	update := map[string]interface{}{"update_id": 77, "message": map[string]interface{}{"message_id": 1, "chat": map[string]interface{}{"id": 5}, "text": "hi"}}

	assert.Equal(t, http.StatusNotFound, env.do("POST", "/api/v1/telegram/webhook/wrong", update).Code)

	w := env.do("POST", "/api/v1/telegram/webhook/123:abc", update)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	assert.Equal(t, []int64{77}, env.bot.updates)

	w = env.do("GET", "/api/v1/telegram/webhook/123:abc?hub.challenge=xyz", nil)
	assert.Equal(t, "xyz", w.Body.String())
}

// TestRouter_TelegramWebhookSecret при заданном секрете нужен заголовок Telegram
func TestRouter_TelegramWebhookSecret(t *testing.T) {
	env := setupTestEnv(t, handler.RouterConfig{WebhookToken: "123:abc", WebhookSecret: "s3cret"})
	update := map[string]interface{}{"update_id": 78}

	w := env.do("POST", "/api/v1/telegram/webhook/123:abc", update)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do("POST", "/api/v1/telegram/webhook/123:abc", update, func(r *http.Request) {
		r.Header.Set("X-Telegram-Bot-Api-Secret-Token", "wrong")
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do("POST", "/api/v1/telegram/webhook/123:abc", update, func(r *http.Request) {
		r.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{78}, env.bot.updates)
}

// TestRouter_Assets статика админки и корень
func TestRouter_Assets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "admin.html"), []byte("<h1>admin</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "robots.txt"), []byte("User-agent: *"), 0o644))

	env := setupTestEnv(t, handler.RouterConfig{AssetsDir: dir})

	w := env.do("GET", "/", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin.html", w.Header().Get("Location"))

	w = env.do("GET", "/admin.html", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin")

	w = env.do("GET", "/robots.txt", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "User-agent: *", w.Body.String())

	w = env.do("GET", "/api/v1/health", nil)
	var health map[string]string
	decode(t, w, &health)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "shortlinks", health["service"])
}

func strPtr(s string) *string { return &s }
