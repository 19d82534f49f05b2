// Package testutils поднимает PostgreSQL и Redis в контейнерах для интеграционных тестов.
//
// Схема базы создаётся теми же встроенными миграциями, что и в сервисе.
// Контейнеры удаляются через t.Cleanup.
package testutils

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/SergeiKhy/shortlinks/internal/config"
	"github.com/SergeiKhy/shortlinks/internal/migrations"
	"github.com/SergeiKhy/shortlinks/internal/repository"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

// TestEnvironment подключения к тестовым контейнерам
type TestEnvironment struct {
	DB          *repository.PostgresDB
	Redis       *repository.RedisDB
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig

	pgContainer    tc.Container
	redisContainer tc.Container
}

// SkipIfShort пропускает интеграционный тест в коротком режиме
func SkipIfShort(t testing.TB) {
	t.Helper()
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}
}

// SetupTestEnvironment запускает оба контейнера и применяет миграции
func SetupTestEnvironment(t testing.TB) *TestEnvironment {
	t.Helper()
	SkipIfShort(t)

	env := &TestEnvironment{}
	t.Cleanup(env.cleanup)

	env.setupPostgreSQL(t)
	env.setupRedis(t)

	return env
}

func (env *TestEnvironment) setupPostgreSQL(t testing.TB) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("shortlinks"),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	env.pgContainer = pgContainer

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get postgres host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("failed to get postgres port: %v", err)
	}

	env.DBConfig = config.DBConfig{
		Host:     host,
		Port:     port.Port(),
		User:     "user",
		Password: "password",
		Name:     "shortlinks",
	}

	migrator, err := migrations.New(env.DBConfig.DSN(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("failed to create migrator: %v", err)
	}
	defer migrator.Close()
	if err := migrator.Up(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	env.DB, err = repository.NewPostgresDB(env.DBConfig)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
}

func (env *TestEnvironment) setupRedis(t testing.TB) {
	t.Helper()
	ctx := context.Background()

	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	env.redisContainer = redisContainer

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		t.Fatalf("invalid redis endpoint %q: %v", endpoint, err)
	}

	env.RedisConfig = config.RedisConfig{Host: host, Port: port}
	env.Redis, err = repository.NewRedisClient(env.RedisConfig)
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
}

// LegacyRedis клиент к отдельной базе того же Redis, как у старого хранилища
func (env *TestEnvironment) LegacyRedis(t testing.TB) *repository.RedisDB {
	t.Helper()

	cfg := env.RedisConfig
	cfg.DB = 1
	client, err := repository.NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("failed to connect to legacy redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// Reset очищает таблицу ссылок и все базы Redis между тестами
func (env *TestEnvironment) Reset(t testing.TB) {
	t.Helper()
	ctx := context.Background()

	if _, err := env.DB.Pool.Exec(ctx, "TRUNCATE TABLE mappings"); err != nil {
		t.Fatalf("failed to truncate mappings: %v", err)
	}
	if err := env.Redis.Client.FlushAll(ctx).Err(); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
}

func (env *TestEnvironment) cleanup() {
	ctx := context.Background()

	if env.DB != nil {
		env.DB.Close()
	}
	if env.Redis != nil {
		_ = env.Redis.Close()
	}
	if env.pgContainer != nil {
		_ = env.pgContainer.Terminate(ctx)
	}
	if env.redisContainer != nil {
		_ = env.redisContainer.Terminate(ctx)
	}
}
