package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Legacy   LegacyConfig
	Auth     AuthConfig
	Cleanup  CleanupConfig
	Cache    CacheConfig
	Telegram TelegramConfig
}

type AppConfig struct {
	Port      string
	Origin    string // публичный адрес сервиса, используется в ответах бота
	AssetsDir string
	Timezone  string // часовой пояс для границ дней при классификации истечения
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// DSN строка подключения, общая для pgx и golang-migrate
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
	)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (c RedisConfig) addr() string {
	return c.Host + ":" + c.Port
}

func (c RedisConfig) sameDatabase(other RedisConfig) bool {
	return c.Host == other.Host && c.Port == other.Port && c.DB == other.DB
}

// LegacyConfig описывает старое key-value хранилище, из которого импортируются ссылки
type LegacyConfig struct {
	Redis   RedisConfig
	Pattern string
}

type AuthConfig struct {
	APIKeys map[string]string // API key -> name/description
}

type CleanupConfig struct {
	Schedule  string
	BatchSize int
}

type CacheConfig struct {
	TTL time.Duration
}

type TelegramConfig struct {
	BotToken      string
	WebhookSecret string
	AdminChatID   string
	APIBase       string
	SendRate      float64
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// .env опционален, переменные окружения имеют приоритет
		var pathErr *fs.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	cfg.App.Port = stringOr("APP_PORT", "8080")
	cfg.App.Origin = stringOr("PUBLIC_ORIGIN", "http://localhost:"+cfg.App.Port)
	cfg.App.AssetsDir = viper.GetString("ASSETS_DIR")
	cfg.App.Timezone = stringOr("EXPIRY_TIMEZONE", "UTC")

	cfg.DB.Host = viper.GetString("DB_HOST")
	cfg.DB.Port = viper.GetString("DB_PORT")
	cfg.DB.User = viper.GetString("DB_USER")
	cfg.DB.Password = viper.GetString("DB_PASSWORD")
	cfg.DB.Name = viper.GetString("DB_NAME")

	cfg.Redis.Host = viper.GetString("REDIS_HOST")
	cfg.Redis.Port = viper.GetString("REDIS_PORT")
	cfg.Redis.Password = viper.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = viper.GetInt("REDIS_DB")

	// Старое хранилище по умолчанию живёт в том же Redis, но в отдельной базе
	cfg.Legacy.Redis.Host = stringOr("LEGACY_REDIS_HOST", cfg.Redis.Host)
	cfg.Legacy.Redis.Port = stringOr("LEGACY_REDIS_PORT", cfg.Redis.Port)
	cfg.Legacy.Redis.Password = stringOr("LEGACY_REDIS_PASSWORD", cfg.Redis.Password)
	viper.SetDefault("LEGACY_REDIS_DB", 1)
	cfg.Legacy.Redis.DB = viper.GetInt("LEGACY_REDIS_DB")
	cfg.Legacy.Pattern = stringOr("LEGACY_KEY_PATTERN", "*")
	if cfg.Legacy.Redis.sameDatabase(cfg.Redis) {
		// Импорт просканировал бы ключи кэша и счётчиков как старые ссылки
		return nil, fmt.Errorf("%w: legacy store %s/%d is the cache database, set LEGACY_REDIS_DB",
			ErrInvalidConfig, cfg.Redis.addr(), cfg.Redis.DB)
	}

	// Auth config - parse API keys from comma-separated string
	// Format: key1:name1,key2:name2
	apiKeysRaw := viper.GetString("API_KEYS")
	cfg.Auth.APIKeys = parseAPIKeys(apiKeysRaw)

	cfg.Cleanup.Schedule = stringOr("CLEANUP_SCHEDULE", "@daily")
	cfg.Cleanup.BatchSize = viper.GetInt("CLEANUP_BATCH_SIZE")
	if cfg.Cleanup.BatchSize <= 0 {
		cfg.Cleanup.BatchSize = 100
	}

	cfg.Cache.TTL = viper.GetDuration("CACHE_TTL")
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = 24 * time.Hour
	}

	cfg.Telegram.BotToken = viper.GetString("TG_BOT_TOKEN")
	cfg.Telegram.WebhookSecret = viper.GetString("TG_WEBHOOK_SECRET")
	cfg.Telegram.AdminChatID = viper.GetString("TG_ADMIN_ID")
	cfg.Telegram.APIBase = stringOr("TG_API_BASE", "https://api.telegram.org")
	cfg.Telegram.SendRate = viper.GetFloat64("TG_SEND_RATE")
	if cfg.Telegram.SendRate == 0 {
		cfg.Telegram.SendRate = 25
	}

	return &cfg, nil
}

// Location возвращает часовой пояс для классификации истечения
func (c AppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid EXPIRY_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func stringOr(key, fallback string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return fallback
}

// parseAPIKeys parses comma-separated API keys in format "key1:name1,key2:name2"
func parseAPIKeys(raw string) map[string]string {
	keys := make(map[string]string)
	if raw == "" {
		return keys
	}

	pairs := strings.Split(raw, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 {
			keys[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	return keys
}
