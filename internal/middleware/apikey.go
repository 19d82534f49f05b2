package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Ключи контекста gin
const (
	ContextKeyValidated = "api_key_validated"
	ContextKeyName      = "api_key_name"
)

// AuthCookieName cookie, которую выставляет вход в админку
const AuthCookieName = "token"

// APIKeyConfig конфигурация для API key аутентификации
type APIKeyConfig struct {
	// ValidKeys карта валидных API ключей к их описаниям
	ValidKeys map[string]string
	// HeaderName имя заголовка для API ключа (по умолчанию: X-API-Key)
	HeaderName string
	// Optional пропускает запросы без ключа, помечая их как неаутентифицированные
	Optional bool
}

// APIKey проверяет ключ из заголовка, Bearer-токена, cookie админки или query параметра
type APIKey struct {
	config APIKeyConfig
}

func NewAPIKey(config APIKeyConfig) *APIKey {
	if config.HeaderName == "" {
		config.HeaderName = "X-API-Key"
	}
	return &APIKey{config: config}
}

// Validate сравнивает ключ со всеми валидными за постоянное время
func (ak *APIKey) Validate(key string) (string, bool) {
	if key == "" {
		return "", false
	}

	var (
		name  string
		found int
	)
	for validKey, keyName := range ak.config.ValidKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
			name = keyName
			found = 1
		}
	}
	return name, found == 1
}

// extract достаёт ключ из запроса; порядок источников важен
func (ak *APIKey) extract(c *gin.Context) string {
	if key := c.GetHeader(ak.config.HeaderName); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if cookie, err := c.Cookie(AuthCookieName); err == nil && cookie != "" {
		return cookie
	}
	return c.Query("api_key")
}

func (ak *APIKey) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ak.extract(c)

		if key == "" {
			if ak.config.Optional {
				c.Set(ContextKeyValidated, false)
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_api_key",
				"message": "Требуется API ключ: заголовок X-API-Key, Authorization: Bearer, cookie token или параметр api_key",
			})
			return
		}

		name, ok := ak.Validate(key)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_api_key",
				"message": "Невалидный API ключ",
			})
			return
		}

		c.Set(ContextKeyValidated, true)
		c.Set(ContextKeyName, name)
		c.Next()
	}
}

// RequireAPIKey middleware, требующий ключ на всех роутах группы
func RequireAPIKey(validKeys map[string]string) gin.HandlerFunc {
	return NewAPIKey(APIKeyConfig{ValidKeys: validKeys}).Middleware()
}

// IsAPIKeyValidated проверяет, был ли API ключ успешно валидирован
func IsAPIKeyValidated(c *gin.Context) bool {
	return c.GetBool(ContextKeyValidated)
}

// KeyName имя ключа, под которым прошёл запрос
func KeyName(c *gin.Context) string {
	return c.GetString(ContextKeyName)
}
