package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/SergeiKhy/shortlinks/internal/models"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// Константы бота
const (
	randomPathLength = 6
	randomPathChars  = "abcdefghijklmnopqrstuvwxyz0123456789"
	maxPathAttempts  = 5
	qrCodeSize       = 256
)

var urlInText = regexp.MustCompile(`https?://\S+`)

const (
	botHelpText = "👋 Бот создаёт короткие ссылки и QR-коды.\n\n" +
		"Отправьте сообщение со ссылкой (например, https://example.com), " +
		"в ответ придёт короткая ссылка и QR-код."
	botUnknownCommandText = "Неизвестная команда. Отправьте ссылку или /help"
	botForbiddenText      = "❌ У вас нет доступа к этому боту"
	botNoURLText          = "Отправьте сообщение со ссылкой, например https://example.com"
)

// TelegramSender исходящие сообщения бота
type TelegramSender interface {
	SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error
	SendPhoto(ctx context.Context, chatID int64, photo []byte, caption string, replyTo int64) error
}

// BotService создаёт ссылки по сообщениям из чата
type BotService interface {
	HandleUpdate(ctx context.Context, update *models.TelegramUpdate) error
}

type BotConfig struct {
	AdminChatID string // пусто - бот отвечает всем
	Origin      string // публичный адрес для коротких ссылок
}

type botService struct {
	mappings   MappingService
	sender     TelegramSender
	config     BotConfig
	logger     *zap.Logger
	encodeQR   func(content string) ([]byte, error)
	randomPath func() (string, error)
	now        func() time.Time
}

func NewBotService(mappings MappingService, sender TelegramSender, config BotConfig, logger *zap.Logger) BotService {
	return &botService{
		mappings:   mappings,
		sender:     sender,
		config:     config,
		logger:     logger,
		encodeQR:   encodeQRCode,
		randomPath: generateRandomPath,
		now:        time.Now,
	}
}

func (b *botService) HandleUpdate(ctx context.Context, update *models.TelegramUpdate) error {
	msg := update.Message
	if msg == nil {
		return nil
	}

	chatID := msg.Chat.ID
	replyTo := msg.MessageID
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	if strings.HasPrefix(text, "/") {
		command, _, _ := strings.Cut(strings.Fields(text)[0], "@")
		if command == "/start" || command == "/help" {
			return b.sender.SendMessage(ctx, chatID, botHelpText, replyTo)
		}
		return b.sender.SendMessage(ctx, chatID, botUnknownCommandText, replyTo)
	}

	if b.config.AdminChatID != "" && strconv.FormatInt(chatID, 10) != b.config.AdminChatID {
		return b.sender.SendMessage(ctx, chatID, botForbiddenText, replyTo)
	}

	target := urlInText.FindString(text)
	if target == "" {
		return b.sender.SendMessage(ctx, chatID, botNoURLText, replyTo)
	}

	png, err := b.encodeQR(target)
	if err != nil {
		b.logger.Error("Не удалось сгенерировать QR-код", zap.String("target", target), zap.Error(err))
		return b.sender.SendMessage(ctx, chatID, "❌ Не удалось сгенерировать QR-код", replyTo)
	}
	qrCodeData := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	name := "TG-" + b.now().UTC().Format("2006-01-02")

	mapping, err := b.createWithRandomPath(ctx, &models.MappingInput{
		Target:     target,
		Name:       &name,
		QRCodeData: &qrCodeData,
	})
	if err != nil {
		b.logger.Warn("Бот не смог создать ссылку", zap.String("target", target), zap.Error(err))
		return b.sender.SendMessage(ctx, chatID, "❌ Не удалось создать ссылку: "+err.Error(), replyTo)
	}

	shortURL := strings.TrimRight(b.config.Origin, "/") + "/" + mapping.Path
	return b.sender.SendPhoto(ctx, chatID, png, "✅ Короткая ссылка создана:\n"+shortURL, replyTo)
}

// createWithRandomPath подбирает случайный путь; при занятом пути генерирует новый
func (b *botService) createWithRandomPath(ctx context.Context, input *models.MappingInput) (*models.Mapping, error) {
	for attempt := 1; attempt <= maxPathAttempts; attempt++ {
		path, err := b.randomPath()
		if err != nil {
			return nil, fmt.Errorf("failed to generate path: %w", err)
		}
		input.Path = path

		mapping, err := b.mappings.Create(ctx, input)
		if err == nil {
			return mapping, nil
		}
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrProtectedPath) {
			return nil, err
		}
		b.logger.Debug("Случайный путь занят, пробуем другой",
			zap.String("path", path),
			zap.Int("attempt", attempt),
		)
	}

	return nil, fmt.Errorf("%w: не удалось подобрать свободный путь за %d попыток", ErrConflict, maxPathAttempts)
}

// generateRandomPath генерирует случайный путь из строчных латинских букв и цифр
func generateRandomPath() (string, error) {
	result := make([]byte, randomPathLength)
	for i := range result {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(randomPathChars))))
		if err != nil {
			return "", err
		}
		result[i] = randomPathChars[num.Int64()]
	}
	return string(result), nil
}

func encodeQRCode(content string) ([]byte, error) {
	return qrcode.Encode(content, qrcode.Medium, qrCodeSize)
}
