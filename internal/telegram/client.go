package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/SergeiKhy/shortlinks/internal/config"
	"golang.org/x/time/rate"
)

// Telegram ограничивает бота примерно 30 сообщениями в секунду
const (
	defaultSendRate = 25
	requestTimeout  = 30 * time.Second
)

// ErrAPI ответ Bot API с ok=false
var ErrAPI = errors.New("telegram api error")

// Client минимальный клиент Bot API для ответов бота
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

func NewClient(cfg config.TelegramConfig) *Client {
	sendRate := cfg.SendRate
	if sendRate <= 0 {
		sendRate = defaultSendRate
	}
	burst := int(sendRate)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(cfg.APIBase, "/") + "/bot" + cfg.BotToken,
		limiter:    rate.NewLimiter(rate.Limit(sendRate), burst),
	}
}

type sendMessageRequest struct {
	ChatID           int64  `json:"chat_id"`
	Text             string `json:"text"`
	ReplyToMessageID int64  `json:"reply_to_message_id,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:           chatID,
		Text:             text,
		ReplyToMessageID: replyTo,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return c.call(ctx, "sendMessage", "application/json", bytes.NewReader(body))
}

// SendPhoto отправляет PNG как multipart/form-data
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo []byte, caption string, replyTo int64) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"chat_id": strconv.FormatInt(chatID, 10),
		"caption": caption,
	}
	if replyTo != 0 {
		fields["reply_to_message_id"] = strconv.FormatInt(replyTo, 10)
	}
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return fmt.Errorf("failed to write field %s: %w", name, err)
		}
	}

	part, err := w.CreateFormFile("photo", "qrcode.png")
	if err != nil {
		return fmt.Errorf("failed to create photo part: %w", err)
	}
	if _, err := part.Write(photo); err != nil {
		return fmt.Errorf("failed to write photo: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close multipart body: %w", err)
	}

	return c.call(ctx, "sendPhoto", w.FormDataContentType(), &buf)
}

func (c *Client) call(ctx context.Context, method, contentType string, body io.Reader) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Текст *url.Error содержит адрес запроса вместе с токеном бота
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !result.OK {
		return fmt.Errorf("%w: %s: %d %s", ErrAPI, method, result.ErrorCode, result.Description)
	}

	return nil
}
