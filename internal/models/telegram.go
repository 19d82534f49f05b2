package models

// TelegramUpdate подмножество полей Update из Telegram Bot API
type TelegramUpdate struct {
	UpdateID int64            `json:"update_id"`
	Message  *TelegramMessage `json:"message,omitempty"`
}

type TelegramMessage struct {
	MessageID int64        `json:"message_id"`
	Chat      TelegramChat `json:"chat"`
	Text      string       `json:"text,omitempty"`
	Caption   string       `json:"caption,omitempty"`
}

type TelegramChat struct {
	ID int64 `json:"id"`
}
