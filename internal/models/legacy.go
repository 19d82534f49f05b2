package models

// LegacyRecord JSON-значение из старого key-value хранилища
type LegacyRecord struct {
	Target     string  `json:"target"`
	Name       *string `json:"name,omitempty"`
	Expiry     *string `json:"expiry,omitempty"`
	Enabled    *bool   `json:"enabled,omitempty"`
	IsWechat   bool    `json:"isWechat"`
	QRCodeData *string `json:"qrCodeData,omitempty"`
}

// LegacyPage одна страница перечисления ключей
type LegacyPage struct {
	Keys       []string
	NextCursor string // пустая строка - перечисление закончено
}

type ImportReport struct {
	Scanned  int `json:"scanned"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}
