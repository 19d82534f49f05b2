package models

import (
	"time"
)

// Mapping связь короткого пути с целевым URL
type Mapping struct {
	Path       string     `json:"path"`
	Target     string     `json:"target"`
	Name       *string    `json:"name,omitempty"`
	Expiry     *time.Time `json:"expiry,omitempty"`
	Enabled    bool       `json:"enabled"`
	IsWechat   bool       `json:"isWechat"`
	QRCodeData *string    `json:"qrCodeData,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// MappingInput тело запроса на создание или изменение ссылки.
// Expiry передаётся строкой и разбирается сервисом.
type MappingInput struct {
	Path       string  `json:"path"`
	Target     string  `json:"target"`
	Name       *string `json:"name,omitempty"`
	Expiry     *string `json:"expiry,omitempty"`
	Enabled    *bool   `json:"enabled,omitempty"`
	IsWechat   bool    `json:"isWechat"`
	QRCodeData *string `json:"qrCodeData,omitempty"`
}

// ActiveTarget результат точечного чтения для редиректа
type ActiveTarget struct {
	Target string     `json:"target"`
	Expiry *time.Time `json:"expiry,omitempty"`
}

type MappingPage struct {
	Mappings   []Mapping `json:"mappings"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"pageSize"`
	TotalPages int       `json:"totalPages"`
}

// ExpiryReport ссылки, истёкшие до начала текущего дня, и истекающие в ближайшие 3 дня
type ExpiryReport struct {
	Expiring []Mapping `json:"expiring"`
	Expired  []Mapping `json:"expired"`
}
