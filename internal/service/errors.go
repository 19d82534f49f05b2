package service

import "errors"

// Категории ошибок сервиса. Конкретная ошибка оборачивает одну или две категории
// через %w, граница API различает их через errors.Is.
var (
	ErrValidation    = errors.New("невалидные данные")
	ErrConflict      = errors.New("конфликт")
	ErrProtectedPath = errors.New("путь зарезервирован системой")
	ErrNotFound      = errors.New("ссылка не найдена")
)
