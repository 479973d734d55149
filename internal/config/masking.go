package config

import (
	"strings"
)

// maskSecret маскирует секрет, оставляя только первые 4 и последние 4 символа
func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}

	// Если секрет слишком короткий, маскируем полностью
	if len(secret) < 12 {
		return "***"
	}

	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

// maskTelegramToken оставляет bot_id видимым для диагностики
func maskTelegramToken(token string) string {
	botID, rest, ok := strings.Cut(token, ":")
	if !ok {
		return maskSecret(token)
	}
	return botID + ":" + maskSecret(rest)
}

// MaskInstance возвращает копию подключения с замаскированными секретами
func MaskInstance(inst InstanceConfig) InstanceConfig {
	inst.Password = maskSecret(inst.Password)
	inst.APIKey = maskSecret(inst.APIKey)
	return inst
}

// formatValidationError форматирует ошибку валидации с маскированным значением
func formatValidationError(field, message, secret string) error {
	msg := field + " " + message
	if masked := maskSecret(secret); masked != "" {
		msg += " (value: " + masked + ")"
	}
	return &ValidationError{Field: field, Message: msg}
}

// ValidationError представляет ошибку валидации с дополнительной информацией
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
