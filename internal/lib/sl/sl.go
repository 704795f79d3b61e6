// Package sl содержит вспомогательные атрибуты для логгера slog.
package sl

import "log/slog"

// Err возвращает slog.Attr с ключом "error" и текстом ошибки.
//
// Пример:
//
//	log.Error("failed to apply event", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Redacted возвращает атрибут, у которого сохранены только первые n символов значения.
// Используется для идентификаторов, которые не должны полностью попадать в лог.
func Redacted(key, value string, n int) slog.Attr {
	if n < 0 {
		n = 0
	}
	if len(value) <= n {
		return slog.String(key, value)
	}
	return slog.String(key, value[:n]+"…")
}
