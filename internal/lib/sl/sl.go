// Package sl содержит вспомогательные функции для работы с логгером slog.
// Основная цель — упростить формирование структурированных полей лога,
// например, для передачи информации об ошибках.
package sl

import (
	"errors"
	"log/slog"

	"github.com/magabrotheeeer/subscribely/internal/lib/apperr"
)

// Err возвращает slog.Attr с ключом "error" и значением текста ошибки.
// Для nil возвращает пустую строку, чтобы логирование не паниковало.
//
// Пример:
//
//	log.Error("failed to do something", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Kind возвращает группу с видом и причиной доменной ошибки, если она есть.
func Kind(err error) slog.Attr {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		return slog.String("kind", apperr.KindUnknown.String())
	}
	return slog.Group("kind",
		slog.String("name", appErr.Kind.String()),
		slog.String("reason", string(appErr.Reason)),
	)
}
