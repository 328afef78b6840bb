// Package agenterr определяет классифицированные ошибки агента.
// Классификация определяет реакцию оркестратора: восстановимые ошибки
// логируются с повтором операции, критические останавливают агента.
package agenterr

import (
	"errors"
	"fmt"
)

// Kind категория ошибки
type Kind int

const (
	KindConfig Kind = iota
	KindCapture
	KindEncoding
	KindTransport
	KindInput
	KindAuth
	KindSecurity
	KindSystem
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindCapture:
		return "capture"
	case KindEncoding:
		return "encoding"
	case KindTransport:
		return "transport"
	case KindInput:
		return "input"
	case KindAuth:
		return "auth"
	case KindSecurity:
		return "security"
	case KindSystem:
		return "system"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Error ошибка агента с категорией и опциональной причиной
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New создает ошибку указанной категории
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf создает ошибку с форматированным сообщением
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap оборачивает причину в ошибку указанной категории
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithContext добавляет контекст к сообщению, сохраняя категорию и причину
func (e *Error) WithContext(ctx string) *Error {
	return &Error{Kind: e.Kind, Message: ctx + ": " + e.Message, Cause: e.Cause}
}

// KindOf возвращает категорию ошибки; для неклассифицированных KindSystem
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindSystem
}

// IsRecoverable сообщает, можно ли продолжать работу после ошибки.
// Сетевые и транспортные сбои, таймауты захвата и ошибки кодирования
// переживаются повтором; остальное требует вмешательства.
func IsRecoverable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTransport, KindCapture, KindEncoding:
		return true
	default:
		return false
	}
}

// IsCritical сообщает, требует ли ошибка остановки агента
func IsCritical(err error) bool {
	switch KindOf(err) {
	case KindConfig, KindAuth, KindSecurity:
		return true
	default:
		return false
	}
}
