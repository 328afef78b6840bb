// Package capture отвечает за захват экрана и темп подачи кадров.
package capture

import (
	"errors"
	"time"

	"remote-agent/internal/config"
	"remote-agent/internal/types"
)

// ErrTimeout кадр не изменился за отведенное время, не ошибка
var ErrTimeout = errors.New("capture: frame wait timed out")

// ErrLost поверхность захвата потеряна, бэкенд нужно пересоздать.
// Возникает при смене разрешения, переключении пользователя или
// выходе дисплея из строя.
var ErrLost = errors.New("capture: surface lost")

// Backend источник сырых кадров одного дисплея
type Backend interface {
	EnumerateDisplays() ([]types.Display, error)
	CaptureFrame(timeout time.Duration) (*types.RawFrame, error)
	Close() error
}

// BackendFactory создает бэкенд захвата по конфигурации
type BackendFactory func(cfg config.CaptureConfig) (Backend, error)
