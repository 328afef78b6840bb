// Package input инжектирует события ввода от зрителя.
package input

import (
	"go.uber.org/zap"

	"remote-agent/internal/agenterr"
	"remote-agent/internal/config"
	"remote-agent/pkg/protocol"
)

// Injector платформенный инжектор событий ввода
type Injector interface {
	InjectMouse(ev protocol.MouseEvent) error
	InjectKeyboard(ev protocol.KeyboardEvent) error
	InjectTouch(ev protocol.TouchEvent) error
	InjectWheel(ev protocol.WheelEvent) error
}

// Manager проверяет разрешения из конфигурации и передает события
// платформенному инжектору. Запрещенные классы событий отклоняются
// до инжекции.
type Manager struct {
	cfg      config.InputConfig
	injector Injector
	logger   *zap.Logger
}

// NewManager создает менеджер ввода
func NewManager(cfg config.InputConfig, injector Injector, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		injector: injector,
		logger:   logger,
	}
}

// Mouse инжектирует событие мыши
func (m *Manager) Mouse(ev protocol.MouseEvent) error {
	if !m.cfg.EnableMouse {
		return agenterr.New(agenterr.KindInput, "mouse input is disabled")
	}
	if err := m.injector.InjectMouse(ev); err != nil {
		return agenterr.Wrap(agenterr.KindInput, "inject mouse event", err)
	}
	m.logger.Debug("Mouse event injected",
		zap.String("action", ev.Action),
		zap.Int("x", ev.X),
		zap.Int("y", ev.Y))
	return nil
}

// Keyboard инжектирует событие клавиатуры
func (m *Manager) Keyboard(ev protocol.KeyboardEvent) error {
	if !m.cfg.EnableKeyboard {
		return agenterr.New(agenterr.KindInput, "keyboard input is disabled")
	}
	if err := m.injector.InjectKeyboard(ev); err != nil {
		return agenterr.Wrap(agenterr.KindInput, "inject keyboard event", err)
	}
	m.logger.Debug("Keyboard event injected",
		zap.String("action", ev.Action),
		zap.String("key", ev.Key))
	return nil
}

// Touch инжектирует событие касания
func (m *Manager) Touch(ev protocol.TouchEvent) error {
	if !m.cfg.EnableTouch {
		return agenterr.New(agenterr.KindInput, "touch input is disabled")
	}
	if err := m.injector.InjectTouch(ev); err != nil {
		return agenterr.Wrap(agenterr.KindInput, "inject touch event", err)
	}
	return nil
}

// Wheel инжектирует событие прокрутки; разрешение общее с мышью
func (m *Manager) Wheel(ev protocol.WheelEvent) error {
	if !m.cfg.EnableMouse {
		return agenterr.New(agenterr.KindInput, "mouse input is disabled")
	}
	if err := m.injector.InjectWheel(ev); err != nil {
		return agenterr.Wrap(agenterr.KindInput, "inject wheel event", err)
	}
	return nil
}
