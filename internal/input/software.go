package input

import (
	"sync"

	"remote-agent/internal/agenterr"
	"remote-agent/pkg/protocol"
)

// SoftwareInjector программный инжектор. Хранит позицию курсора и
// нажатые клавиши, реальный ввод не выполняет. Используется на
// платформах без системного API ввода и в тестах.
type SoftwareInjector struct {
	mu          sync.Mutex
	x, y        int
	buttons     map[string]bool
	pressedKeys map[string]bool
}

// NewSoftwareInjector создает программный инжектор
func NewSoftwareInjector() *SoftwareInjector {
	return &SoftwareInjector{
		buttons:     make(map[string]bool),
		pressedKeys: make(map[string]bool),
	}
}

func (s *SoftwareInjector) InjectMouse(ev protocol.MouseEvent) error {
	if ev.X < 0 || ev.Y < 0 {
		return agenterr.Newf(agenterr.KindInput, "negative mouse coordinates: %d,%d", ev.X, ev.Y)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.x, s.y = ev.X, ev.Y
	switch ev.Action {
	case protocol.MouseDown:
		s.buttons[ev.Button] = true
	case protocol.MouseUp:
		delete(s.buttons, ev.Button)
	case protocol.MouseMove, protocol.MouseClick, protocol.MouseDoubleClick:
	default:
		return agenterr.Newf(agenterr.KindInput, "unknown mouse action: %q", ev.Action)
	}
	return nil
}

func (s *SoftwareInjector) InjectKeyboard(ev protocol.KeyboardEvent) error {
	if ev.Key == "" {
		return agenterr.New(agenterr.KindInput, "empty key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Action {
	case protocol.KeyDown:
		s.pressedKeys[ev.Key] = true
	case protocol.KeyUp:
		delete(s.pressedKeys, ev.Key)
	case protocol.KeyPress:
	default:
		return agenterr.Newf(agenterr.KindInput, "unknown keyboard action: %q", ev.Action)
	}
	return nil
}

func (s *SoftwareInjector) InjectTouch(ev protocol.TouchEvent) error {
	switch ev.Action {
	case protocol.TouchStart, protocol.TouchMove, protocol.TouchEnd:
		return nil
	default:
		return agenterr.Newf(agenterr.KindInput, "unknown touch action: %q", ev.Action)
	}
}

func (s *SoftwareInjector) InjectWheel(ev protocol.WheelEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.x, s.y = ev.X, ev.Y
	return nil
}

// Position возвращает текущую позицию курсора
func (s *SoftwareInjector) Position() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.x, s.y
}

// Pressed сообщает, нажата ли клавиша
func (s *SoftwareInjector) Pressed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pressedKeys[key]
}
