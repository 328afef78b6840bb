package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"remote-agent/internal/agenterr"
	"remote-agent/internal/config"
	"remote-agent/pkg/protocol"
)

func allEnabled() config.InputConfig {
	return config.InputConfig{
		EnableMouse:      true,
		EnableKeyboard:   true,
		EnableTouch:      true,
		MouseSensitivity: 1.0,
	}
}

func TestManagerGating(t *testing.T) {
	cases := []struct {
		name   string
		cfg    config.InputConfig
		inject func(*Manager) error
	}{
		{
			"mouse disabled",
			config.InputConfig{EnableKeyboard: true, EnableTouch: true},
			func(m *Manager) error {
				return m.Mouse(protocol.MouseEvent{Action: protocol.MouseMove, X: 1, Y: 1})
			},
		},
		{
			"keyboard disabled",
			config.InputConfig{EnableMouse: true, EnableTouch: true},
			func(m *Manager) error {
				return m.Keyboard(protocol.KeyboardEvent{Action: protocol.KeyPress, Key: "a"})
			},
		},
		{
			"touch disabled",
			config.InputConfig{EnableMouse: true, EnableKeyboard: true},
			func(m *Manager) error {
				return m.Touch(protocol.TouchEvent{Action: protocol.TouchStart})
			},
		},
		{
			"wheel follows mouse flag",
			config.InputConfig{EnableKeyboard: true, EnableTouch: true},
			func(m *Manager) error {
				return m.Wheel(protocol.WheelEvent{DeltaY: -120})
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager(tc.cfg, NewSoftwareInjector(), zap.NewNop())

			err := tc.inject(m)
			require.Error(t, err)
			assert.Equal(t, agenterr.KindInput, agenterr.KindOf(err))
		})
	}
}

func TestManagerPassesThrough(t *testing.T) {
	inj := NewSoftwareInjector()
	m := NewManager(allEnabled(), inj, zap.NewNop())

	require.NoError(t, m.Mouse(protocol.MouseEvent{Action: protocol.MouseMove, X: 100, Y: 200}))
	require.NoError(t, m.Keyboard(protocol.KeyboardEvent{Action: protocol.KeyDown, Key: "shift"}))
	require.NoError(t, m.Touch(protocol.TouchEvent{Action: protocol.TouchStart}))
	require.NoError(t, m.Wheel(protocol.WheelEvent{X: 10, Y: 20, DeltaY: -120}))

	x, y := inj.Position()
	assert.Equal(t, 10, x)
	assert.Equal(t, 20, y)
	assert.True(t, inj.Pressed("shift"))
}

func TestManagerWrapsInjectorErrors(t *testing.T) {
	m := NewManager(allEnabled(), NewSoftwareInjector(), zap.NewNop())

	err := m.Mouse(protocol.MouseEvent{Action: protocol.MouseMove, X: -1, Y: 5})
	require.Error(t, err)
	assert.Equal(t, agenterr.KindInput, agenterr.KindOf(err))
}

func TestSoftwareInjectorMouseState(t *testing.T) {
	inj := NewSoftwareInjector()

	require.NoError(t, inj.InjectMouse(protocol.MouseEvent{
		Action: protocol.MouseDown, Button: protocol.ButtonLeft, X: 5, Y: 7,
	}))
	x, y := inj.Position()
	assert.Equal(t, 5, x)
	assert.Equal(t, 7, y)

	require.NoError(t, inj.InjectMouse(protocol.MouseEvent{
		Action: protocol.MouseUp, Button: protocol.ButtonLeft, X: 5, Y: 7,
	}))

	err := inj.InjectMouse(protocol.MouseEvent{Action: "drag", X: 1, Y: 1})
	assert.Error(t, err)
}

func TestSoftwareInjectorKeyboardState(t *testing.T) {
	inj := NewSoftwareInjector()

	require.NoError(t, inj.InjectKeyboard(protocol.KeyboardEvent{Action: protocol.KeyDown, Key: "ctrl"}))
	assert.True(t, inj.Pressed("ctrl"))

	require.NoError(t, inj.InjectKeyboard(protocol.KeyboardEvent{Action: protocol.KeyUp, Key: "ctrl"}))
	assert.False(t, inj.Pressed("ctrl"))

	assert.Error(t, inj.InjectKeyboard(protocol.KeyboardEvent{Action: protocol.KeyDown, Key: ""}))
	assert.Error(t, inj.InjectKeyboard(protocol.KeyboardEvent{Action: "hold", Key: "a"}))
}

func TestSoftwareInjectorTouch(t *testing.T) {
	inj := NewSoftwareInjector()

	for _, action := range []string{protocol.TouchStart, protocol.TouchMove, protocol.TouchEnd} {
		assert.NoError(t, inj.InjectTouch(protocol.TouchEvent{Action: action}))
	}
	assert.Error(t, inj.InjectTouch(protocol.TouchEvent{Action: "swipe"}))
}
