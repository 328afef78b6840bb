package capture

import (
	"time"

	"remote-agent/internal/agenterr"
	"remote-agent/internal/config"
	"remote-agent/internal/types"
)

// softwareBackend программный бэкенд захвата. Используется на платформах
// без аппаратной дупликации экрана и в тестах: рисует градиент,
// меняющийся от кадра к кадру.
type softwareBackend struct {
	width   int
	height  int
	display types.Display
	seq     uint64
	closed  bool
}

// NewSoftwareBackend создает программный бэкенд захвата
func NewSoftwareBackend(cfg config.CaptureConfig) (Backend, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, agenterr.Newf(agenterr.KindCapture, "invalid resolution %dx%d", cfg.Width, cfg.Height)
	}

	return &softwareBackend{
		width:  cfg.Width,
		height: cfg.Height,
		display: types.Display{
			ID:          "display-0",
			Name:        "Virtual Display",
			Width:       cfg.Width,
			Height:      cfg.Height,
			Primary:     true,
			RefreshRate: 60,
		},
	}, nil
}

func (b *softwareBackend) EnumerateDisplays() ([]types.Display, error) {
	if b.closed {
		return nil, agenterr.New(agenterr.KindCapture, "backend is closed")
	}
	return []types.Display{b.display}, nil
}

func (b *softwareBackend) CaptureFrame(timeout time.Duration) (*types.RawFrame, error) {
	if b.closed {
		return nil, ErrLost
	}

	b.seq++
	data := make([]byte, b.width*b.height*4)
	shift := byte(b.seq % 256)
	for y := 0; y < b.height; y++ {
		row := y * b.width * 4
		for x := 0; x < b.width; x++ {
			i := row + x*4
			data[i] = byte(x) + shift   // B
			data[i+1] = byte(y) + shift // G
			data[i+2] = shift           // R
			data[i+3] = 0xFF            // A
		}
	}

	return &types.RawFrame{
		Width:       b.width,
		Height:      b.height,
		Format:      types.PixelFormatBGRA,
		Data:        data,
		DisplayID:   b.display.ID,
		CapturedAt:  time.Now(),
		SequenceNum: b.seq,
	}, nil
}

func (b *softwareBackend) Close() error {
	b.closed = true
	return nil
}
