package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"remote-agent/internal/agenterr"
	"remote-agent/internal/config"
	"remote-agent/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testCaptureConfig() config.CaptureConfig {
	return config.CaptureConfig{
		Video:          true,
		Quality:        types.QualityMedium,
		Framerate:      60,
		Codec:          types.CodecH264,
		Width:          64,
		Height:         48,
		CaptureTimeout: config.Duration(10 * time.Millisecond),
		RetryBackoff:   config.Duration(5 * time.Millisecond),
	}
}

// fakeBackend отдает заранее заданную последовательность ошибок,
// затем валидные кадры
type fakeBackend struct {
	mu     sync.Mutex
	script []error
	frames uint64
	closed bool
}

func (b *fakeBackend) EnumerateDisplays() ([]types.Display, error) {
	return []types.Display{{ID: "display-0", Primary: true}}, nil
}

func (b *fakeBackend) CaptureFrame(timeout time.Duration) (*types.RawFrame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.script) > 0 {
		err := b.script[0]
		b.script = b.script[1:]
		if err != nil {
			return nil, err
		}
	}

	b.frames++
	return &types.RawFrame{
		Width:       64,
		Height:      48,
		Format:      types.PixelFormatBGRA,
		Data:        make([]byte, 64*48*4),
		DisplayID:   "display-0",
		CapturedAt:  time.Now(),
		SequenceNum: b.frames,
	}, nil
}

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func collectFrames(t *testing.T, p *Pipeline, want int) []*types.RawFrame {
	t.Helper()

	var mu sync.Mutex
	var got []*types.RawFrame
	ready := make(chan struct{})

	err := p.Start(context.Background(), func(f *types.RawFrame) {
		mu.Lock()
		got = append(got, f)
		if len(got) == want {
			close(ready)
		}
		mu.Unlock()
	})
	require.NoError(t, err)

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frames")
	}

	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	return got
}

func TestPipelineDeliversFrames(t *testing.T) {
	backend := &fakeBackend{}
	p := NewPipeline(func(config.CaptureConfig) (Backend, error) {
		return backend, nil
	}, testCaptureConfig(), zap.NewNop())

	got := collectFrames(t, p, 5)

	assert.GreaterOrEqual(t, len(got), 5)
	assert.Equal(t, uint64(1), got[0].SequenceNum)
	assert.GreaterOrEqual(t, p.Stats().FramesCaptured, uint64(5))
	assert.NoError(t, p.Err())
}

func TestPipelineSkipsTimeouts(t *testing.T) {
	backend := &fakeBackend{script: []error{ErrTimeout, ErrTimeout, nil}}
	p := NewPipeline(func(config.CaptureConfig) (Backend, error) {
		return backend, nil
	}, testCaptureConfig(), zap.NewNop())

	collectFrames(t, p, 1)

	stats := p.Stats()
	assert.Equal(t, uint64(2), stats.SoftMisses)
	assert.Equal(t, uint64(0), stats.Recreates)
}

func TestPipelineRecreatesLostBackend(t *testing.T) {
	first := &fakeBackend{script: []error{ErrLost}}
	second := &fakeBackend{}

	backends := []Backend{first, second}
	p := NewPipeline(func(config.CaptureConfig) (Backend, error) {
		b := backends[0]
		backends = backends[1:]
		return b, nil
	}, testCaptureConfig(), zap.NewNop())

	collectFrames(t, p, 1)

	assert.Equal(t, uint64(1), p.Stats().Recreates)
	assert.True(t, first.closed)
	// После Stop закрыт именно пересозданный бэкенд, а не только первый
	assert.True(t, second.closed)
}

func TestPipelineStopsWhenRecreateFails(t *testing.T) {
	calls := 0
	p := NewPipeline(func(config.CaptureConfig) (Backend, error) {
		calls++
		if calls == 1 {
			return &fakeBackend{script: []error{ErrLost}}, nil
		}
		return nil, agenterr.New(agenterr.KindCapture, "no capture device")
	}, testCaptureConfig(), zap.NewNop())

	require.NoError(t, p.Start(context.Background(), func(*types.RawFrame) {}))

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop after failed recreation")
	}

	err := p.Err()
	require.Error(t, err)
	assert.Equal(t, agenterr.KindCapture, agenterr.KindOf(err))
	// factory была вызвана 1 + recreateAttempts раз
	assert.Equal(t, 1+recreateAttempts, calls)
}

func TestPipelineStartErrors(t *testing.T) {
	t.Run("factory failure is fatal", func(t *testing.T) {
		p := NewPipeline(func(config.CaptureConfig) (Backend, error) {
			return nil, agenterr.New(agenterr.KindCapture, "device busy")
		}, testCaptureConfig(), zap.NewNop())

		err := p.Start(context.Background(), func(*types.RawFrame) {})
		require.Error(t, err)
		assert.Equal(t, agenterr.KindCapture, agenterr.KindOf(err))
	})

	t.Run("double start", func(t *testing.T) {
		p := NewPipeline(func(config.CaptureConfig) (Backend, error) {
			return &fakeBackend{}, nil
		}, testCaptureConfig(), zap.NewNop())

		require.NoError(t, p.Start(context.Background(), func(*types.RawFrame) {}))
		defer p.Stop()

		assert.Error(t, p.Start(context.Background(), func(*types.RawFrame) {}))
	})
}

func TestPipelinePacing(t *testing.T) {
	cfg := testCaptureConfig()
	cfg.Framerate = 30

	backend := &fakeBackend{}
	p := NewPipeline(func(config.CaptureConfig) (Backend, error) {
		return backend, nil
	}, cfg, zap.NewNop())

	start := time.Now()
	require.NoError(t, p.Start(context.Background(), func(*types.RawFrame) {}))

	// Окно fps закрывается после первой полной секунды работы
	require.Eventually(t, func() bool {
		return p.Stats().FPS > 0
	}, 3*time.Second, 20*time.Millisecond)

	p.Stop()
	elapsed := time.Since(start)

	stats := p.Stats()
	assert.InDelta(t, 30, stats.FPS, 10)
	assert.InDelta(t, 30, float64(stats.FramesCaptured)/elapsed.Seconds(), 12)
}

func TestPipelineSetFramerate(t *testing.T) {
	p := NewPipeline(NewSoftwareBackend, testCaptureConfig(), zap.NewNop())

	require.NoError(t, p.SetFramerate(15))
	assert.Equal(t, 15, p.Framerate())

	assert.Error(t, p.SetFramerate(0))
	assert.Error(t, p.SetFramerate(121))
	assert.Equal(t, 15, p.Framerate())
}

func TestSoftwareBackend(t *testing.T) {
	backend, err := NewSoftwareBackend(testCaptureConfig())
	require.NoError(t, err)

	displays, err := backend.EnumerateDisplays()
	require.NoError(t, err)
	require.Len(t, displays, 1)
	assert.True(t, displays[0].Primary)

	frame, err := backend.CaptureFrame(10 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 64, frame.Width)
	assert.Equal(t, types.PixelFormatBGRA, frame.Format)
	assert.Len(t, frame.Data, 64*48*4)
	assert.Equal(t, uint64(1), frame.SequenceNum)

	second, err := backend.CaptureFrame(10 * time.Millisecond)
	require.NoError(t, err)
	assert.NotEqual(t, frame.Data, second.Data)

	require.NoError(t, backend.Close())
	_, err = backend.CaptureFrame(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrLost)
}

func TestSoftwareBackendRejectsBadResolution(t *testing.T) {
	cfg := testCaptureConfig()
	cfg.Width = 0
	_, err := NewSoftwareBackend(cfg)
	assert.Error(t, err)
}
