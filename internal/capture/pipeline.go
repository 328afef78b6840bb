package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"remote-agent/internal/agenterr"
	"remote-agent/internal/config"
	"remote-agent/internal/types"
)

// recreateAttempts сколько раз подряд пробуем пересоздать бэкенд
// после потери поверхности, прежде чем остановить конвейер
const recreateAttempts = 3

// Sink получатель захваченных кадров. Вызывается из горутины конвейера,
// не должен блокироваться дольше интервала кадра.
type Sink func(*types.RawFrame)

// Stats счетчики конвейера захвата
type Stats struct {
	FPS            float64
	FramesCaptured uint64
	SoftMisses     uint64
	Recreates      uint64
}

// Pipeline цикл захвата с заданным темпом. Кадры идут в Sink,
// частота кадров меняется на лету через SetFramerate.
type Pipeline struct {
	factory BackendFactory
	cfg     config.CaptureConfig
	logger  *zap.Logger

	mu        sync.Mutex
	framerate int
	fps       float64

	frames    atomic.Uint64
	misses    atomic.Uint64
	recreates atomic.Uint64

	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
	started bool
}

// NewPipeline создает конвейер захвата
func NewPipeline(factory BackendFactory, cfg config.CaptureConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		factory:   factory,
		cfg:       cfg,
		logger:    logger,
		framerate: cfg.Framerate,
	}
}

// Start создает бэкенд и запускает цикл захвата.
// Ошибка создания бэкенда фатальна: без захвата агент бесполезен.
func (p *Pipeline) Start(ctx context.Context, sink Sink) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return agenterr.New(agenterr.KindCapture, "pipeline already started")
	}

	backend, err := p.factory(p.cfg)
	if err != nil {
		return agenterr.Wrap(agenterr.KindCapture, "create capture backend", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.started = true

	go p.run(runCtx, backend, sink)

	p.logger.Info("Capture pipeline started",
		zap.Int("framerate", p.framerate),
		zap.Int("width", p.cfg.Width),
		zap.Int("height", p.cfg.Height))

	return nil
}

// Stop останавливает цикл захвата и ждет его завершения
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
}

// Err возвращает фатальную ошибку цикла захвата, если он завершился сам
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runErr
}

// Done сигнализирует о завершении цикла захвата
func (p *Pipeline) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// SetFramerate меняет частоту кадров на лету
func (p *Pipeline) SetFramerate(framerate int) error {
	if framerate < 1 || framerate > 120 {
		return agenterr.Newf(agenterr.KindConfig, "framerate out of range [1, 120]: %d", framerate)
	}

	p.mu.Lock()
	p.framerate = framerate
	p.mu.Unlock()

	p.logger.Info("Capture framerate changed", zap.Int("framerate", framerate))
	return nil
}

// Framerate возвращает текущую частоту кадров
func (p *Pipeline) Framerate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.framerate
}

// Stats возвращает счетчики конвейера
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	fps := p.fps
	p.mu.Unlock()

	return Stats{
		FPS:            fps,
		FramesCaptured: p.frames.Load(),
		SoftMisses:     p.misses.Load(),
		Recreates:      p.recreates.Load(),
	}
}

func (p *Pipeline) interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Second / time.Duration(p.framerate)
}

// run основной цикл: выдерживает темп, захватывает кадр, передает в sink.
// Таймаут захвата не ошибка, потеря поверхности лечится пересозданием
// бэкенда, остальные ошибки ждут RetryBackoff перед повтором.
func (p *Pipeline) run(ctx context.Context, backend Backend, sink Sink) {
	defer close(p.done)
	// backend переприсваивается при пересоздании, закрывать надо текущий
	defer func() { backend.Close() }()

	var last time.Time
	windowStart := time.Now()
	var windowFrames int

	for ctx.Err() == nil {
		if !last.IsZero() {
			if !sleepUntil(ctx, last.Add(p.interval())) {
				break
			}
		}
		last = time.Now()

		frame, err := backend.CaptureFrame(p.cfg.CaptureTimeout.D())
		switch {
		case err == nil:
			sink(frame)
			p.frames.Add(1)
			windowFrames++

			if elapsed := time.Since(windowStart); elapsed >= time.Second {
				p.mu.Lock()
				p.fps = float64(windowFrames) / elapsed.Seconds()
				p.mu.Unlock()
				windowStart = time.Now()
				windowFrames = 0
			}

		case errors.Is(err, ErrTimeout):
			// Содержимое экрана не изменилось, кадра нет
			p.misses.Add(1)

		case errors.Is(err, ErrLost):
			p.logger.Warn("Capture surface lost, recreating backend")
			backend.Close()

			recreated, rerr := p.recreateBackend(ctx)
			if rerr != nil {
				p.mu.Lock()
				p.runErr = agenterr.Wrap(agenterr.KindCapture, "recreate capture backend", rerr)
				p.mu.Unlock()
				p.logger.Error("Capture backend recreation failed, stopping pipeline", zap.Error(rerr))
				return
			}
			backend = recreated
			p.recreates.Add(1)
			last = time.Time{}

		default:
			p.logger.Error("Capture error", zap.Error(err))
			if !sleepFor(ctx, p.cfg.RetryBackoff.D()) {
				return
			}
		}
	}
}

func (p *Pipeline) recreateBackend(ctx context.Context) (Backend, error) {
	var lastErr error
	for attempt := 1; attempt <= recreateAttempts; attempt++ {
		backend, err := p.factory(p.cfg)
		if err == nil {
			return backend, nil
		}
		lastErr = err
		p.logger.Warn("Capture backend init failed",
			zap.Int("attempt", attempt),
			zap.Error(err))

		if !sleepFor(ctx, p.cfg.RetryBackoff.D()) {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func sleepUntil(ctx context.Context, deadline time.Time) bool {
	return sleepFor(ctx, time.Until(deadline))
}

func sleepFor(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
