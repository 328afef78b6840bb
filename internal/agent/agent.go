// Package agent связывает захват, кодирование, транспорт и сессии
// в единый жизненный цикл.
package agent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"remote-agent/internal/agenterr"
	"remote-agent/internal/capture"
	"remote-agent/internal/config"
	"remote-agent/internal/encoder"
	"remote-agent/internal/input"
	"remote-agent/internal/metrics"
	"remote-agent/internal/session"
	"remote-agent/internal/sysinfo"
	"remote-agent/internal/transport"
	"remote-agent/internal/types"
)

// Version версия агента, отдается в status.request и REST API
const Version = "1.0.0"

// statusRefreshInterval период обновления системных показателей
const statusRefreshInterval = 5 * time.Second

// Agent оркестратор: владеет всеми подсистемами и маршрутизирует
// входящие сообщения зрителей
type Agent struct {
	cfg    *config.Config
	logger *zap.Logger

	sessions  *session.Registry
	transport *transport.Manager
	pipeline  *capture.Pipeline
	encoder   *encoder.Encoder
	input     *input.Manager
	tracker   *metrics.Tracker

	system    types.SystemInfo
	startTime time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	fatal   chan error
}

// New собирает агента из конфигурации. Возвращает ошибку при
// невалидной конфигурации или недоступном бэкенде захвата.
func New(cfg *config.Config, logger *zap.Logger) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	system, err := sysinfo.Collect()
	if err != nil {
		logger.Warn("System info collection incomplete", zap.Error(err))
	}

	probe, err := capture.NewSoftwareBackend(cfg.Capture)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.KindCapture, "probe capture backend", err)
	}
	displays, err := probe.EnumerateDisplays()
	probe.Close()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.KindCapture, "enumerate displays", err)
	}
	system.Displays = displays

	tracker := metrics.NewTracker()

	a := &Agent{
		cfg:       cfg,
		logger:    logger,
		sessions:  session.NewRegistry(cfg.Auth.SessionTimeout.D(), logger),
		transport: transport.NewManager(cfg, tracker, logger),
		pipeline:  capture.NewPipeline(capture.NewSoftwareBackend, cfg.Capture, logger),
		encoder:   encoder.NewEncoder(cfg.Capture, cfg.Transport.EnableCompression, logger),
		input:     input.NewManager(cfg.Input, input.NewSoftwareInjector(), logger),
		tracker:   tracker,
		system:    system,
		fatal:     make(chan error, 1),
	}

	return a, nil
}

// Start запускает подсистемы агента
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return agenterr.New(agenterr.KindSystem, "agent already started")
	}

	if err := a.encoder.Init(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.startTime = time.Now()

	a.transport.SetHandler(a.route)
	a.sessions.Start(runCtx)

	if err := a.pipeline.Start(runCtx, a.handleFrame); err != nil {
		cancel()
		a.sessions.Stop()
		return err
	}

	a.wg.Add(1)
	go a.statusLoop(runCtx)

	a.wg.Add(1)
	go a.watchPipeline(runCtx)

	a.started = true
	a.logger.Info("Agent started",
		zap.String("version", Version),
		zap.Int("displays", len(a.system.Displays)))

	return nil
}

// Stop останавливает подсистемы в обратном порядке и ждет
// завершения всех горутин
func (a *Agent) Stop() {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return
	}
	a.started = false
	a.mu.Unlock()

	a.cancel()
	a.pipeline.Stop()
	a.transport.Stop()
	a.sessions.Stop()

	for _, s := range a.sessions.GetAll() {
		a.sessions.Destroy(s.ID)
	}

	a.wg.Wait()
	a.logger.Info("Agent stopped")
}

// Fatal сигнализирует о невосстановимой ошибке подсистемы агента
func (a *Agent) Fatal() <-chan error {
	return a.fatal
}

// Status возвращает сводный статус агента
func (a *Agent) Status() types.AgentStatus {
	snap := a.tracker.Snapshot()
	snap.FPS = a.pipeline.Stats().FPS
	snap.Bitrate = a.encoder.Bitrate()

	a.mu.Lock()
	startTime := a.startTime
	a.mu.Unlock()

	return types.AgentStatus{
		Version:       Version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Sessions:      a.sessions.Count(),
		Connections:   a.transport.Count(),
		System:        a.system,
		Metrics:       snap,
	}
}

// Sessions возвращает реестр сессий
func (a *Agent) Sessions() *session.Registry {
	return a.sessions
}

// Transport возвращает менеджер соединений
func (a *Agent) Transport() *transport.Manager {
	return a.transport
}

// Tracker возвращает трекер метрик
func (a *Agent) Tracker() *metrics.Tracker {
	return a.tracker
}

// Displays возвращает список дисплеев хоста
func (a *Agent) Displays() []types.Display {
	return a.system.Displays
}

// handleFrame кодирует захваченный кадр и рассылает его зрителям.
// Ошибка кодирования теряет один кадр, следующий пойдет обычным путем.
func (a *Agent) handleFrame(raw *types.RawFrame) {
	encoded, err := a.encoder.Encode(raw)
	if err != nil {
		a.tracker.AddFrameDrop()
		a.logger.Warn("Frame encoding failed", zap.Error(err))
		return
	}

	for _, result := range a.transport.BroadcastFrame(encoded) {
		a.sessions.RecordFrameByClient(result.ClientID, result.Bytes, result.Dropped)
	}
}

// statusLoop периодически обновляет системные показатели
func (a *Agent) statusLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(statusRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cpuPercent, memoryUsed := sysinfo.Usage()
			a.tracker.SetSystemUsage(cpuPercent, memoryUsed)
			a.tracker.SetFPS(a.pipeline.Stats().FPS)
			a.tracker.SetBitrate(a.encoder.Bitrate())
			a.tracker.SetSessions(a.sessions.Count())
		case <-ctx.Done():
			return
		}
	}
}

// watchPipeline следит за самопроизвольным завершением конвейера
// захвата. Его фатальная ошибка фатальна для всего агента.
func (a *Agent) watchPipeline(ctx context.Context) {
	defer a.wg.Done()

	select {
	case <-a.pipeline.Done():
		if err := a.pipeline.Err(); err != nil {
			a.logger.Error("Capture pipeline failed", zap.Error(err))
			select {
			case a.fatal <- err:
			default:
			}
		}
	case <-ctx.Done():
	}
}
