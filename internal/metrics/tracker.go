// Package metrics собирает показатели работы агента.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"remote-agent/internal/types"
)

// Tracker агрегирует показатели для status.request и экспортирует их
// в Prometheus. Снэпшот и счетчики обновляются из разных горутин.
type Tracker struct {
	mu   sync.Mutex
	snap types.Metrics

	registry *prometheus.Registry

	fpsGauge      prometheus.Gauge
	bitrateGauge  prometheus.Gauge
	cpuGauge      prometheus.Gauge
	memoryGauge   prometheus.Gauge
	framesSent    prometheus.Counter
	frameDrops    prometheus.Counter
	bytesSent     prometheus.Counter
	bytesReceived prometheus.Counter
	sessionsGauge prometheus.Gauge
}

// NewTracker создает трекер с собственным реестром Prometheus
func NewTracker() *Tracker {
	registry := prometheus.NewRegistry()

	t := &Tracker{
		registry: registry,
		fpsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agent", Name: "capture_fps", Help: "Achieved capture framerate.",
		}),
		bitrateGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agent", Name: "encoder_bitrate_bps", Help: "Target encoder bitrate.",
		}),
		cpuGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agent", Name: "cpu_usage_percent", Help: "Host CPU usage.",
		}),
		memoryGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agent", Name: "memory_usage_bytes", Help: "Host memory in use.",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agent", Name: "frames_sent_total", Help: "Frames delivered to viewers.",
		}),
		frameDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agent", Name: "frame_drops_total", Help: "Frames dropped under backpressure.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agent", Name: "bytes_sent_total", Help: "Payload bytes sent to viewers.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agent", Name: "bytes_received_total", Help: "Payload bytes received from viewers.",
		}),
		sessionsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agent", Name: "active_sessions", Help: "Active remote sessions.",
		}),
	}

	registry.MustRegister(
		t.fpsGauge, t.bitrateGauge, t.cpuGauge, t.memoryGauge,
		t.framesSent, t.frameDrops, t.bytesSent, t.bytesReceived,
		t.sessionsGauge,
	)

	return t
}

// Registry возвращает реестр Prometheus для HTTP экспорта
func (t *Tracker) Registry() *prometheus.Registry {
	return t.registry
}

// AddFrameSent учитывает отправленный кадр
func (t *Tracker) AddFrameSent(bytes int) {
	t.mu.Lock()
	t.snap.BytesSent += uint64(bytes)
	t.mu.Unlock()

	t.framesSent.Inc()
	t.bytesSent.Add(float64(bytes))
}

// AddFrameDrop учитывает потерянный кадр
func (t *Tracker) AddFrameDrop() {
	t.mu.Lock()
	t.snap.FrameDrops++
	t.mu.Unlock()

	t.frameDrops.Inc()
}

// AddBytesReceived учитывает принятые байты
func (t *Tracker) AddBytesReceived(bytes int) {
	t.mu.Lock()
	t.snap.BytesReceived += uint64(bytes)
	t.mu.Unlock()

	t.bytesReceived.Add(float64(bytes))
}

// SetFPS обновляет достигнутую частоту кадров
func (t *Tracker) SetFPS(fps float64) {
	t.mu.Lock()
	t.snap.FPS = fps
	t.mu.Unlock()

	t.fpsGauge.Set(fps)
}

// SetBitrate обновляет целевой битрейт
func (t *Tracker) SetBitrate(bitrate int) {
	t.mu.Lock()
	t.snap.Bitrate = bitrate
	t.mu.Unlock()

	t.bitrateGauge.Set(float64(bitrate))
}

// SetSystemUsage обновляет загрузку CPU и памяти
func (t *Tracker) SetSystemUsage(cpuPercent float64, memoryBytes uint64) {
	t.mu.Lock()
	t.snap.CPUUsage = cpuPercent
	t.snap.MemoryUsage = memoryBytes
	t.mu.Unlock()

	t.cpuGauge.Set(cpuPercent)
	t.memoryGauge.Set(float64(memoryBytes))
}

// SetSessions обновляет число активных сессий
func (t *Tracker) SetSessions(n int) {
	t.sessionsGauge.Set(float64(n))
}

// Snapshot возвращает копию текущих показателей
func (t *Tracker) Snapshot() types.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}
