package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Quality уровень качества видеопотока
type Quality int

const (
	QualityLow Quality = iota
	QualityMedium
	QualityHigh
	QualityUltra
)

var qualityNames = map[Quality]string{
	QualityLow:    "low",
	QualityMedium: "medium",
	QualityHigh:   "high",
	QualityUltra:  "ultra",
}

// Bitrate возвращает целевой битрейт для уровня качества (бит/с)
func (q Quality) Bitrate() int {
	switch q {
	case QualityLow:
		return 500_000
	case QualityMedium:
		return 1_500_000
	case QualityHigh:
		return 3_000_000
	case QualityUltra:
		return 6_000_000
	default:
		return 1_500_000
	}
}

func (q Quality) String() string {
	if name, ok := qualityNames[q]; ok {
		return name
	}
	return "medium"
}

// Valid проверяет, что значение входит в известный диапазон
func (q Quality) Valid() bool {
	_, ok := qualityNames[q]
	return ok
}

// MarshalText сериализует качество как строку для JSON и YAML
func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText разбирает строковое представление качества
func (q *Quality) UnmarshalText(text []byte) error {
	parsed, err := ParseQuality(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// ParseQuality разбирает строку в уровень качества
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return QualityLow, nil
	case "medium":
		return QualityMedium, nil
	case "high":
		return QualityHigh, nil
	case "ultra":
		return QualityUltra, nil
	default:
		return QualityMedium, fmt.Errorf("unknown quality: %q", s)
	}
}

// VideoCodec видеокодек потока
type VideoCodec string

const (
	CodecH264 VideoCodec = "h264"
	CodecVP8  VideoCodec = "vp8"
	CodecVP9  VideoCodec = "vp9"
	CodecAV1  VideoCodec = "av1"
)

// ParseCodec разбирает строку в кодек
func ParseCodec(s string) (VideoCodec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "h264", "avc":
		return CodecH264, nil
	case "vp8":
		return CodecVP8, nil
	case "vp9":
		return CodecVP9, nil
	case "av1":
		return CodecAV1, nil
	default:
		return CodecH264, fmt.Errorf("unknown codec: %q", s)
	}
}

// PixelFormat формат пикселей захваченного кадра
type PixelFormat string

const (
	PixelFormatBGRA PixelFormat = "bgra"
	PixelFormatRGBA PixelFormat = "rgba"
)

// RawFrame сырой кадр, полученный от бэкенда захвата
type RawFrame struct {
	Width       int
	Height      int
	Format      PixelFormat
	Data        []byte
	DisplayID   string
	CapturedAt  time.Time
	SequenceNum uint64
}

// EncodedFrame закодированный кадр, готовый к отправке
type EncodedFrame struct {
	ID         string     `json:"id"`
	Timestamp  uint64     `json:"timestamp"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Codec      VideoCodec `json:"codec"`
	Quality    Quality    `json:"quality"`
	Keyframe   bool       `json:"is_keyframe"`
	Compressed bool       `json:"compressed"`
	Payload    []byte     `json:"payload"`
}

// Display описание подключенного дисплея
type Display struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Primary     bool   `json:"primary"`
	RefreshRate int    `json:"refresh_rate"`
}

// Capabilities возможности, согласованные при создании сессии
type Capabilities struct {
	Video        bool `json:"video"`
	Audio        bool `json:"audio"`
	Clipboard    bool `json:"clipboard"`
	FileTransfer bool `json:"file_transfer"`
	Touch        bool `json:"touch"`
	MultiMonitor bool `json:"multi_monitor"`
}

// SessionStats накопленная статистика сессии
type SessionStats struct {
	FramesSent    uint64 `json:"frames_sent"`
	FramesDropped uint64 `json:"frames_dropped"`
	BytesSent     uint64 `json:"bytes_sent"`
	BytesReceived uint64 `json:"bytes_received"`
	Reconnections uint32 `json:"reconnections"`
}

// Session активная сессия удаленного доступа
type Session struct {
	ID           string       `json:"id"`
	ClientID     string       `json:"client_id"`
	StartTime    time.Time    `json:"start_time"`
	LastActivity time.Time    `json:"last_activity"`
	Quality      Quality      `json:"quality"`
	Capabilities Capabilities `json:"capabilities"`
	Stats        SessionStats `json:"stats"`
}

// ConnectionState состояние транспортного соединения
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText сериализует состояние как строку
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// TransportKind тип транспорта соединения
type TransportKind string

const (
	TransportWebRTC    TransportKind = "webrtc"
	TransportWebSocket TransportKind = "websocket"
)

// ConnectionInfo информация о транспортном соединении
type ConnectionInfo struct {
	ID           string          `json:"id"`
	Kind         TransportKind   `json:"kind"`
	State        ConnectionState `json:"state"`
	ClientID     string          `json:"client_id"`
	StartTime    time.Time       `json:"start_time"`
	LastActivity time.Time       `json:"last_activity"`
}

// Metrics показатели агента на текущий момент
type Metrics struct {
	FPS           float64 `json:"fps"`
	LatencyMS     float64 `json:"latency_ms"`
	Jitter        float64 `json:"jitter"`
	Bitrate       int     `json:"bitrate"`
	PacketLoss    float64 `json:"packet_loss"`
	FrameDrops    uint64  `json:"frame_drops"`
	BytesSent     uint64  `json:"bytes_sent"`
	BytesReceived uint64  `json:"bytes_received"`
	CPUUsage      float64 `json:"cpu_usage"`
	MemoryUsage   uint64  `json:"memory_usage"`
}

// SystemInfo сведения о хосте, на котором работает агент
type SystemInfo struct {
	OS              string    `json:"os"`
	OSVersion       string    `json:"os_version"`
	Architecture    string    `json:"architecture"`
	Hostname        string    `json:"hostname"`
	CPUCores        int       `json:"cpu_cores"`
	MemoryTotal     uint64    `json:"memory_total"`
	MemoryAvailable uint64    `json:"memory_available"`
	Displays        []Display `json:"displays"`
}

// AgentStatus сводный статус агента для status.request и REST API
type AgentStatus struct {
	Version       string     `json:"version"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	Sessions      int        `json:"sessions"`
	Connections   int        `json:"connections"`
	System        SystemInfo `json:"system"`
	Metrics       Metrics    `json:"metrics"`
}

// NewID генерирует уникальный идентификатор сессии или соединения
func NewID() string {
	return uuid.NewString()
}
