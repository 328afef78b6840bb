package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"remote-agent/internal/agenterr"
	"remote-agent/internal/types"
)

// Duration обертка над time.Duration для разбора значений
// вида "30s" или "100ms" из YAML
type Duration time.Duration

// D возвращает значение как time.Duration
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML разбирает строковую запись длительности
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML сериализует длительность в строку
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config представляет конфигурацию агента
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Capture   CaptureConfig   `yaml:"capture"`
	Input     InputConfig     `yaml:"input"`
	Transport TransportConfig `yaml:"transport"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig настройки HTTP сервера агента
type ServerConfig struct {
	Host              string   `yaml:"host"`
	Port              int      `yaml:"port"`
	MaxConnections    int      `yaml:"max_connections"`
	ConnectionTimeout Duration `yaml:"connection_timeout"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
}

// AuthConfig настройки аутентификации
type AuthConfig struct {
	Token          string   `yaml:"token"`
	RequireAuth    bool     `yaml:"require_auth"`
	SessionTimeout Duration `yaml:"session_timeout"`
}

// CaptureConfig настройки захвата и кодирования экрана
type CaptureConfig struct {
	Video          bool             `yaml:"video"`
	Audio          bool             `yaml:"audio"`
	Quality        types.Quality    `yaml:"quality"`
	Framerate      int              `yaml:"framerate"`
	Codec          types.VideoCodec `yaml:"codec"`
	Width          int              `yaml:"width"`
	Height         int              `yaml:"height"`
	MultiMonitor   bool             `yaml:"multi_monitor"`
	CaptureCursor  bool             `yaml:"capture_cursor"`
	CaptureTimeout Duration         `yaml:"capture_timeout"`
	RetryBackoff   Duration         `yaml:"retry_backoff"`
}

// InputConfig настройки инжекции ввода
type InputConfig struct {
	EnableMouse      bool    `yaml:"enable_mouse"`
	EnableKeyboard   bool    `yaml:"enable_keyboard"`
	EnableTouch      bool    `yaml:"enable_touch"`
	MouseSensitivity float64 `yaml:"mouse_sensitivity"`
}

// TransportConfig настройки транспортного слоя
type TransportConfig struct {
	WebRTCEnabled     bool     `yaml:"webrtc_enabled"`
	WebSocketEnabled  bool     `yaml:"websocket_enabled"`
	ICEServers        []string `yaml:"ice_servers"`
	EnableCompression bool     `yaml:"enable_compression"`
	FrameQueueSize    int      `yaml:"frame_queue_size"`
	DropPolicy        string   `yaml:"drop_policy"`
}

// SecurityConfig настройки безопасности
type SecurityConfig struct {
	AllowedOrigins  []string `yaml:"allowed_origins"`
	AllowedIPs      []string `yaml:"allowed_ips"`
	EnableAuditLog  bool     `yaml:"enable_audit_log"`
	RateLimitWindow Duration `yaml:"rate_limit_window"`
	RateLimitBudget int      `yaml:"rate_limit_budget"`
}

// LoggingConfig настройки логирования
type LoggingConfig struct {
	Level         string `yaml:"level"`
	File          string `yaml:"file"`
	EnableConsole bool   `yaml:"enable_console"`
}

// LoadConfig загружает конфигурацию из файла
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.KindConfig, "read config file", err)
	}

	cfg := GetDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, agenterr.Wrap(agenterr.KindConfig, "parse config file", err)
	}

	return cfg, nil
}

// GetDefaultConfig возвращает конфигурацию по умолчанию
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			MaxConnections:    10,
			ConnectionTimeout: Duration(30 * time.Second),
			HeartbeatInterval: Duration(30 * time.Second),
		},
		Auth: AuthConfig{
			RequireAuth:    false,
			SessionTimeout: Duration(30 * time.Second),
		},
		Capture: CaptureConfig{
			Video:          true,
			Audio:          false,
			Quality:        types.QualityMedium,
			Framerate:      30,
			Codec:          types.CodecH264,
			Width:          1920,
			Height:         1080,
			CaptureCursor:  true,
			CaptureTimeout: Duration(50 * time.Millisecond),
			RetryBackoff:   Duration(100 * time.Millisecond),
		},
		Input: InputConfig{
			EnableMouse:      true,
			EnableKeyboard:   true,
			EnableTouch:      false,
			MouseSensitivity: 1.0,
		},
		Transport: TransportConfig{
			WebRTCEnabled:     true,
			WebSocketEnabled:  true,
			ICEServers:        []string{"stun:stun.l.google.com:19302"},
			EnableCompression: false,
			FrameQueueSize:    32,
			DropPolicy:        "oldest",
		},
		Security: SecurityConfig{
			AllowedOrigins:  []string{"*"},
			RateLimitWindow: Duration(time.Minute),
			RateLimitBudget: 600,
		},
		Logging: LoggingConfig{
			Level:         "info",
			EnableConsole: true,
		},
	}
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return agenterr.Newf(agenterr.KindConfig, "invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return agenterr.New(agenterr.KindConfig, "server host must not be empty")
	}
	// Нулевой интервал уронит тикер пингов в цикле записи
	if c.Server.HeartbeatInterval <= 0 {
		return agenterr.New(agenterr.KindConfig, "heartbeat interval must be positive")
	}
	if c.Capture.Framerate < 1 || c.Capture.Framerate > 120 {
		return agenterr.Newf(agenterr.KindConfig, "framerate out of range [1, 120]: %d", c.Capture.Framerate)
	}
	if !c.Capture.Quality.Valid() {
		return agenterr.Newf(agenterr.KindConfig, "invalid capture quality: %d", c.Capture.Quality)
	}
	if c.Capture.Width <= 0 || c.Capture.Height <= 0 {
		return agenterr.Newf(agenterr.KindConfig, "invalid capture resolution: %dx%d", c.Capture.Width, c.Capture.Height)
	}
	if !c.Transport.WebRTCEnabled && !c.Transport.WebSocketEnabled {
		return agenterr.New(agenterr.KindConfig, "at least one transport must be enabled")
	}
	if c.Transport.FrameQueueSize <= 0 {
		return agenterr.Newf(agenterr.KindConfig, "frame queue size must be positive: %d", c.Transport.FrameQueueSize)
	}
	switch c.Transport.DropPolicy {
	case "oldest", "newest":
	default:
		return agenterr.Newf(agenterr.KindConfig, "unknown drop policy: %q", c.Transport.DropPolicy)
	}
	if c.Auth.RequireAuth && c.Auth.Token == "" {
		return agenterr.New(agenterr.KindConfig, "auth token is required when require_auth is enabled")
	}
	if c.Auth.SessionTimeout <= 0 {
		return agenterr.New(agenterr.KindConfig, "session timeout must be positive")
	}
	return nil
}
