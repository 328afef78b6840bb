package commands

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"remote-agent/internal/config"
	"remote-agent/internal/types"
)

// CommandContext содержит общий контекст для всех команд
type CommandContext struct {
	Logger *zap.Logger
	Config *config.Config
}

// NewCommandContext создает новый контекст команды
func NewCommandContext(c *cli.Context) (*CommandContext, error) {
	cfg, loadErr := loadConfig(c)

	flagLevel := ""
	if c.IsSet("log-level") {
		flagLevel = c.String("log-level")
	}
	logger := createLogger(cfg.Logging, flagLevel)

	if loadErr != nil {
		logger.Warn("Failed to load config, using defaults", zap.Error(loadErr))
	}

	applyOverrides(c, cfg)

	return &CommandContext{
		Logger: logger,
		Config: cfg,
	}, nil
}

// createLogger создает логгер по секции логирования конфигурации.
// Флаг --log-level имеет приоритет над уровнем из файла.
func createLogger(cfg config.LoggingConfig, flagLevel string) *zap.Logger {
	level := cfg.Level
	if flagLevel != "" {
		level = flagLevel
	}

	var logLevel zapcore.Level
	switch level {
	case "debug":
		logLevel = zap.DebugLevel
	case "warn":
		logLevel = zap.WarnLevel
	case "error":
		logLevel = zap.ErrorLevel
	default:
		logLevel = zap.InfoLevel
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(logLevel)

	var outputs []string
	if cfg.EnableConsole {
		outputs = append(outputs, "stderr")
	}
	if cfg.File != "" {
		outputs = append(outputs, cfg.File)
	}
	if len(outputs) > 0 {
		zapConfig.OutputPaths = outputs
	}

	logger, _ := zapConfig.Build()
	return logger
}

// loadConfig загружает конфигурацию из файла. При ошибке загрузки
// возвращает конфигурацию по умолчанию вместе с ошибкой, чтобы
// вызывающий мог ее залогировать уже настроенным логгером.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return config.GetDefaultConfig(), err
		}
		return loaded, nil
	}
	return config.GetDefaultConfig(), nil
}

// applyOverrides применяет флаги командной строки поверх конфигурации
func applyOverrides(c *cli.Context, cfg *config.Config) {
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if c.IsSet("host") {
		cfg.Server.Host = c.String("host")
	}
	if c.IsSet("token") {
		cfg.Auth.Token = c.String("token")
		cfg.Auth.RequireAuth = true
	}
	if c.IsSet("quality") {
		if quality, err := types.ParseQuality(c.String("quality")); err == nil {
			cfg.Capture.Quality = quality
		}
	}
	if c.IsSet("framerate") {
		cfg.Capture.Framerate = c.Int("framerate")
	}
	if c.IsSet("no-video") {
		cfg.Capture.Video = !c.Bool("no-video")
	}
}
