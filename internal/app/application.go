// Package app собирает агента и HTTP сервер в одно приложение.
package app

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"remote-agent/internal/agent"
	"remote-agent/internal/api"
	"remote-agent/internal/config"
)

// shutdownTimeout предельное время graceful shutdown HTTP сервера
const shutdownTimeout = 10 * time.Second

// Application основное приложение
type Application struct {
	cfg    *config.Config
	logger *zap.Logger
	agent  *agent.Agent
	api    *api.Server
}

// NewApplication создает приложение с конфигурацией
func NewApplication(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	ag, err := agent.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Application{
		cfg:    cfg,
		logger: logger,
		agent:  ag,
		api:    api.NewServer(cfg, ag, logger),
	}, nil
}

// Agent возвращает агента приложения
func (app *Application) Agent() *agent.Agent {
	return app.agent
}

// Run запускает приложение и блокируется до отмены контекста или
// фатальной ошибки подсистемы
func (app *Application) Run(ctx context.Context) error {
	if err := app.agent.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.api.Start()
	})

	g.Go(func() error {
		select {
		case err := <-app.agent.Fatal():
			return err
		case <-gctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := app.api.Shutdown(shutdownCtx); err != nil {
			app.logger.Warn("HTTP server shutdown error", zap.Error(err))
		}
		app.agent.Stop()
		return nil
	})

	err := g.Wait()
	app.logger.Info("Application stopped")
	return err
}
