package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"remote-agent/internal/app"
)

// GetRunCommand возвращает команду запуска агента
func GetRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Start the remote desktop agent",
		Description: `Start the agent: screen capture, encoding and viewer transports.

Examples:
  remote-agent run --port 8080
  remote-agent run --token secret --quality high --framerate 60`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8080,
				Usage:   "HTTP server port",
			},
			&cli.StringFlag{
				Name:  "host",
				Value: "0.0.0.0",
				Usage: "HTTP server host",
			},
			&cli.StringFlag{
				Name:  "token",
				Usage: "Require viewer authentication with this token",
			},
			&cli.StringFlag{
				Name:  "quality",
				Usage: "Stream quality: low, medium, high, ultra",
			},
			&cli.IntFlag{
				Name:  "framerate",
				Usage: "Capture framerate, 1-120",
			},
			&cli.BoolFlag{
				Name:  "no-video",
				Usage: "Disable video capture",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer ctx.Logger.Sync()

			ctx.Logger.Info("Starting remote agent",
				zap.String("host", ctx.Config.Server.Host),
				zap.Int("port", ctx.Config.Server.Port),
				zap.String("quality", ctx.Config.Capture.Quality.String()),
				zap.Int("framerate", ctx.Config.Capture.Framerate))

			application, err := app.NewApplication(ctx.Config, ctx.Logger)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return application.Run(runCtx)
		},
	}
}
