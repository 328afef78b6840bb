package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"remote-agent/internal/capture"
)

// GetDisplaysCommand возвращает команду вывода списка дисплеев
func GetDisplaysCommand() *cli.Command {
	return &cli.Command{
		Name:  "displays",
		Usage: "List displays available for capture",
		Action: func(c *cli.Context) error {
			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer ctx.Logger.Sync()

			backend, err := capture.NewSoftwareBackend(ctx.Config.Capture)
			if err != nil {
				return err
			}
			defer backend.Close()

			displays, err := backend.EnumerateDisplays()
			if err != nil {
				return err
			}

			for _, d := range displays {
				primary := ""
				if d.Primary {
					primary = " (primary)"
				}
				fmt.Printf("%s: %s %dx%d @%dHz%s\n",
					d.ID, d.Name, d.Width, d.Height, d.RefreshRate, primary)
			}
			return nil
		},
	}
}
