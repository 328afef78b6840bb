package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"remote-agent/internal/app/commands"
)

func main() {
	application := &cli.App{
		Name:  "remote-agent",
		Usage: "Remote desktop agent: screen capture, encoding and viewer transports",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "Log level: debug, info, warn, error",
			},
		},
		Commands:       commands.GetCommands(),
		DefaultCommand: "run",
	}

	if err := application.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
