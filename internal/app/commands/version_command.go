package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"remote-agent/internal/agent"
)

// GetVersionCommand возвращает команду вывода версии
func GetVersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print agent version",
		Action: func(c *cli.Context) error {
			fmt.Printf("remote-agent %s\n", agent.Version)
			return nil
		},
	}
}
