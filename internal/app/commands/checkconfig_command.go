package commands

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"remote-agent/internal/config"
)

// GetCheckConfigCommand возвращает команду проверки конфигурации
func GetCheckConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "check-config",
		Usage: "Validate a configuration file",
		Action: func(c *cli.Context) error {
			path := c.String("config")
			if path == "" {
				return fmt.Errorf("--config flag is required")
			}

			cfg, err := config.LoadConfig(path)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			fmt.Printf("Config %s is valid\n", path)
			return nil
		},
	}
}
