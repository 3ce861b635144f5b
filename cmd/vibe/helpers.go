package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/abelbrown/vibesphere/internal/app"
	"github.com/abelbrown/vibesphere/internal/config"
)

// loadConfig reads the config named by the global flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadFrom(c.String("config"))
	if err != nil {
		return nil, err
	}
	if keys := c.String("keys"); keys != "" {
		if err := cfg.LoadKeysFromFile(keys); err != nil {
			return nil, fmt.Errorf("load keys: %w", err)
		}
	}
	return cfg, nil
}

// openServices opens the full service graph. The caller closes it.
func openServices(c *cli.Context) (*app.Services, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return app.Open(c.Context, cfg, app.Options{})
}
