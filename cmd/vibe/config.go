package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/abelbrown/vibesphere/internal/config"
	"github.com/abelbrown/vibesphere/internal/prefs"
)

func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Write, show or adjust the configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write the default config file",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "overwrite an existing file"},
				},
				Action: func(c *cli.Context) error {
					path := c.String("config")
					if _, err := os.Stat(path); err == nil && !c.Bool("force") {
						return cli.Exit(fmt.Sprintf("config: %s exists (use --force to overwrite)", path), 1)
					} else if err != nil && !errors.Is(err, os.ErrNotExist) {
						return err
					}
					if err := config.DefaultConfig().SaveTo(path); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Print the effective config, after environment overrides",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					if cfg.Auth.JWTSecret != "" {
						cfg.Auth.JWTSecret = "********"
					}
					if cfg.Media.SecretKey != "" {
						cfg.Media.SecretKey = "********"
					}
					out, err := json.MarshalIndent(cfg, "", "  ")
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, string(out))
					return cfg.Validate()
				},
			},
			{
				Name:      "display",
				Usage:     "Store display preferences (theme and font)",
				ArgsUsage: " ",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "theme", Usage: "dark or light"},
					&cli.StringFlag{Name: "font", Usage: "normal or large"},
				},
				Action: func(c *cli.Context) error {
					return withPrefs(c, func(c *cli.Context, p *prefs.Store) error {
						d, err := p.Display()
						if err != nil {
							return err
						}
						if v := c.String("theme"); v != "" {
							if v != "dark" && v != "light" {
								return cli.Exit("display: theme must be dark or light", 2)
							}
							d.Theme = v
						}
						if v := c.String("font"); v != "" {
							if v != "normal" && v != "large" {
								return cli.Exit("display: font must be normal or large", 2)
							}
							d.Font = v
						}
						if err := p.SetDisplay(d); err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "theme=%s font=%s\n", d.Theme, d.Font)
						return nil
					})
				},
			},
		},
	}
}
