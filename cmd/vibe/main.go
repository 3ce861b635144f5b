// Command vibe is the VibeSphere maintenance CLI.
//
// Usage:
//
//	vibe seed               Fill the store with demo users and Pulses
//	vibe post <video>       Upload a video and create a Pulse as the signed-in user
//	vibe history            Show or clear recent searches
//	vibe events             JSONL event log viewer
//	vibe config             Write, show or adjust the configuration
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"github.com/abelbrown/vibesphere/internal/config"
	"github.com/abelbrown/vibesphere/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "vibe: %v\n", err)
		os.Exit(1)
	}
}

func rootApp() *cli.App {
	return &cli.App{
		Name:  "vibe",
		Usage: "VibeSphere debug and maintenance CLI",
		Description: `Works on the same local store, preferences and event log as the
		vibesphere TUI.

		Settings come from the config file; VIBESPHERE_* environment
		variables override it, e.g.:

		VIBESPHERE_DB=/tmp/vibes.db vibe seed
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.ConfigPath(),
				Usage:   "config file location",
				EnvVars: []string{"VIBESPHERE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "keys",
				Usage: "shell file of VIBESPHERE_* exports to apply",
			},
		},
		Before: func(*cli.Context) error {
			if err := logging.Init(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
			}
			return nil
		},
		After: func(*cli.Context) error {
			logging.Close()
			return nil
		},
		Commands: []*cli.Command{
			seedCmd(),
			postCmd(),
			historyCmd(),
			eventsCmd(),
			configCmd(),
		},
		Action: func(c *cli.Context) error {
			// Show help if no command is specified
			return cli.ShowAppHelp(c)
		},
	}
}
