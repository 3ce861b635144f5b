package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/abelbrown/vibesphere/internal/prefs"
)

func historyCmd() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show or clear recent searches",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "Print recent searches, newest first",
				Action: func(c *cli.Context) error { return withPrefs(c, printHistory) },
			},
			{
				Name:  "clear",
				Usage: "Forget all recent searches",
				Action: func(c *cli.Context) error {
					return withPrefs(c, func(c *cli.Context, p *prefs.Store) error {
						if err := p.ClearSearchHistory(); err != nil {
							return err
						}
						fmt.Fprintln(c.App.Writer, "Search history cleared")
						return nil
					})
				},
			},
		},
		Action: func(c *cli.Context) error { return withPrefs(c, printHistory) },
	}
}

func printHistory(c *cli.Context, p *prefs.Store) error {
	h, err := p.SearchHistory()
	if err != nil {
		return err
	}
	if len(h) == 0 {
		fmt.Fprintln(c.App.Writer, "No recent searches")
		return nil
	}
	for i, q := range h {
		fmt.Fprintf(c.App.Writer, "%2d. %s\n", i+1, q)
	}
	return nil
}

// withPrefs opens only the preferences store.
func withPrefs(c *cli.Context, fn func(*cli.Context, *prefs.Store) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.PrefsPath()), 0755); err != nil {
		return err
	}
	p, err := prefs.Open(cfg.PrefsPath())
	if err != nil {
		return err
	}
	defer p.Close()
	return fn(c, p)
}
