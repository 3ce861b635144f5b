package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/abelbrown/vibesphere/internal/seed"
)

func seedCmd() *cli.Command {
	def := seed.DefaultOptions()
	return &cli.Command{
		Name:  "seed",
		Usage: "Fill the store with demo users and Pulses",
		Description: `Creates fake users with a random follow graph and Pulses with
		likes and echoes from those users. Running it twice adds a second
		batch; nothing is removed.`,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "users", Aliases: []string{"u"}, Value: def.Users, Usage: "number of users"},
			&cli.IntFlag{Name: "pulses", Aliases: []string{"p"}, Value: def.Pulses, Usage: "number of Pulses"},
			&cli.IntFlag{Name: "days", Value: def.MaxDays, Usage: "spread Pulses over this many days back"},
			&cli.Float64Flag{Name: "waves", Value: def.Waves, Usage: "share of Pulses flagged as Waves (0-1)"},
			&cli.Int64Flag{Name: "seed", Usage: "random seed, 0 for random"},
		},
		Action: func(c *cli.Context) error {
			svc, err := openServices(c)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := seed.New(svc.Store, seed.Options{
				Users:   c.Int("users"),
				Pulses:  c.Int("pulses"),
				MaxDays: c.Int("days"),
				Waves:   c.Float64("waves"),
				Seed:    c.Int64("seed"),
			}).Run(c.Context)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Seeded %d users and %d pulses into %s\n", res.Users, res.Pulses, svc.Config.DBPath())
			return nil
		},
	}
}
