package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/abelbrown/vibesphere/internal/compose"
	"github.com/abelbrown/vibesphere/internal/share"
)

func postCmd() *cli.Command {
	return &cli.Command{
		Name:      "post",
		Usage:     "Upload a video and create a Pulse",
		ArgsUsage: "<video file>",
		Description: `Uploads the file to the configured media backend (a local
		directory or an S3 bucket) and creates the Pulse as the signed-in
		user. Signs in with the dev provider when there is no session.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "caption", Aliases: []string{"m"}, Usage: "caption text"},
			&cli.StringFlag{Name: "tags", Aliases: []string{"t"}, Usage: "comma separated tags, e.g. \"dance,#summer\""},
			&cli.IntFlag{Name: "duration", Aliases: []string{"d"}, Usage: "length in seconds"},
			&cli.BoolFlag{Name: "wave", Usage: "flag the Pulse as a Wave"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("post: exactly one video file is required", 2)
			}
			path := c.Args().First()
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			svc, err := openServices(c)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.SignIn(c.Context); err != nil {
				return fmt.Errorf("sign in: %w", err)
			}
			p, err := svc.Compose.Create(c.Context, compose.Draft{
				FileName: filepath.Base(path),
				Video:    data,
				Caption:  c.String("caption"),
				Tags:     c.String("tags"),
				Duration: c.Int("duration"),
				Wave:     c.Bool("wave"),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Posted %s as @%s\n  video: %s\n  link:  %s\n",
				p.ID, p.Username, p.VideoURL, share.Link(svc.Config.Share.BaseURL, p.ID))
			return nil
		},
	}
}
