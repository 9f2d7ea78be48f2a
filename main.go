package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/rubiojr/cmsmirror/cmd"
	"github.com/rubiojr/cmsmirror/pkg/config"
	mlog "github.com/rubiojr/cmsmirror/pkg/log"
	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:  "cmsmirror",
		Usage: "Mirror a headless CMS into a searchable store",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
				Value: false,
			},
			&cli.StringFlag{
				Name:  "debug-services",
				Usage: "Comma separated services to debug (e.g. syncer,search)",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Configuration file path",
				Value: getDefaultConfigPathOrExit(),
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			mlog.SetGlobalDebug(c.Bool("debug"))
			for _, svc := range strings.Split(c.String("debug-services"), ",") {
				if svc = strings.TrimSpace(svc); svc != "" {
					mlog.EnableDebugFor(svc)
				}
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			cmd.InitCommand(),
			cmd.SyncCommand(),
			cmd.SearchCommand(),
			cmd.LiveCommand(),
			cmd.CollectionsCommand(),
			cmd.StatsCommand(),
			cmd.ServeCommand(),
			cmd.MaintainCommand(),
			cmd.MigrateCommand(),
			cmd.VersionCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func getDefaultConfigPathOrExit() string {
	path, err := config.GetDefaultConfigPath()
	if err != nil {
		log.Fatalf("Failed to get default config path: %v", err)
	}
	return path
}
