package cmd

import (
	"context"
	"fmt"

	"github.com/rubiojr/cmsmirror/pkg/client"
	"github.com/rubiojr/cmsmirror/pkg/config"
	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/syncer"
	"github.com/urfave/cli/v3"
)

// SyncCommand creates the sync command
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Mirror the CMS into the configured store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server",
				Usage: "Ask a running server to sync instead of syncing locally",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runSync(ctx, c.String("config"), c.String("server"))
		},
	}
}

func runSync(ctx context.Context, configPath, server string) error {
	syncFn := localSync
	if server != "" {
		syncFn = func(ctx context.Context, configPath string) (*core.SyncReport, error) {
			return remoteSync(ctx, configPath, server)
		}
	}

	report, err := syncFn(ctx, configPath)
	if err != nil {
		return err
	}
	fmt.Print(formatReport(report))
	return nil
}

func localSync(ctx context.Context, configPath string) (*core.SyncReport, error) {
	cfg, store, err := openStore(ctx, configPath)
	if err != nil {
		return nil, err
	}
	defer closeOrWarn("store", store)

	report, err := newSyncer(cfg, store, syncer.Options{}).Sync(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}
	return report, nil
}

func remoteSync(ctx context.Context, configPath, server string) (*core.SyncReport, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	c := client.New(client.Config{BaseURL: server, SyncSecret: cfg.Sync.Secret})
	report, err := c.Sync(ctx)
	if err != nil {
		return nil, fmt.Errorf("remote sync: %w", err)
	}
	return report, nil
}
