package cmd

import (
	"context"
	"fmt"

	"github.com/rubiojr/cmsmirror/pkg/storage"
	"github.com/urfave/cli/v3"
)

// MaintainCommand creates the maintain command
func MaintainCommand() *cli.Command {
	return &cli.Command{
		Name:  "maintain",
		Usage: "Database optimization and maintenance commands",
		Commands: []*cli.Command{
			{
				Name:  "check",
				Usage: "Run integrity checks and compare items with the search index",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withMaintainer(ctx, c.String("config"), checkDatabase)
				},
			},
			{
				Name:  "fts-rebuild",
				Usage: "Rebuild the full-text index from the stored items",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Force rebuild without checking first (skips integrity check)",
						Value: false,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					force := c.Bool("force")
					return withMaintainer(ctx, c.String("config"), func(ctx context.Context, m storage.Maintainer) error {
						return rebuildFTS(ctx, m, force)
					})
				},
			},
			{
				Name:  "analyze",
				Usage: "Run ANALYZE to update query planner statistics",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withMaintainer(ctx, c.String("config"), func(ctx context.Context, m storage.Maintainer) error {
						return runStep(ctx, "ANALYZE", m.Analyze)
					})
				},
			},
			{
				Name:  "vacuum",
				Usage: "Run VACUUM to defragment the database",
				Action: func(ctx context.Context, c *cli.Command) error {
					fmt.Println("This may take a while for large databases...")
					return withMaintainer(ctx, c.String("config"), func(ctx context.Context, m storage.Maintainer) error {
						return runStep(ctx, "VACUUM", m.Vacuum)
					})
				},
			},
			{
				Name:  "checkpoint",
				Usage: "Run WAL checkpoint to flush changes",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withMaintainer(ctx, c.String("config"), func(ctx context.Context, m storage.Maintainer) error {
						return runStep(ctx, "WAL checkpoint", m.WALCheckpoint)
					})
				},
			},
			{
				Name:  "all",
				Usage: "Run all optimization operations (optimize, analyze, checkpoint)",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withMaintainer(ctx, c.String("config"), optimizeAll)
				},
			},
		},
	}
}

// withMaintainer opens the configured store and runs fn if the backend
// supports maintenance.
func withMaintainer(ctx context.Context, configPath string, fn func(context.Context, storage.Maintainer) error) error {
	cfg, store, err := openStore(ctx, configPath)
	if err != nil {
		return err
	}
	defer closeOrWarn("store", store)

	m, ok := store.(storage.Maintainer)
	if !ok {
		return fmt.Errorf("the %s backend has no maintenance operations", cfg.Backend)
	}
	return fn(ctx, m)
}

func runStep(ctx context.Context, name string, step func(context.Context) error) error {
	fmt.Printf("Running %s...\n", name)
	if err := step(ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	fmt.Println(okStyle.Render("✓ " + name + " completed"))
	return nil
}

func checkDatabase(ctx context.Context, m storage.Maintainer) error {
	report, err := m.Check(ctx)
	if err != nil {
		return fmt.Errorf("checking database: %w", err)
	}

	fmt.Printf("Item rows:   %s\n", formatNumber(report.ItemRows))
	fmt.Printf("Index rows:  %s\n", formatNumber(report.IndexRows))
	if report.OK() {
		fmt.Println(okStyle.Render("✓ Database is healthy"))
		return nil
	}

	for _, p := range report.Problems {
		fmt.Println(errStyle.Render("✗ " + p))
	}
	if !report.IntegrityOK {
		fmt.Println(errStyle.Render("✗ SQLite integrity check failed"))
	}
	fmt.Println(metaStyle.Render("Run 'cmsmirror maintain fts-rebuild' to rebuild the search index."))
	return fmt.Errorf("database check found problems")
}

func rebuildFTS(ctx context.Context, m storage.Maintainer, force bool) error {
	if !force {
		report, err := m.Check(ctx)
		if err != nil {
			return fmt.Errorf("checking database: %w", err)
		}
		if report.OK() {
			fmt.Println(okStyle.Render("✓ Search index is consistent, nothing to rebuild"))
			return nil
		}
		fmt.Printf("Index has %d rows for %d items, rebuilding...\n", report.IndexRows, report.ItemRows)
	}
	return runStep(ctx, "FTS rebuild", m.RebuildIndex)
}

func optimizeAll(ctx context.Context, m storage.Maintainer) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"PRAGMA optimize", m.Optimize},
		{"ANALYZE", m.Analyze},
		{"WAL checkpoint", m.WALCheckpoint},
	}
	for _, s := range steps {
		if err := runStep(ctx, s.name, s.fn); err != nil {
			return err
		}
	}
	fmt.Println()
	fmt.Println("All optimization operations completed successfully")
	return nil
}
