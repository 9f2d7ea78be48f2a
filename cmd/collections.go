package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// CollectionsCommand creates the collections command
func CollectionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "collections",
		Usage: "List mirrored collections",
		Action: func(ctx context.Context, c *cli.Command) error {
			return listCollections(ctx, c.String("config"))
		},
	}
}

func listCollections(ctx context.Context, configPath string) error {
	_, store, err := openStore(ctx, configPath)
	if err != nil {
		return err
	}
	defer closeOrWarn("store", store)

	collections, err := store.Collections(ctx)
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("getting stats: %w", err)
	}

	counts := make(map[string]int, len(stats.PerCollection))
	for _, c := range stats.PerCollection {
		counts[c.Slug] = c.ItemCount
	}
	fmt.Print(formatCollections(collections, counts, stats.LastSynced))
	return nil
}
