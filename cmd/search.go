package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rubiojr/cmsmirror/pkg/client"
	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/realtime"
	"github.com/rubiojr/cmsmirror/pkg/search"
	"github.com/urfave/cli/v3"
)

// searchFlags returns fresh flag values; flags keep parsed state, so
// commands must not share instances.
func searchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "collections",
			Usage: "Comma separated collection names, or \"all\"",
			Value: core.AllCollections,
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of results (0 keeps the server default)",
		},
		&cli.StringFlag{
			Name:  "server",
			Usage: "Query a running server (e.g. http://localhost:8080) instead of the local store",
		},
		&cli.BoolFlag{
			Name:  "local",
			Usage: "Load every item once and filter in-process",
		},
	}
}

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search mirrored items",
		ArgsUsage: "QUERY",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "query",
				Usage: "Search query (alternatively pass it as arguments)",
			},
		}, searchFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			query := c.String("query")
			if query == "" {
				query = strings.Join(c.Args().Slice(), " ")
			}
			if strings.TrimSpace(query) == "" {
				return fmt.Errorf("a search query is required")
			}
			return searchData(ctx, c.String("config"), query, targetFromFlags(c))
		},
	}
}

type searchTarget struct {
	Server      string
	Collections string
	Limit       int
	Local       bool
}

func targetFromFlags(c *cli.Command) searchTarget {
	return searchTarget{
		Server:      c.String("server"),
		Collections: c.String("collections"),
		Limit:       c.Int("limit"),
		Local:       c.Bool("local"),
	}
}

func searchData(ctx context.Context, configPath, query string, target searchTarget) error {
	searcher, cleanup, err := newSearcher(ctx, configPath, target)
	if err != nil {
		return err
	}
	defer cleanup()

	results, err := searcher.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}
	fmt.Print(formatResults(results))
	return nil
}

// serviceSearcher queries the local store through the search service.
type serviceSearcher struct {
	service     *search.SearchService
	collections string
	limit       int
}

func (s serviceSearcher) Search(ctx context.Context, query string) ([]core.Result, error) {
	res, err := s.service.Search(ctx, search.SearchParams{
		Query:       query,
		Collections: s.collections,
		Limit:       s.limit,
	})
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

// newSearcher picks where queries go: a remote server or the local store,
// each either per query or through an in-process item cache.
func newSearcher(ctx context.Context, configPath string, target searchTarget) (client.Searcher, func(), error) {
	collections := target.Collections
	if collections == "" {
		collections = core.AllCollections
	}

	if target.Server != "" {
		c := client.New(client.Config{BaseURL: target.Server, Timeout: 30 * time.Second})
		if target.Local {
			cache := client.NewItemCache(func(ctx context.Context) ([]core.Item, error) {
				return c.Data(ctx, collections)
			})
			// A sync on the server makes the cached items stale.
			watchCtx, stop := context.WithCancel(ctx)
			go func() {
				err := c.Watch(watchCtx, func(ev realtime.SyncEvent) {
					logger.Debugf("Server stored sync %s, dropping cached items", ev.RunID)
					cache.Reset()
				})
				if err != nil && watchCtx.Err() == nil {
					logger.Warnf("Not following server syncs, cached items may go stale: %v", err)
				}
			}()
			return cache, stop, nil
		}
		return client.Remote{Client: c, Collections: collections, Limit: target.Limit}, func() {}, nil
	}

	cfg, store, err := openStore(ctx, configPath)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { closeOrWarn("store", store) }

	service := newSearchService(cfg, store, nil)
	if target.Local {
		cache := client.NewItemCache(func(ctx context.Context) ([]core.Item, error) {
			return service.Data(ctx, collections)
		})
		return cache, cleanup, nil
	}
	return serviceSearcher{service: service, collections: collections, limit: target.Limit}, cleanup, nil
}
