package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/rubiojr/cmsmirror/pkg/cms"
	"github.com/rubiojr/cmsmirror/pkg/config"
	"github.com/rubiojr/cmsmirror/pkg/log"
	"github.com/rubiojr/cmsmirror/pkg/metrics"
	"github.com/rubiojr/cmsmirror/pkg/search"
	"github.com/rubiojr/cmsmirror/pkg/storage"
	"github.com/rubiojr/cmsmirror/pkg/syncer"
)

var logger = log.ForService("cmd")

// openStore loads the configuration and opens its store.
func openStore(ctx context.Context, configPath string) (*config.Config, storage.Store, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s store: %w", cfg.Backend, err)
	}
	return cfg, store, nil
}

func closeOrWarn(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		fmt.Printf("Warning: failed to close %s: %v\n", name, err)
	}
}

// newSyncer builds a syncer for cfg. Without CMS credentials the syncer
// still exists but every run fails with a configuration error.
func newSyncer(cfg *config.Config, store storage.Store, opts syncer.Options) *syncer.Syncer {
	opts.Secret = cfg.Sync.Secret
	opts.Concurrency = cfg.Sync.Concurrency

	client, err := cms.New(cms.Config{
		BaseURL:  cfg.CMS.BaseURL,
		SiteID:   cfg.CMS.SiteID,
		APIToken: cfg.CMS.APIToken,
		PageSize: cfg.CMS.PageSize,
		Timeout:  cfg.CMS.Timeout.Duration,
	})
	if err != nil {
		logger.Warnf("Sync disabled: %v", err)
		return syncer.New(nil, store, opts)
	}
	return syncer.New(client, store, opts)
}

func newSearchService(cfg *config.Config, store storage.Store, m *metrics.Metrics) *search.SearchService {
	return search.NewSearchService(store, search.Options{
		Mode:              storage.Mode(cfg.SearchMode),
		Limit:             cfg.Search.Limit,
		NotFoundOnUnknown: cfg.Search.NotFoundOnUnknown,
		Metrics:           m,
	})
}
