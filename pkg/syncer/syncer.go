// Package syncer mirrors the upstream CMS into a store. A run lists the
// site's collections, pages through every collection, derives search text
// and replaces the stored snapshot in one step. Nothing is written unless
// every upstream call succeeded.
package syncer

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rubiojr/cmsmirror/pkg/cms"
	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/log"
	"github.com/rubiojr/cmsmirror/pkg/metrics"
	"github.com/rubiojr/cmsmirror/pkg/realtime"
	"github.com/rubiojr/cmsmirror/pkg/storage"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is how many collections are fetched at once.
const DefaultConcurrency = 4

// Source is the upstream side of a sync. *cms.Client implements it.
type Source interface {
	ListCollections(ctx context.Context) ([]core.Collection, error)
	FetchAll(ctx context.Context, collectionID string) ([]cms.APIItem, error)
}

type Options struct {
	// Secret, when set, must be presented to Run.
	Secret  string
	Metrics *metrics.Metrics
	// Events, when set, is told about every stored snapshot.
	Events *realtime.Hub
	// Concurrency bounds parallel collection fetches. Defaults to
	// DefaultConcurrency.
	Concurrency int
	// Now defaults to time.Now.
	Now func() time.Time
	// Lock serializes runs. Syncers replacing each other on a config reload
	// share one so their runs never overlap. Defaults to a private mutex.
	Lock *sync.Mutex
}

// Syncer runs syncs. Runs in one process never overlap.
type Syncer struct {
	source      Source
	store       storage.Store
	secret      string
	metrics     *metrics.Metrics
	events      *realtime.Hub
	concurrency int
	now         func() time.Time
	logger      *log.Logger

	mu *sync.Mutex
}

// New creates a syncer. A nil source makes every sync fail with a
// configuration error, which is how missing CMS credentials surface.
func New(source Source, store storage.Store, opts Options) *Syncer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	mu := opts.Lock
	if mu == nil {
		mu = &sync.Mutex{}
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Syncer{
		source:      source,
		store:       store,
		secret:      opts.Secret,
		metrics:     opts.Metrics,
		events:      opts.Events,
		concurrency: concurrency,
		now:         now,
		logger:      log.ForService("syncer"),
		mu:          mu,
	}
}

// Authorize checks credential against the configured secret. Without a
// secret every caller is accepted.
func (s *Syncer) Authorize(credential string) error {
	if s.secret == "" {
		return nil
	}
	if credential == "" {
		return &core.AuthError{Msg: "missing sync secret"}
	}
	if subtle.ConstantTimeCompare([]byte(credential), []byte(s.secret)) != 1 {
		return &core.AuthError{Msg: "wrong sync secret"}
	}
	return nil
}

// Run authorizes credential and syncs.
func (s *Syncer) Run(ctx context.Context, credential string) (*core.SyncReport, error) {
	if err := s.Authorize(credential); err != nil {
		s.metrics.ObserveSync("unauthorized", 0, 0)
		s.logger.Warnf("Rejected sync request: %v", err)
		return nil, err
	}
	return s.Sync(ctx)
}

// Sync waits for any running sync to finish, then runs one.
func (s *Syncer) Sync(ctx context.Context) (*core.SyncReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run(ctx)
}

// TrySync runs a sync unless one is already in progress, in which case it
// returns ran == false without waiting.
func (s *Syncer) TrySync(ctx context.Context) (report *core.SyncReport, ran bool, err error) {
	if !s.mu.TryLock() {
		return nil, false, nil
	}
	defer s.mu.Unlock()
	report, err = s.run(ctx)
	return report, true, err
}

func (s *Syncer) run(ctx context.Context) (*core.SyncReport, error) {
	runID := uuid.NewString()
	start := s.now()

	report, err := s.collect(ctx, runID)
	elapsed := s.now().Sub(start)
	if err != nil {
		s.metrics.ObserveSync("error", elapsed, 0)
		s.logger.Errorf("Sync %s failed after %s: %v", runID, elapsed.Round(time.Millisecond), err)
		return nil, err
	}

	report.Duration = elapsed
	s.metrics.ObserveSync("success", elapsed, report.ItemsCount)
	s.events.Broadcast(realtime.NewSyncEvent(report))
	s.logger.Infof("Sync %s stored %d items from %d collections in %s",
		runID, report.ItemsCount, report.CollectionsCount, elapsed.Round(time.Millisecond))
	return report, nil
}

func (s *Syncer) collect(ctx context.Context, runID string) (*core.SyncReport, error) {
	if s.source == nil {
		return nil, &core.ConfigError{Setting: "cms", Msg: "api token and site id are required to sync"}
	}

	collections, err := s.source.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	// Collections are fetched concurrently; the first failure cancels the
	// rest. Items keep collection order.
	perCollection := make([][]core.Item, len(collections))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.concurrency)
	for i, c := range collections {
		eg.Go(func() error {
			raw, err := s.source.FetchAll(egCtx, c.ID)
			if err != nil {
				return fmt.Errorf("fetching items of collection %s: %w", c.Slug, err)
			}
			items := make([]core.Item, 0, len(raw))
			for _, it := range raw {
				items = append(items, core.NewItem(c, it.ID, it.FieldData))
			}
			perCollection[i] = items
			s.logger.Debugf("Sync %s: collection %s has %d items", runID, c.Slug, len(raw))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	snap := &core.Snapshot{Collections: collections, Items: make([]core.Item, 0)}
	for _, items := range perCollection {
		snap.Items = append(snap.Items, items...)
	}

	snap.SyncedAt = s.now().UTC()
	if err := s.store.ReplaceSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("storing snapshot: %w", err)
	}

	return &core.SyncReport{
		RunID:            runID,
		CollectionsCount: len(collections),
		ItemsCount:       len(snap.Items),
		Collections:      snap.Counts(),
		SyncedAt:         snap.SyncedAt,
	}, nil
}
