package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/kv"
	"github.com/rubiojr/cmsmirror/pkg/log"
)

// Blob keys of the KV backend.
const (
	keyAllItems        = "all_items"
	keyCollectionsMeta = "collections_meta"
	keyLastSync        = "last_sync"
	collectionPrefix   = "collection:"
)

// KVStore keeps the snapshot as JSON blobs: every item, one list per
// collection slug, the collection list and the sync time.
type KVStore struct {
	client  kv.Client
	backend string
	logger  *log.Logger
}

// NewKVStore stores snapshots in client. backend names it in stats.
func NewKVStore(client kv.Client, backend string) *KVStore {
	return &KVStore{client: client, backend: backend, logger: log.ForService("storage")}
}

func (s *KVStore) Close() error {
	return s.client.Close()
}

func (s *KVStore) Modes() []Mode {
	return []Mode{ModeSubstring}
}

func (s *KVStore) ReplaceSnapshot(ctx context.Context, snap *core.Snapshot) error {
	entries := make(map[string][]byte, len(snap.Collections)+3)

	items := snap.Items
	if items == nil {
		items = []core.Item{}
	}
	if err := putJSON(entries, keyAllItems, items); err != nil {
		return err
	}

	collections := snap.Collections
	if collections == nil {
		collections = []core.Collection{}
	}
	if err := putJSON(entries, keyCollectionsMeta, collections); err != nil {
		return err
	}

	bySlug := make(map[string][]core.Item, len(collections))
	for _, c := range collections {
		bySlug[c.Slug] = []core.Item{}
	}
	for _, item := range items {
		bySlug[item.CollectionSlug] = append(bySlug[item.CollectionSlug], item)
	}
	for slug, list := range bySlug {
		if err := putJSON(entries, collectionPrefix+slug, list); err != nil {
			return err
		}
	}
	entries[keyLastSync] = []byte(formatSyncTime(snap.SyncedAt))

	existing, err := s.client.Keys(ctx, collectionPrefix)
	if err != nil {
		return fmt.Errorf("listing collection keys: %w", err)
	}
	var stale []string
	for _, k := range existing {
		if _, keep := entries[k]; !keep {
			stale = append(stale, k)
		}
	}

	if err := s.client.SetMany(ctx, entries, stale); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	s.logger.Debugf("Stored %d collections and %d items, dropped %d stale collection keys", len(collections), len(items), len(stale))
	return nil
}

func (s *KVStore) Collections(ctx context.Context) ([]core.Collection, error) {
	collections := []core.Collection{}
	if err := s.getJSON(ctx, keyCollectionsMeta, &collections); err != nil {
		return nil, err
	}
	return collections, nil
}

func (s *KVStore) Items(ctx context.Context, collectionIDs []string) ([]core.Item, error) {
	if collectionIDs == nil {
		return s.allItems(ctx)
	}

	collections, err := s.Collections(ctx)
	if err != nil {
		return nil, err
	}
	slugByID := make(map[string]string, len(collections))
	for _, c := range collections {
		slugByID[c.ID] = c.Slug
	}

	items := make([]core.Item, 0)
	for _, id := range collectionIDs {
		slug, ok := slugByID[id]
		if !ok {
			continue
		}
		var list []core.Item
		if err := s.getJSON(ctx, collectionPrefix+slug, &list); err != nil {
			return nil, err
		}
		items = append(items, list...)
	}
	return items, nil
}

func (s *KVStore) Search(ctx context.Context, mode Mode, q core.Query) ([]core.Item, error) {
	if mode != ModeSubstring {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, mode)
	}
	if q.CollectionIDs != nil && len(q.CollectionIDs) == 0 {
		return []core.Item{}, nil
	}

	all, err := s.allItems(ctx)
	if err != nil {
		return nil, err
	}

	var allowed map[string]bool
	if q.CollectionIDs != nil {
		allowed = make(map[string]bool, len(q.CollectionIDs))
		for _, id := range q.CollectionIDs {
			allowed[id] = true
		}
	}

	needle := core.Fold(q.Text)
	results := make([]core.Item, 0)
	for _, item := range all {
		if allowed != nil && !allowed[item.CollectionID] {
			continue
		}
		if !strings.Contains(item.SearchText, needle) {
			continue
		}
		results = append(results, item)
		if q.Limit > 0 && len(results) == q.Limit {
			break
		}
	}
	return results, nil
}

func (s *KVStore) LastSynced(ctx context.Context) (time.Time, error) {
	raw, err := s.client.Get(ctx, keyLastSync)
	if errors.Is(err, kv.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return parseSyncTime(string(raw))
}

func (s *KVStore) Stats(ctx context.Context) (*Stats, error) {
	collections, err := s.Collections(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.allItems(ctx)
	if err != nil {
		return nil, err
	}
	last, err := s.LastSynced(ctx)
	if err != nil {
		return nil, err
	}

	snap := core.Snapshot{Collections: collections, Items: items}
	return &Stats{
		Backend:       s.backend,
		Collections:   len(collections),
		Items:         len(items),
		PerCollection: snap.Counts(),
		LastSynced:    last,
	}, nil
}

func (s *KVStore) allItems(ctx context.Context) ([]core.Item, error) {
	items := []core.Item{}
	if err := s.getJSON(ctx, keyAllItems, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// getJSON decodes key into dst. A missing key leaves dst untouched.
func (s *KVStore) getJSON(ctx context.Context, key string, dst any) error {
	raw, err := s.client.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func putJSON(entries map[string][]byte, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	entries[key] = raw
	return nil
}
