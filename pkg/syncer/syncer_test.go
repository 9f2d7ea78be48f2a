package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rubiojr/cmsmirror/pkg/cms"
	"github.com/rubiojr/cmsmirror/pkg/cms/cmstest"
	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/kv"
	"github.com/rubiojr/cmsmirror/pkg/metrics"
	"github.com/rubiojr/cmsmirror/pkg/realtime"
	"github.com/rubiojr/cmsmirror/pkg/storage"
)

var (
	products = core.Collection{ID: "c1", Slug: "products", DisplayName: "Products", SingularName: "Product"}
	posts    = core.Collection{ID: "c2", Slug: "posts", DisplayName: "Posts", SingularName: "Post"}
)

func newFakeCMS(t *testing.T) *cmstest.Server {
	t.Helper()
	srv := cmstest.NewServer("site")
	t.Cleanup(srv.Close)
	srv.AddCollection(products,
		`{"name":"Red Shoes","slug":"red-shoes","color":"red","price":10}`,
		`{"name":"Blue Hat","slug":"blue-hat"}`,
	)
	srv.AddCollection(posts, `{"name":"Spring news","slug":"spring-news"}`)
	return srv
}

func newSource(t *testing.T, srv *cmstest.Server) *cms.Client {
	t.Helper()
	c, err := cms.New(cms.Config{
		BaseURL:    srv.URL,
		SiteID:     srv.SiteID,
		APIToken:   cmstest.Token,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("Failed to create cms client: %v", err)
	}
	return c
}

func newStore() storage.Store {
	return storage.NewKVStore(kv.NewMemory(time.Hour), "memory")
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		credential string
		wantErr    bool
	}{
		{"no secret configured", "", "", false},
		{"no secret ignores credential", "", "anything", false},
		{"correct secret", "s3cret", "s3cret", false},
		{"missing credential", "s3cret", "", true},
		{"wrong credential", "s3cret", "nope", true},
		{"prefix of secret", "s3cret", "s3c", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(nil, newStore(), Options{Secret: tt.secret})
			err := s.Authorize(tt.credential)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Authorize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var authErr *core.AuthError
				if !errors.As(err, &authErr) {
					t.Errorf("Expected AuthError, got %T", err)
				}
			}
		})
	}
}

func TestSyncRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv := newFakeCMS(t)
	store := newStore()
	fixed := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	m := metrics.New()

	s := New(newSource(t, srv), store, Options{Metrics: m, Now: func() time.Time { return fixed }})
	report, err := s.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if report.RunID == "" {
		t.Error("Expected a run id")
	}
	if report.CollectionsCount != 2 || report.ItemsCount != 3 {
		t.Errorf("Unexpected counts %+v", report)
	}
	if len(report.Collections) != 2 || report.Collections[0] != (core.CollectionCount{Slug: "products", ItemCount: 2}) {
		t.Errorf("Unexpected per-collection counts %+v", report.Collections)
	}
	if !report.SyncedAt.Equal(fixed) {
		t.Errorf("Unexpected sync time %v", report.SyncedAt)
	}

	last, err := store.LastSynced(ctx)
	if err != nil || !last.Equal(fixed) {
		t.Errorf("Store sync time = %v, %v", last, err)
	}

	cases := map[string][]string{
		"red": {"c1-1"},
		"hat": {"c1-2"},
		"zzz": {},
	}
	for q, want := range cases {
		got, err := store.Search(ctx, storage.ModeSubstring, core.Query{Text: q})
		if err != nil {
			t.Fatalf("Search %q failed: %v", q, err)
		}
		if len(got) != len(want) {
			t.Errorf("Search %q returned %d items, want %d", q, len(got), len(want))
			continue
		}
		for i := range want {
			if got[i].ID != want[i] {
				t.Errorf("Search %q result %d = %s, want %s", q, i, got[i].ID, want[i])
			}
		}
	}

	items, _ := store.Items(ctx, nil)
	for _, item := range items {
		if item.SearchText != core.BuildSearchText(item.FieldData) {
			t.Errorf("Item %s search text out of date", item.ID)
		}
	}

	if got := testutil.ToFloat64(m.SyncRunsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected one successful run recorded, got %v", got)
	}
}

func TestSyncUpstreamFailureLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	srv := newFakeCMS(t)
	store := newStore()
	s := New(newSource(t, srv), store, Options{})

	if _, err := s.Sync(ctx); err != nil {
		t.Fatalf("First sync failed: %v", err)
	}
	before, _ := store.LastSynced(ctx)

	srv.FailWith("/collections/c2/items", http.StatusBadGateway)
	_, err := s.Sync(ctx)
	if err == nil {
		t.Fatal("Expected the second sync to fail")
	}
	var upErr *core.UpstreamError
	if !errors.As(err, &upErr) || upErr.Status != http.StatusBadGateway {
		t.Errorf("Expected UpstreamError 502, got %v", err)
	}
	if core.HTTPStatus(err) != http.StatusInternalServerError {
		t.Errorf("Expected 500 mapping, got %d", core.HTTPStatus(err))
	}

	after, _ := store.LastSynced(ctx)
	if !after.Equal(before) {
		t.Error("Failed sync changed the stored snapshot")
	}
	items, _ := store.Items(ctx, nil)
	if len(items) != 3 {
		t.Errorf("Previous snapshot lost, %d items left", len(items))
	}
}

func TestSyncWithoutCredentials(t *testing.T) {
	store := newStore()
	s := New(nil, store, Options{})

	_, err := s.Sync(context.Background())
	var cfgErr *core.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError, got %v", err)
	}
	if last, _ := store.LastSynced(context.Background()); !last.IsZero() {
		t.Error("Store should not be touched")
	}
}

func TestRunRequiresSecret(t *testing.T) {
	srv := newFakeCMS(t)
	s := New(newSource(t, srv), newStore(), Options{Secret: "s3cret"})

	if _, err := s.Run(context.Background(), "wrong"); core.HTTPStatus(err) != http.StatusUnauthorized {
		t.Errorf("Expected 401 error, got %v", err)
	}
	if srv.Requests("c1") != 0 {
		t.Error("Unauthorized run reached the upstream API")
	}
	if _, err := s.Run(context.Background(), "s3cret"); err != nil {
		t.Errorf("Authorized run failed: %v", err)
	}
}

// blockingSource holds ListCollections until released.
type blockingSource struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSource) ListCollections(ctx context.Context) ([]core.Collection, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return nil, nil
}

func (b *blockingSource) FetchAll(ctx context.Context, collectionID string) ([]cms.APIItem, error) {
	return nil, nil
}

func TestTrySyncSkipsWhenBusy(t *testing.T) {
	src := &blockingSource{entered: make(chan struct{}, 1), release: make(chan struct{})}
	s := New(src, newStore(), Options{})

	done := make(chan error, 1)
	go func() {
		_, err := s.Sync(context.Background())
		done <- err
	}()
	<-src.entered

	_, ran, err := s.TrySync(context.Background())
	if ran || err != nil {
		t.Errorf("TrySync should skip while a sync runs, ran=%v err=%v", ran, err)
	}

	close(src.release)
	if err := <-done; err != nil {
		t.Fatalf("Blocked sync failed: %v", err)
	}

	report, ran, err := s.TrySync(context.Background())
	if !ran || err != nil || report == nil {
		t.Errorf("TrySync should run when idle, ran=%v err=%v", ran, err)
	}
}

func TestSharedLockSerializesSyncers(t *testing.T) {
	lock := &sync.Mutex{}
	src := &blockingSource{entered: make(chan struct{}, 1), release: make(chan struct{})}
	store := newStore()
	old := New(src, store, Options{Lock: lock})
	replacement := New(src, store, Options{Lock: lock})

	done := make(chan error, 1)
	go func() {
		_, err := old.Sync(context.Background())
		done <- err
	}()
	<-src.entered

	if _, ran, _ := replacement.TrySync(context.Background()); ran {
		t.Error("A syncer sharing the lock must not run while another one does")
	}

	close(src.release)
	if err := <-done; err != nil {
		t.Fatalf("Blocked sync failed: %v", err)
	}
}

func TestSyncKeepsCollectionOrder(t *testing.T) {
	srv := cmstest.NewServer("site")
	t.Cleanup(srv.Close)
	for i := 0; i < 6; i++ {
		c := core.Collection{ID: fmt.Sprintf("c%d", i), Slug: fmt.Sprintf("col-%d", i)}
		srv.AddCollection(c, fmt.Sprintf(`{"name":"item %d"}`, i))
	}

	store := newStore()
	s := New(newSource(t, srv), store, Options{Concurrency: 3})
	report, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	for i, c := range report.Collections {
		if c.Slug != fmt.Sprintf("col-%d", i) || c.ItemCount != 1 {
			t.Errorf("Collection %d: unexpected %+v", i, c)
		}
	}

	items, err := store.Items(context.Background(), nil)
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	for i, item := range items {
		if item.CollectionID != fmt.Sprintf("c%d", i) {
			t.Errorf("Item %d belongs to %s, want c%d", i, item.CollectionID, i)
		}
	}
}

func TestSyncAnnouncesStoredSnapshot(t *testing.T) {
	srv := newFakeCMS(t)
	hub := realtime.NewHub(1)
	id, events := hub.Register()
	defer hub.Unregister(id)

	s := New(newSource(t, srv), newStore(), Options{Events: hub})
	report, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != realtime.TypeSync || ev.Sync.RunID != report.RunID || ev.Sync.ItemsCount != 3 {
			t.Errorf("Unexpected event %+v", ev)
		}
	default:
		t.Fatal("Expected a sync event")
	}

	srv.FailWith("/items", http.StatusBadGateway)
	if _, err := s.Sync(context.Background()); err == nil {
		t.Fatal("Expected the second sync to fail")
	}
	select {
	case ev := <-events:
		t.Errorf("Failed sync must not be announced, got %+v", ev)
	default:
	}
}
