// Package storage keeps the mirrored snapshot and answers queries over it.
// Every backend replaces its content with a snapshot as a whole; readers
// never observe a half-written one.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rubiojr/cmsmirror/pkg/core"
)

// Mode selects how query text is matched.
type Mode string

const (
	// ModeFTS tokenizes the query and matches word prefixes through a
	// full-text index. Results are capped.
	ModeFTS Mode = "fts"
	// ModeSubstring matches the folded query as a contiguous substring of
	// an item's search text.
	ModeSubstring Mode = "substring"
)

// ErrUnsupportedMode is returned when a backend has no index for a mode.
var ErrUnsupportedMode = errors.New("search mode not supported by this backend")

// Store is a snapshot store.
type Store interface {
	// ReplaceSnapshot swaps the whole content, sync time included, for snap.
	ReplaceSnapshot(ctx context.Context, snap *core.Snapshot) error
	Collections(ctx context.Context) ([]core.Collection, error)
	// Items returns items in stored order. A nil collectionIDs means every
	// collection; an empty non-nil slice means none.
	Items(ctx context.Context, collectionIDs []string) ([]core.Item, error)
	Search(ctx context.Context, mode Mode, q core.Query) ([]core.Item, error)
	// LastSynced is the zero time when nothing was ever synced.
	LastSynced(ctx context.Context) (time.Time, error)
	Stats(ctx context.Context) (*Stats, error)
	Modes() []Mode
	Close() error
}

// Maintainer is implemented by backends with an on-disk index to look after.
type Maintainer interface {
	Check(ctx context.Context) (*CheckReport, error)
	RebuildIndex(ctx context.Context) error
	Optimize(ctx context.Context) error
	Analyze(ctx context.Context) error
	Vacuum(ctx context.Context) error
	WALCheckpoint(ctx context.Context) error
}

type Stats struct {
	Backend       string                 `json:"backend"`
	Collections   int                    `json:"collections"`
	Items         int                    `json:"items"`
	PerCollection []core.CollectionCount `json:"perCollection"`
	LastSynced    time.Time              `json:"lastSynced"`
	SizeBytes     int64                  `json:"sizeBytes,omitempty"`
}

// CheckReport is the outcome of a consistency check.
type CheckReport struct {
	IntegrityOK bool     `json:"integrityOk"`
	ItemRows    int      `json:"itemRows"`
	IndexRows   int      `json:"indexRows"`
	Problems    []string `json:"problems,omitempty"`
}

func (r *CheckReport) OK() bool {
	return r.IntegrityOK && len(r.Problems) == 0
}

// Supports reports whether s can answer queries in mode m.
func Supports(s Store, m Mode) bool {
	for _, supported := range s.Modes() {
		if supported == m {
			return true
		}
	}
	return false
}

const (
	metaLastSync = "last_sync"
	timeLayout   = time.RFC3339Nano
)

func formatSyncTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseSyncTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
