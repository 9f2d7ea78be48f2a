// Package kv is a minimal key/value client with atomic batch writes. The KV
// storage backend keeps its snapshot blobs in it.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for a missing or expired key.
var ErrNotFound = errors.New("kv: key not found")

// Client is implemented by Memory and Redis.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// SetMany writes every entry and deletes every key in del as a single
	// atomic step: readers see either none or all of the changes.
	SetMany(ctx context.Context, entries map[string][]byte, del []string) error
	// Keys lists the live keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
