package storage

import (
	"context"
	"fmt"

	"github.com/rubiojr/cmsmirror/pkg/config"
	"github.com/rubiojr/cmsmirror/pkg/kv"
)

// Open creates the Store selected by cfg.Backend.
//
// Supported backends:
//
//	"sqlite"   - SQLite database with FTS5 at <storage_dir>/cmsmirror.db (default)
//	"postgres" - PostgreSQL at postgres.url
//	"redis"    - JSON blobs in Redis at redis.url
//	"memory"   - JSON blobs in process memory (ephemeral)
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		s, err := OpenSQLite(ctx, cfg.DBPath(), cfg.Sync.BatchSize)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendPostgres:
		s, err := OpenPostgres(ctx, cfg.Postgres.URL, cfg.Sync.BatchSize)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendRedis:
		client, err := kv.NewRedis(cfg.Redis.URL, cfg.Redis.TTL.Duration)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return NewKVStore(client, config.BackendRedis), nil
	case config.BackendMemory:
		return NewKVStore(kv.NewMemory(cfg.Redis.TTL.Duration), config.BackendMemory), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: sqlite, postgres, redis, memory)", cfg.Backend)
	}
}
