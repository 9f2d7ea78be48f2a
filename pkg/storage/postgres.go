package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/db"
	"github.com/rubiojr/cmsmirror/pkg/log"
)

// PostgresStore keeps the relational layout in PostgreSQL and answers
// substring queries with LIKE.
type PostgresStore struct {
	sqlStore
}

// OpenPostgres connects to url and applies pending migrations.
func OpenPostgres(ctx context.Context, url string, batchSize int) (*PostgresStore, error) {
	if url == "" {
		return nil, &core.ConfigError{Setting: "postgres.url", Msg: "not configured"}
	}
	conn, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := db.InitializeDatabase(ctx, conn, db.Postgres); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return NewPostgresFromDB(conn, batchSize), nil
}

// NewPostgresFromDB wraps an open connection whose schema is already in
// place.
func NewPostgresFromDB(conn *sql.DB, batchSize int) *PostgresStore {
	return &PostgresStore{sqlStore: sqlStore{
		db:        conn,
		batchSize: batchSize,
		marker:    dollarMarker,
		logger:    log.ForService("storage"),
	}}
}

func dollarMarker(i int) string {
	return "$" + strconv.Itoa(i)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Modes() []Mode {
	return []Mode{ModeSubstring}
}

func (s *PostgresStore) ReplaceSnapshot(ctx context.Context, snap *core.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	committed := false
	defer s.rollback(tx, &committed)

	if err := s.writeSnapshotRows(ctx, tx, snap); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("snapshot has duplicate keys (%s): %w", pqErr.Constraint, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	committed = true

	s.logger.Debugf("Stored %d collections and %d items", len(snap.Collections), len(snap.Items))
	return nil
}

func (s *PostgresStore) Collections(ctx context.Context) ([]core.Collection, error) {
	return s.collections(ctx)
}

func (s *PostgresStore) Items(ctx context.Context, collectionIDs []string) ([]core.Item, error) {
	if collectionIDs != nil && len(collectionIDs) == 0 {
		return []core.Item{}, nil
	}

	query := "SELECT " + itemColumns + " FROM items"
	var args []any
	if collectionIDs != nil {
		query += " WHERE collection_id = ANY($1)"
		args = append(args, pq.Array(collectionIDs))
	}
	query += " ORDER BY position"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	return s.scanItems(rows)
}

func (s *PostgresStore) Search(ctx context.Context, mode Mode, q core.Query) ([]core.Item, error) {
	if mode != ModeSubstring {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, mode)
	}
	if q.CollectionIDs != nil && len(q.CollectionIDs) == 0 {
		return []core.Item{}, nil
	}

	query := "SELECT " + itemColumns + ` FROM items WHERE search_text LIKE $1 ESCAPE '\'`
	args := []any{likePattern(core.Fold(q.Text))}
	if q.CollectionIDs != nil {
		args = append(args, pq.Array(q.CollectionIDs))
		query += " AND collection_id = ANY(" + dollarMarker(len(args)) + ")"
	}
	query += " ORDER BY position"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += " LIMIT " + dollarMarker(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching items: %w", err)
	}
	return s.scanItems(rows)
}

func (s *PostgresStore) LastSynced(ctx context.Context) (time.Time, error) {
	return s.lastSynced(ctx)
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	return s.stats(ctx, "postgres")
}
