package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/log"
)

// sqlStore holds what the SQLite and Postgres backends share: the relational
// layout (collections, items, sync_meta) and how snapshots are written to it.
type sqlStore struct {
	db        *sql.DB
	batchSize int
	marker    func(i int) string
	logger    *log.Logger
}

// DB exposes the connection for the migrate command.
func (s *sqlStore) DB() *sql.DB {
	return s.db
}

const itemColumns = "id, collection_id, collection_slug, name, slug, field_data, search_text, position"

// writeSnapshotRows replaces the relational content inside tx. The caller
// owns the transaction.
func (s *sqlStore) writeSnapshotRows(ctx context.Context, tx *sql.Tx, snap *core.Snapshot) error {
	for _, table := range []string{"items", "collections"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	collectionRows := make([][]any, 0, len(snap.Collections))
	for i, c := range snap.Collections {
		collectionRows = append(collectionRows, []any{c.ID, c.Slug, c.DisplayName, c.SingularName, i})
	}
	if err := s.insertChunked(ctx, tx, "collections", "id, slug, display_name, singular_name, position", collectionRows); err != nil {
		return err
	}

	itemRows := make([][]any, 0, len(snap.Items))
	for i, item := range snap.Items {
		fd, err := json.Marshal(item.FieldData)
		if err != nil {
			return fmt.Errorf("encoding field data of item %s: %w", item.ID, err)
		}
		itemRows = append(itemRows, []any{
			item.ID, item.CollectionID, item.CollectionSlug, item.Name, item.Slug, string(fd), item.SearchText, i,
		})
	}
	if err := s.insertChunked(ctx, tx, "items", itemColumns, itemRows); err != nil {
		return err
	}

	upsert := fmt.Sprintf(`INSERT INTO sync_meta (key, value) VALUES (%s, %s)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, s.marker(1), s.marker(2))
	if _, err := tx.ExecContext(ctx, upsert, metaLastSync, formatSyncTime(snap.SyncedAt)); err != nil {
		return fmt.Errorf("recording sync time: %w", err)
	}
	return nil
}

// insertChunked writes rows with multi-row INSERTs of at most batchSize rows.
func (s *sqlStore) insertChunked(ctx context.Context, tx *sql.Tx, table, columns string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	width := len(rows[0])
	for _, w := range chunk(len(rows), s.batchSize) {
		batch := rows[w[0]:w[1]]
		values := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*width)
		for i, row := range batch {
			values = append(values, "("+placeholders(width, i*width, s.marker)+")")
			args = append(args, row...)
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, columns, strings.Join(values, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting into %s (rows %d-%d): %w", table, w[0], w[1], err)
		}
	}
	return nil
}

func (s *sqlStore) collections(ctx context.Context) ([]core.Collection, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, slug, display_name, singular_name FROM collections ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("querying collections: %w", err)
	}
	defer s.closeRows(rows)

	collections := make([]core.Collection, 0)
	for rows.Next() {
		var c core.Collection
		if err := rows.Scan(&c.ID, &c.Slug, &c.DisplayName, &c.SingularName); err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		collections = append(collections, c)
	}
	return collections, rows.Err()
}

func (s *sqlStore) lastSynced(ctx context.Context) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM sync_meta WHERE key = "+s.marker(1), metaLastSync).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading last sync time: %w", err)
	}
	return parseSyncTime(value)
}

func (s *sqlStore) stats(ctx context.Context, backend string) (*Stats, error) {
	stats := &Stats{Backend: backend, PerCollection: make([]core.CollectionCount, 0)}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&stats.Items); err != nil {
		return nil, fmt.Errorf("counting items: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.slug, COUNT(i.id)
		FROM collections c
		LEFT JOIN items i ON i.collection_id = c.id
		GROUP BY c.id, c.slug, c.position
		ORDER BY c.position
	`)
	if err != nil {
		return nil, fmt.Errorf("counting items per collection: %w", err)
	}
	defer s.closeRows(rows)

	for rows.Next() {
		var cc core.CollectionCount
		if err := rows.Scan(&cc.Slug, &cc.ItemCount); err != nil {
			return nil, fmt.Errorf("scanning collection count: %w", err)
		}
		stats.PerCollection = append(stats.PerCollection, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats.Collections = len(stats.PerCollection)

	last, err := s.lastSynced(ctx)
	if err != nil {
		return nil, err
	}
	stats.LastSynced = last
	return stats, nil
}

func (s *sqlStore) scanItems(rows *sql.Rows) ([]core.Item, error) {
	defer s.closeRows(rows)

	items := make([]core.Item, 0)
	for rows.Next() {
		var (
			item     core.Item
			fd       string
			position int
		)
		if err := rows.Scan(&item.ID, &item.CollectionID, &item.CollectionSlug, &item.Name, &item.Slug, &fd, &item.SearchText, &position); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		if err := json.Unmarshal([]byte(fd), &item.FieldData); err != nil {
			return nil, fmt.Errorf("decoding field data of item %s: %w", item.ID, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *sqlStore) closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		s.logger.Warnf("Failed to close rows: %v", err)
	}
}

func (s *sqlStore) rollback(tx *sql.Tx, committed *bool) {
	if *committed {
		return
	}
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		s.logger.Warnf("Failed to rollback transaction: %v", err)
	}
}
