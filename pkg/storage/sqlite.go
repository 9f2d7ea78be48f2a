package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/db"
	"github.com/rubiojr/cmsmirror/pkg/log"
)

// SQLiteStore keeps rows and the FTS5 index in one database file. Rows and
// index are rewritten in the same transaction, so they never disagree.
type SQLiteStore struct {
	sqlStore
	path string
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(ctx context.Context, path string, batchSize int) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+filepath.ToSlash(path)+"?_pragma=busy_timeout(30000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB cache
		"PRAGMA temp_store = memory",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	if err := db.InitializeDatabase(ctx, conn, db.SQLite); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &SQLiteStore{
		sqlStore: sqlStore{
			db:        conn,
			batchSize: batchSize,
			marker:    questionMark,
			logger:    log.ForService("storage"),
		},
		path: path,
	}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Modes() []Mode {
	return []Mode{ModeFTS, ModeSubstring}
}

func (s *SQLiteStore) ReplaceSnapshot(ctx context.Context, snap *core.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	committed := false
	defer s.rollback(tx, &committed)

	if err := s.writeSnapshotRows(ctx, tx, snap); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM items_fts"); err != nil {
		return fmt.Errorf("clearing search index: %w", err)
	}
	ftsRows := make([][]any, 0, len(snap.Items))
	for _, item := range snap.Items {
		ftsRows = append(ftsRows, []any{item.ID, item.Name, item.SearchText})
	}
	if err := s.insertChunked(ctx, tx, "items_fts", "id, name, search_text", ftsRows); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	committed = true

	s.logger.Debugf("Stored %d collections and %d items", len(snap.Collections), len(snap.Items))
	return nil
}

func (s *SQLiteStore) Collections(ctx context.Context) ([]core.Collection, error) {
	return s.collections(ctx)
}

func (s *SQLiteStore) Items(ctx context.Context, collectionIDs []string) ([]core.Item, error) {
	if collectionIDs != nil && len(collectionIDs) == 0 {
		return []core.Item{}, nil
	}

	query := "SELECT " + itemColumns + " FROM items"
	var args []any
	if collectionIDs != nil {
		query += " WHERE collection_id IN (" + placeholders(len(collectionIDs), 0, questionMark) + ")"
		args = stringArgs(collectionIDs)
	}
	query += " ORDER BY position"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	return s.scanItems(rows)
}

func (s *SQLiteStore) Search(ctx context.Context, mode Mode, q core.Query) ([]core.Item, error) {
	if q.CollectionIDs != nil && len(q.CollectionIDs) == 0 {
		return []core.Item{}, nil
	}

	var (
		query string
		args  []any
	)
	switch mode {
	case ModeFTS:
		match := BuildFTSQuery(q.Text)
		if match == "" {
			return []core.Item{}, nil
		}
		query = `SELECT i.id, i.collection_id, i.collection_slug, i.name, i.slug, i.field_data, i.search_text, i.position
			FROM items_fts
			JOIN items i ON i.id = items_fts.id
			WHERE items_fts MATCH ?`
		args = append(args, match)
		if q.CollectionIDs != nil {
			query += " AND i.collection_id IN (" + placeholders(len(q.CollectionIDs), 0, questionMark) + ")"
			args = append(args, stringArgs(q.CollectionIDs)...)
		}
		query += " ORDER BY items_fts.rank"

	case ModeSubstring:
		query = "SELECT " + itemColumns + ` FROM items WHERE search_text LIKE ? ESCAPE '\'`
		args = append(args, likePattern(core.Fold(q.Text)))
		if q.CollectionIDs != nil {
			query += " AND collection_id IN (" + placeholders(len(q.CollectionIDs), 0, questionMark) + ")"
			args = append(args, stringArgs(q.CollectionIDs)...)
		}
		query += " ORDER BY position"

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, mode)
	}

	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching items: %w", err)
	}
	return s.scanItems(rows)
}

func (s *SQLiteStore) LastSynced(ctx context.Context) (time.Time, error) {
	return s.lastSynced(ctx)
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats, err := s.stats(ctx, "sqlite")
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	return stats, nil
}

// Check runs SQLite's integrity check and compares the search index with
// the item rows.
func (s *SQLiteStore) Check(ctx context.Context) (*CheckReport, error) {
	report := &CheckReport{}

	rows, err := s.db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return nil, fmt.Errorf("running integrity check: %w", err)
	}
	var messages []string
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			s.closeRows(rows)
			return nil, fmt.Errorf("scanning integrity check: %w", err)
		}
		messages = append(messages, msg)
	}
	s.closeRows(rows)
	report.IntegrityOK = len(messages) == 1 && messages[0] == "ok"
	if !report.IntegrityOK {
		report.Problems = append(report.Problems, "integrity: "+strings.Join(messages, "; "))
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&report.ItemRows); err != nil {
		return nil, fmt.Errorf("counting items: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items_fts").Scan(&report.IndexRows); err != nil {
		return nil, fmt.Errorf("counting index rows: %w", err)
	}
	if report.ItemRows != report.IndexRows {
		report.Problems = append(report.Problems,
			fmt.Sprintf("search index has %d rows for %d items", report.IndexRows, report.ItemRows))
	}

	var missing int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items WHERE id NOT IN (SELECT id FROM items_fts)").Scan(&missing)
	if err != nil {
		return nil, fmt.Errorf("comparing index with items: %w", err)
	}
	if missing > 0 {
		report.Problems = append(report.Problems, fmt.Sprintf("%d items missing from the search index", missing))
	}

	return report, nil
}

// RebuildIndex regenerates the search index from the item rows.
func (s *SQLiteStore) RebuildIndex(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	committed := false
	defer s.rollback(tx, &committed)

	if _, err := tx.ExecContext(ctx, "DELETE FROM items_fts"); err != nil {
		return fmt.Errorf("clearing search index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO items_fts (id, name, search_text) SELECT id, name, search_text FROM items ORDER BY position"); err != nil {
		return fmt.Errorf("repopulating search index: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing index rebuild: %w", err)
	}
	committed = true

	if _, err := s.db.ExecContext(ctx, "INSERT INTO items_fts (items_fts) VALUES ('optimize')"); err != nil {
		return fmt.Errorf("optimizing search index: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Optimize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA optimize")
	return err
}

func (s *SQLiteStore) Analyze(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "ANALYZE")
	return err
}

func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

func (s *SQLiteStore) WALCheckpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
