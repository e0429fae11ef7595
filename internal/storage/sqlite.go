package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/BenjaminSRussell/go_gopher/internal/gopher"
	"github.com/BenjaminSRussell/go_gopher/internal/types"
	_ "github.com/mattn/go-sqlite3"
)

// Index stores every parsed listing entry and fetch outcome in SQLite so a
// finished crawl can be queried.
type Index struct {
	db *sql.DB
}

// KindCount is the number of listing entries of one item type
type KindCount struct {
	Kind  string
	Count int
}

// NewIndex opens (or creates) an index database
func NewIndex(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// go-sqlite3 serializes writers; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		listing TEXT NOT NULL,
		position INTEGER NOT NULL,
		kind TEXT NOT NULL,
		selector TEXT NOT NULL,
		host TEXT NOT NULL,
		port TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_listing ON entries(listing);
	CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(kind);
	CREATE INDEX IF NOT EXISTS idx_entries_host ON entries(host);

	CREATE TABLE IF NOT EXISTS fetches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		selector TEXT UNIQUE NOT NULL,
		mode TEXT NOT NULL,
		kind TEXT NOT NULL,
		size INTEGER NOT NULL,
		complete INTEGER NOT NULL,
		title TEXT,
		description TEXT,
		link_count INTEGER,
		error TEXT,
		crawled_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_fetches_mode ON fetches(mode);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Index{db: db}, nil
}

// SaveListing stores the entries of one listing in order
func (ix *Index) SaveListing(listing string, entries []gopher.Entry) error {
	tx, err := ix.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM entries WHERE listing = ?", listing); err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO entries (listing, position, kind, selector, host, port) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.Exec(listing, i, string(e.Kind), e.Selector, e.Host, e.Port); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveFetch stores a fetch outcome, replacing an earlier one for the
// same selector
func (ix *Index) SaveFetch(record types.FetchRecord) error {
	query := `
		INSERT OR REPLACE INTO fetches
		(selector, mode, kind, size, complete, title, description, link_count, error, crawled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := ix.db.Exec(query,
		record.Selector,
		string(record.Mode),
		record.Kind,
		record.Size,
		record.Complete,
		record.Title,
		record.Description,
		record.LinkCount,
		record.Error,
		record.CrawledAt.UTC().Format(time.RFC3339Nano),
	)

	return err
}

// QueryFetches returns fetch outcomes, optionally filtered by mode
func (ix *Index) QueryFetches(mode types.FetchMode) ([]types.FetchRecord, error) {
	query := "SELECT selector, mode, kind, size, complete, title, description, link_count, error, crawled_at FROM fetches WHERE 1=1"
	args := make([]interface{}, 0)

	if mode != "" {
		query += " AND mode = ?"
		args = append(args, string(mode))
	}
	query += " ORDER BY id"

	rows, err := ix.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]types.FetchRecord, 0)
	for rows.Next() {
		var record types.FetchRecord
		var recordMode, crawledAt string
		var title, description, fetchErr sql.NullString
		var linkCount sql.NullInt64
		err := rows.Scan(
			&record.Selector,
			&recordMode,
			&record.Kind,
			&record.Size,
			&record.Complete,
			&title,
			&description,
			&linkCount,
			&fetchErr,
			&crawledAt,
		)
		if err != nil {
			continue
		}
		record.Mode = types.FetchMode(recordMode)
		record.Title = title.String
		record.Description = description.String
		record.LinkCount = int(linkCount.Int64)
		record.Error = fetchErr.String
		record.CrawledAt, _ = time.Parse(time.RFC3339Nano, crawledAt)
		records = append(records, record)
	}

	return records, rows.Err()
}

// KindCounts returns how many listing entries of each kind were seen
func (ix *Index) KindCounts() ([]KindCount, error) {
	rows, err := ix.db.Query("SELECT kind, COUNT(*) FROM entries GROUP BY kind ORDER BY kind")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]KindCount, 0)
	for rows.Next() {
		var kc KindCount
		if err := rows.Scan(&kc.Kind, &kc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, kc)
	}
	return counts, rows.Err()
}

// GetStats returns aggregate counts over the index
func (ix *Index) GetStats() (map[string]int, error) {
	stats := make(map[string]int)

	queries := map[string]string{
		"listings":       "SELECT COUNT(DISTINCT listing) FROM entries",
		"entries":        "SELECT COUNT(*) FROM entries",
		"hosts":          "SELECT COUNT(DISTINCT host) FROM entries WHERE kind NOT IN ('i', '3', '')",
		"fetches":        "SELECT COUNT(*) FROM fetches",
		"failed_fetches": "SELECT COUNT(*) FROM fetches WHERE error IS NOT NULL AND error != ''",
		"incomplete":     "SELECT COUNT(*) FROM fetches WHERE complete = 0",
		"bytes":          "SELECT COALESCE(SUM(size), 0) FROM fetches",
	}

	for name, query := range queries {
		var n int
		if err := ix.db.QueryRow(query).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to compute %s: %w", name, err)
		}
		stats[name] = n
	}

	return stats, nil
}

// Close closes the database connection
func (ix *Index) Close() error {
	return ix.db.Close()
}
