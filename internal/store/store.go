// Package store provides the SQLite storage layer for the timeline.
//
// Posts are stored exactly as fetched: one row per post id holding the raw
// text and its source tag. Nothing derived from the text (categories, parsed
// health records) is persisted; readers re-run extraction on every render.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.timeline/timeline.db"

// DefaultListLimit caps list and search results when no limit is given.
const DefaultListLimit = 50

// Post is one stored timeline post.
type Post struct {
	ID          string
	Source      string // source tag as written by the sync layer; may be stale or empty
	Text        string
	ContentHash string
	PostedAt    *time.Time
	ImportedAt  time.Time
	UpdatedAt   time.Time
}

// ListOpts controls pagination and filtering for ListPosts.
type ListOpts struct {
	Limit  int
	Offset int
	Source string // filter by source tag
	After  string // YYYY-MM-DD, inclusive, on posted_at
	Before string // YYYY-MM-DD, inclusive, on posted_at
}

// StoreStats holds counts about the store.
type StoreStats struct {
	PostCount      int64
	PostsBySource  map[string]int64
	ConnectorCount int64
	DBSizeBytes    int64
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// Store defines the post storage interface.
type Store interface {
	// AddPost inserts or replaces the post with p.ID. It reports false when
	// an identical post (same text and source) is already stored.
	AddPost(ctx context.Context, p *Post) (bool, error)
	GetPost(ctx context.Context, id string) (*Post, error)
	ListPosts(ctx context.Context, opts ListOpts) ([]*Post, error)
	DeletePost(ctx context.Context, id string) error

	// SearchPosts is a plain substring match over post text.
	SearchPosts(ctx context.Context, query string, limit int) ([]*Post, error)

	Stats(ctx context.Context) (*StoreStats, error)
	Close() error
}

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) a SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	} else {
		cfg.DBPath = expandPath(cfg.DBPath)
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.DBPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// GetDB exposes the underlying handle for packages that keep their own
// tables in the same file (connector state).
func (s *SQLiteStore) GetDB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Stats returns post counts and the database size.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{PostsBySource: map[string]int64{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&stats.PostCount); err != nil {
		return nil, fmt.Errorf("counting posts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM posts GROUP BY source ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("counting posts by source: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var n int64
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("scanning source count: %w", err)
		}
		stats.PostsBySource[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM connectors`).Scan(&stats.ConnectorCount); err != nil {
		return nil, fmt.Errorf("counting connectors: %w", err)
	}

	var pageCount, pageSize int64
	_ = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
	stats.DBSizeBytes = pageCount * pageSize

	return stats, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
