package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const postColumns = `id, source, text, content_hash, posted_at, imported_at, updated_at`

// AddPost upserts a post by id. Returns false (and writes nothing) when the
// stored row already has the same text and source. A post without a source
// keeps the stored row's source.
func (s *SQLiteStore) AddPost(ctx context.Context, p *Post) (bool, error) {
	if strings.TrimSpace(p.ID) == "" {
		return false, fmt.Errorf("post id cannot be empty")
	}

	if p.Source == "" {
		var stored string
		err := s.db.QueryRowContext(ctx, `SELECT source FROM posts WHERE id = ?`, p.ID).Scan(&stored)
		if err != nil && err != sql.ErrNoRows {
			return false, fmt.Errorf("looking up post %s: %w", p.ID, err)
		}
		p.Source = stored
	}

	p.ContentHash = HashPostContent(p.Source, p.Text)
	now := time.Now().UTC()

	var postedAt interface{}
	if p.PostedAt != nil {
		postedAt = p.PostedAt.UTC()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (id, source, text, content_hash, posted_at, imported_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   source       = COALESCE(NULLIF(excluded.source, ''), posts.source),
		   text         = excluded.text,
		   content_hash = excluded.content_hash,
		   posted_at    = COALESCE(excluded.posted_at, posts.posted_at),
		   updated_at   = excluded.updated_at
		 WHERE posts.content_hash != excluded.content_hash`,
		p.ID, p.Source, p.Text, p.ContentHash, postedAt, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("upserting post %s: %w", p.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking upsert result: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	p.UpdatedAt = now
	return true, nil
}

// GetPost retrieves a post by id. Returns nil if not found.
func (s *SQLiteStore) GetPost(ctx context.Context, id string) (*Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ?`, id,
	)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting post %s: %w", id, err)
	}
	return p, nil
}

// ListPosts returns posts newest first (by posted_at, then import time).
func (s *SQLiteStore) ListPosts(ctx context.Context, opts ListOpts) ([]*Post, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}

	query := `SELECT ` + postColumns + ` FROM posts WHERE 1=1`
	args := []interface{}{}

	if opts.Source != "" {
		query += " AND source = ?"
		args = append(args, opts.Source)
	}
	// posted_at is stored as text; compare on the date prefix.
	if opts.After != "" {
		query += " AND SUBSTR(posted_at, 1, 10) >= ?"
		args = append(args, opts.After)
	}
	if opts.Before != "" {
		query += " AND SUBSTR(posted_at, 1, 10) <= ?"
		args = append(args, opts.Before)
	}

	query += " ORDER BY COALESCE(posted_at, imported_at) DESC, id ASC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

// SearchPosts finds posts whose text contains query (case-insensitive for
// ASCII, as SQLite LIKE is).
func (s *SQLiteStore) SearchPosts(ctx context.Context, query string, limit int) ([]*Post, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts
		 WHERE text LIKE ? ESCAPE '\'
		 ORDER BY COALESCE(posted_at, imported_at) DESC, id ASC
		 LIMIT ?`,
		"%"+escapeLike(query)+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching posts: %w", err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

// DeletePost removes a post. Deleting a missing post is an error.
func (s *SQLiteStore) DeletePost(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting post %s: %w", id, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("post %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (*Post, error) {
	p := &Post{}
	var postedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.Source, &p.Text, &p.ContentHash, &postedAt, &p.ImportedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if postedAt.Valid {
		t := postedAt.Time
		p.PostedAt = &t
	}
	return p, nil
}

func scanPosts(rows *sql.Rows) ([]*Post, error) {
	var posts []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning post row: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// escapeLike escapes LIKE wildcards so the query is matched literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
