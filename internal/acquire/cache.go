package acquire

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"github.com/policypulse/policypulse/internal/domain"
)

// Cache is a local SQLite store of the last successfully fetched posts per
// (source, query) pair. When every upstream is down or a breaker is open, a
// run can still proceed on the posts from the previous successful fetch.
type Cache struct {
	writeDB *sql.DB
	readDB  *sql.DB
	clock   clockwork.Clock
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS posts (
	source       TEXT    NOT NULL,
	query        TEXT    NOT NULL,
	id           TEXT    NOT NULL,
	created_utc  TEXT    NOT NULL,
	title        TEXT    NOT NULL,
	body         TEXT    NOT NULL DEFAULT '',
	score        INTEGER NOT NULL DEFAULT 0,
	num_comments INTEGER NOT NULL DEFAULT 0,
	subreddit    TEXT    NOT NULL DEFAULT '',
	url          TEXT    NOT NULL DEFAULT '',
	fetched_at   TEXT    NOT NULL,
	PRIMARY KEY (source, query, id)
);`

// OpenCache opens the post cache at path, creating the file and schema if
// needed. SQLite allows a single writer, so the write connection is capped
// at one; reads go through a separate read-only connection.
func OpenCache(path string, clock clockwork.Clock) (*Cache, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	writeDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	if _, err := writeDB.Exec(cacheSchema); err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}

	readDB, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening cache read connection: %w", err)
	}

	return &Cache{writeDB: writeDB, readDB: readDB, clock: clock}, nil
}

func (c *Cache) Close() error {
	readErr := c.readDB.Close()
	if err := c.writeDB.Close(); err != nil {
		return err
	}
	return readErr
}

// Put upserts a batch of posts for one (source, query) pair. Re-fetched
// posts keep their identity but refresh their engagement counts.
func (c *Cache) Put(ctx context.Context, source domain.Source, query string, posts []domain.Post) error {
	if len(posts) == 0 {
		return nil
	}

	tx, err := c.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning cache transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO posts (source, query, id, created_utc, title, body, score, num_comments, subreddit, url, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source, query, id) DO UPDATE SET
			score        = excluded.score,
			num_comments = excluded.num_comments,
			fetched_at   = excluded.fetched_at`)
	if err != nil {
		return fmt.Errorf("preparing cache upsert: %w", err)
	}
	defer stmt.Close()

	fetchedAt := c.clock.Now().UTC().Format(time.RFC3339)
	for _, p := range posts {
		_, err := stmt.ExecContext(ctx,
			string(source), query, p.ID, p.CreatedUTC.String(),
			p.Title, p.Body, p.Score, p.NumComments, p.Subreddit, p.URL, fetchedAt)
		if err != nil {
			return fmt.Errorf("upserting cached post %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// Get returns up to limit cached posts for one (source, query) pair, newest
// first.
func (c *Cache) Get(ctx context.Context, source domain.Source, query string, limit int) ([]domain.Post, error) {
	rows, err := c.readDB.QueryContext(ctx, `
		SELECT id, created_utc, title, body, score, num_comments, subreddit, url
		FROM posts
		WHERE source = ? AND query = ?
		ORDER BY created_utc DESC
		LIMIT ?`, string(source), query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying post cache: %w", err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var p domain.Post
		var created string
		if err := rows.Scan(&p.ID, &created, &p.Title, &p.Body, &p.Score, &p.NumComments, &p.Subreddit, &p.URL); err != nil {
			return nil, fmt.Errorf("scanning cached post: %w", err)
		}
		if err := p.CreatedUTC.UnmarshalCSV(created); err != nil {
			return nil, fmt.Errorf("parsing cached timestamp %q: %w", created, err)
		}
		p.Source = source
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
