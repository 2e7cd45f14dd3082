// Package index implements the sqlite-backed content index.
//
// The index stores metadata about every piece of stored content. It is only
// an index: it can be rebuilt at any time from the backends. Its primary
// uses are tracking expiry times, routing reads to the right backend and
// feeding the content metrics.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/bytebin-io/bytebin/internal/content"
	"github.com/bytebin-io/bytebin/internal/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS content (
	key TEXT PRIMARY KEY,
	content_type TEXT NOT NULL,
	expiry INTEGER,
	last_modified INTEGER NOT NULL,
	modifiable INTEGER NOT NULL,
	auth_key TEXT,
	encoding TEXT NOT NULL,
	backend_id TEXT NOT NULL,
	content_length INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS content_expiry_idx ON content (expiry);
CREATE INDEX IF NOT EXISTS content_type_idx ON content (content_type);
`

// Lister is the slice of a storage backend the rebuild needs.
type Lister interface {
	BackendID() string
	List(ctx context.Context, fn func(*content.Content) error) error
}

// Database is the content index.
type Database struct {
	db *sql.DB

	// label pairs already exported, so gauges can be zeroed when content
	// disappears
	seenMu     sync.Mutex
	seenLabels map[[2]string]struct{}
}

// Open opens (or creates) the index database at path.
func Open(path string) (*Database, error) {
	// sqlite won't create the parent directory
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index schema: %w", err)
	}

	return &Database{db: db, seenLabels: make(map[[2]string]struct{})}, nil
}

// Initialise opens the index, rebuilding it from the backends when the
// database file does not exist yet.
func Initialise(ctx context.Context, path string, backends []Lister) (*Database, error) {
	_, statErr := os.Stat(path)
	rebuild := os.IsNotExist(statErr)

	db, err := Open(path)
	if err != nil {
		return nil, err
	}

	if rebuild {
		log.Info().Msg("rebuilding content index, this may take a while...")
		for _, backend := range backends {
			var batch []*content.Content
			err := backend.List(ctx, func(c *content.Content) error {
				batch = append(batch, c)
				return nil
			})
			if err != nil {
				log.Error().Err(err).Str("backend", backend.BackendID()).Msg("error rebuilding index for backend")
				continue
			}
			db.PutAll(ctx, batch)
			log.Info().Str("backend", backend.BackendID()).Int("entries", len(batch)).Msg("rebuilt index for backend")
		}
	}

	return db, nil
}

func (d *Database) observe(op string, err error) {
	if err != nil {
		log.Error().Err(err).Str("operation", op).Msg("error performing index operation")
		metrics.DBErrors.WithLabelValues(op).Inc()
	}
}

func expiryMillis(c *content.Content) any {
	if !c.Expires() {
		return nil
	}
	return c.Expiry.UnixMilli()
}

// Put inserts or replaces the index entry for c.
func (d *Database) Put(ctx context.Context, c *content.Content) {
	timer := time.Now()
	_, err := d.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO content
		(key, content_type, expiry, last_modified, modifiable, auth_key, encoding, backend_id, content_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Key, c.ContentType, expiryMillis(c), c.LastModified.UnixMilli(),
		c.Modifiable, c.AuthKey, c.Encoding, c.BackendID, c.ContentLength,
	)
	metrics.DBTransactionDuration.WithLabelValues("put").Observe(time.Since(timer).Seconds())
	d.observe("put", err)
}

// PutAll inserts entries in a single transaction.
func (d *Database) PutAll(ctx context.Context, entries []*content.Content) {
	if len(entries) == 0 {
		return
	}
	timer := time.Now()
	err := func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO content
			(key, content_type, expiry, last_modified, modifiable, auth_key, encoding, backend_id, content_length)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range entries {
			_, err := stmt.ExecContext(ctx,
				c.Key, c.ContentType, expiryMillis(c), c.LastModified.UnixMilli(),
				c.Modifiable, c.AuthKey, c.Encoding, c.BackendID, c.ContentLength,
			)
			if err != nil {
				return err
			}
		}
		return tx.Commit()
	}()
	metrics.DBTransactionDuration.WithLabelValues("put_all").Observe(time.Since(timer).Seconds())
	d.observe("put_all", err)
}

func scanEntry(scan func(...any) error) (*content.Content, error) {
	var (
		c            content.Content
		expiry       sql.NullInt64
		lastModified int64
		authKey      sql.NullString
	)
	err := scan(&c.Key, &c.ContentType, &expiry, &lastModified,
		&c.Modifiable, &authKey, &c.Encoding, &c.BackendID, &c.ContentLength)
	if err != nil {
		return nil, err
	}
	if expiry.Valid {
		c.Expiry = time.UnixMilli(expiry.Int64)
	}
	c.LastModified = time.UnixMilli(lastModified)
	c.AuthKey = authKey.String
	return &c, nil
}

const selectColumns = `key, content_type, expiry, last_modified, modifiable, auth_key, encoding, backend_id, content_length`

// Get returns the metadata entry for key, or nil when absent.
func (d *Database) Get(ctx context.Context, key string) *content.Content {
	timer := time.Now()
	row := d.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM content WHERE key = ?`, key)
	c, err := scanEntry(row.Scan)
	metrics.DBTransactionDuration.WithLabelValues("get").Observe(time.Since(timer).Seconds())
	if err == sql.ErrNoRows {
		return nil
	}
	d.observe("get", err)
	if err != nil {
		return nil
	}
	return c
}

// Remove deletes the entry for key.
func (d *Database) Remove(ctx context.Context, key string) {
	timer := time.Now()
	_, err := d.db.ExecContext(ctx, `DELETE FROM content WHERE key = ?`, key)
	metrics.DBTransactionDuration.WithLabelValues("remove").Observe(time.Since(timer).Seconds())
	d.observe("remove", err)
}

// GetExpired returns the entries whose expiry time has passed.
func (d *Database) GetExpired(ctx context.Context) []*content.Content {
	timer := time.Now()
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM content WHERE expiry IS NOT NULL AND expiry < ?`,
		time.Now().UnixMilli(),
	)
	metrics.DBTransactionDuration.WithLabelValues("get_expired").Observe(time.Since(timer).Seconds())
	if err != nil {
		d.observe("get_expired", err)
		return nil
	}
	defer rows.Close()

	var expired []*content.Content
	for rows.Next() {
		c, err := scanEntry(rows.Scan)
		if err != nil {
			d.observe("get_expired", err)
			return expired
		}
		expired = append(expired, c)
	}
	d.observe("get_expired", rows.Err())
	return expired
}

// RecordMetrics exports the stored content count and size gauges, zeroing
// label pairs that have disappeared since the last export.
func (d *Database) RecordMetrics(ctx context.Context) {
	timer := time.Now()
	rows, err := d.db.QueryContext(ctx, `
		SELECT content_type, backend_id, count(*), sum(content_length)
		FROM content GROUP BY content_type, backend_id`)
	metrics.DBTransactionDuration.WithLabelValues("record_metrics").Observe(time.Since(timer).Seconds())
	if err != nil {
		d.observe("record_metrics", err)
		return
	}
	defer rows.Close()

	current := make(map[[2]string]struct{})
	for rows.Next() {
		var (
			contentType, backend string
			count, size          int64
		)
		if err := rows.Scan(&contentType, &backend, &count, &size); err != nil {
			d.observe("record_metrics", err)
			return
		}
		metrics.StoredContentCount.WithLabelValues(contentType, backend).Set(float64(count))
		metrics.StoredContentSize.WithLabelValues(contentType, backend).Set(float64(size))
		current[[2]string{contentType, backend}] = struct{}{}
	}
	d.observe("record_metrics", rows.Err())

	d.seenMu.Lock()
	defer d.seenMu.Unlock()
	for pair := range d.seenLabels {
		if _, ok := current[pair]; !ok {
			metrics.StoredContentCount.WithLabelValues(pair[0], pair[1]).Set(0)
			metrics.StoredContentSize.WithLabelValues(pair[0], pair[1]).Set(0)
		}
	}
	for pair := range current {
		d.seenLabels[pair] = struct{}{}
	}
}

// Close closes the underlying database.
func (d *Database) Close() error {
	return d.db.Close()
}
