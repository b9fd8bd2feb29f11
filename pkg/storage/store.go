// Package storage is a content-addressed document store. Blobs are keyed by
// the SHA-256 of their bytes, so uploading the same content twice is a no-op.
package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	_ "modernc.org/sqlite"

	"github.com/chainscribe/chainscribe/pkg/models"
)

var (
	// ErrNotFound is returned when no content exists for a hash.
	ErrNotFound = errors.New("content not found")
	// ErrEmptyContent is returned when uploading zero bytes.
	ErrEmptyContent = errors.New("content is empty")
)

// Store persists content in SQLite behind an in-memory read cache.
type Store struct {
	db    *sql.DB
	cache *ristretto.Cache[string, []byte]
	now   func() time.Time
}

const createContentTable = `
CREATE TABLE IF NOT EXISTS contents (
	content_hash TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	size INTEGER NOT NULL,
	tags TEXT,
	created_at INTEGER NOT NULL
);
`

// New opens the content store. cacheMaxBytes bounds the read cache; zero
// disables it.
func New(dbPath string, cacheMaxBytes int64) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}
	if _, err := db.Exec(createContentTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate storage db: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if cacheMaxBytes > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
			NumCounters: 1e5,
			MaxCost:     cacheMaxBytes,
			BufferItems: 64,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create storage cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// HashContent returns the hex SHA-256 of data.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Upload stores data and returns its receipt. Re-uploading existing content
// returns the original receipt.
func (s *Store) Upload(ctx context.Context, data []byte, tags map[string]string) (models.StoredContent, error) {
	if len(data) == 0 {
		return models.StoredContent{}, ErrEmptyContent
	}
	hash := HashContent(data)

	var tagsJSON []byte
	if len(tags) > 0 {
		var err error
		if tagsJSON, err = json.Marshal(tags); err != nil {
			return models.StoredContent{}, fmt.Errorf("encode tags: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO contents (content_hash, data, size, tags, created_at) VALUES (?, ?, ?, ?, ?)`,
		hash, data, len(data), string(tagsJSON), s.now().UnixMilli(),
	)
	if err != nil {
		return models.StoredContent{}, fmt.Errorf("store content: %w", err)
	}
	return s.Stat(ctx, hash)
}

// Stat returns the receipt for a stored hash without its bytes.
func (s *Store) Stat(ctx context.Context, hash string) (models.StoredContent, error) {
	var (
		rec       models.StoredContent
		tags      sql.NullString
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash, size, tags, created_at FROM contents WHERE content_hash = ?`, hash,
	).Scan(&rec.ContentHash, &rec.Size, &tags, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StoredContent{}, ErrNotFound
	}
	if err != nil {
		return models.StoredContent{}, fmt.Errorf("stat content: %w", err)
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &rec.Tags); err != nil {
			return models.StoredContent{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	return rec, nil
}

// Download returns the bytes stored under hash.
func (s *Store) Download(ctx context.Context, hash string) ([]byte, error) {
	if s.cache != nil {
		if data, ok := s.cache.Get(hash); ok {
			return data, nil
		}
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM contents WHERE content_hash = ?`, hash).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(hash, data, int64(len(data)))
	}
	return data, nil
}

// Close releases the cache and the database connection.
func (s *Store) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	return s.db.Close()
}
