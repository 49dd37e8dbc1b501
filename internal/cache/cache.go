// Package cache persists preview bytes keyed by content sha, so
// repeated preview fetches do not re-hit the raw host. Content-addressed
// entries never go stale: a changed file has a new sha.
package cache

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// cacheDirPerm is the permission mode for the state directory.
	cacheDirPerm = fs.FileMode(0o700)

	// cacheFilePerm is the permission mode for the cache database file.
	cacheFilePerm = fs.FileMode(0o600)

	// cacheOpenTimeout is the maximum time to wait for the bolt database lock.
	cacheOpenTimeout = 5 * time.Second

	// MaxEntrySize caps a single cached blob. Anything larger is served
	// straight through without caching.
	MaxEntrySize = 8 << 20
)

var previewBucket = []byte("previews")

// Cache is a bbolt-backed sha → bytes store.
type Cache struct {
	db *bolt.DB
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), cacheDirPerm); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := bolt.Open(path, cacheFilePerm, &bolt.Options{Timeout: cacheOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(previewBucket)

		return err
	})
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("initializing cache db: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close releases the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached bytes for a sha, or nil when absent.
func (c *Cache) Get(sha string) ([]byte, error) {
	var out []byte

	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(previewBucket).Get([]byte(sha))
		if v != nil {
			out = make([]byte, len(v))
			copy(out, v)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}

	return out, nil
}

// Put stores bytes under a sha. Oversized entries are silently skipped.
func (c *Cache) Put(sha string, data []byte) error {
	if len(data) > MaxEntrySize {
		return nil
	}

	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(previewBucket).Put([]byte(sha), data)
	})
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}

	return nil
}
