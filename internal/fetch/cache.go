package fetch

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var responseBucket = []byte("responses")

// Cache stores fetched response bodies in a bbolt file with a TTL, so an
// interrupted crawl can resume without re-hitting pages it already has.
type Cache struct {
	db  *bolt.DB
	ttl time.Duration
}

// OpenCache opens (or creates) the cache file. A non-positive ttl defaults
// to one hour.
func OpenCache(path string, ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(responseBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init cache bucket: %w", err)
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Get returns the cached body for a URL if present and not expired.
func (c *Cache) Get(url string) ([]byte, bool) {
	var body []byte
	c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(responseBucket).Get(cacheKey(url))
		if len(raw) < 8 {
			return nil
		}
		stored := time.Unix(int64(binary.BigEndian.Uint64(raw[:8])), 0)
		if time.Since(stored) > c.ttl {
			return nil
		}
		body = append([]byte(nil), raw[8:]...)
		return nil
	})
	return body, body != nil
}

// Put stores a body under the URL with the current timestamp.
func (c *Cache) Put(url string, body []byte) error {
	raw := make([]byte, 8+len(body))
	binary.BigEndian.PutUint64(raw[:8], uint64(time.Now().Unix()))
	copy(raw[8:], body)
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(responseBucket).Put(cacheKey(url), raw)
	})
}

// Purge drops all entries; used when a crawl wants a guaranteed-fresh view.
func (c *Cache) Purge() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(responseBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(responseBucket)
		return err
	})
}

// Close closes the underlying file.
func (c *Cache) Close() error {
	return c.db.Close()
}

func cacheKey(url string) []byte {
	sum := sha256.Sum256([]byte(url))
	return sum[:]
}
