// Package cache implements the gateway's TTL cache: a durable,
// single-file key/value store that survives process restarts. Each
// value is stamped with its insertion time so reads can expire
// entries lazily without a background sweep.
package cache

import (
	"bytes"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var bucketName = []byte("cache")

// Cache is a bbolt-backed TTL store. All operations are atomic with
// respect to one another because bbolt serializes writers and gives
// readers a consistent snapshot; no additional mutex is needed.
type Cache struct {
	db     *bbolt.DB
	ttl    time.Duration
	logger *zap.Logger

	now func() time.Time
}

// Open opens (creating if absent) the bbolt file at path and ensures
// the cache bucket exists.
func Open(path string, ttl time.Duration, logger *zap.Logger) (*Cache, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create bucket: %w", err)
	}

	return &Cache{db: db, ttl: ttl, logger: logger, now: time.Now}, nil
}

// Close releases the underlying storage.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the stored value and its insertion time. A miss is
// reported both when the key is absent and when it has expired; an
// expired entry is deleted as a side effect of the read.
func (c *Cache) Get(key string) (value string, createdAt time.Time, ok bool, err error) {
	err = c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}

		ts, v, perr := decode(raw)
		if perr != nil {
			return perr
		}

		if c.ttl > 0 && c.now().Sub(ts) > c.ttl {
			return b.Delete([]byte(key))
		}

		value = v
		createdAt = ts
		ok = true
		return nil
	})
	if err != nil {
		return "", time.Time{}, false, err
	}

	return value, createdAt, ok, nil
}

// Set upserts value under key, stamping it with the current time.
func (c *Cache) Set(key, value string) error {
	blob := encode(c.now(), value)
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), blob)
	})
}

// PurgeExpired deletes every entry older than now-ttl, returning the
// count removed. It is a no-op when ttl<=0.
func (c *Cache) PurgeExpired() (int, error) {
	if c.ttl <= 0 {
		return 0, nil
	}

	now := c.now()
	var stale [][]byte

	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		err := b.ForEach(func(k, raw []byte) error {
			ts, _, perr := decode(raw)
			if perr != nil {
				return perr
			}
			if now.Sub(ts) > c.ttl {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	c.logger.Debug("purged expired cache entries", zap.Int("count", len(stale)))
	return len(stale), nil
}

// encode packs a unix-second timestamp and the value into
// "<unix_seconds>\x00<value>", avoiding a serialization dependency for
// a two-field record.
func encode(t time.Time, value string) []byte {
	return []byte(fmt.Sprintf("%d\x00%s", t.Unix(), value))
}

func decode(raw []byte) (time.Time, string, error) {
	i := bytes.IndexByte(raw, 0)
	if i < 0 {
		return time.Time{}, "", fmt.Errorf("cache: malformed entry")
	}

	var sec int64
	if _, err := fmt.Sscanf(string(raw[:i]), "%d", &sec); err != nil {
		return time.Time{}, "", fmt.Errorf("cache: malformed timestamp: %w", err)
	}

	return time.Unix(sec, 0), string(raw[i+1:]), nil
}
