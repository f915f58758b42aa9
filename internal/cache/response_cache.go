package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc performs the network call for a cache miss and returns the raw
// response payload.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Result is the outcome of a cache-aware read. Stale is set only on the
// stale-serve path, where a failed fetch was softened into cached data.
type Result struct {
	Data      []byte
	FromCache bool
	Stale     bool
}

// ResponseCache is the request-keyed cache shared by all catalog screens.
// Concurrent Gets for the same key collapse into one fetch via singleflight,
// so rapid scroll events cannot trigger duplicate network calls.
type ResponseCache struct {
	storage Storage
	sfg     singleflight.Group
	log     *slog.Logger
	now     func() time.Time
}

func New(storage Storage, log *slog.Logger) *ResponseCache {
	return &ResponseCache{
		storage: storage,
		log:     log,
		now:     time.Now,
	}
}

// Get returns the cached payload for the request when a non-stale entry
// exists and no override was requested. Otherwise it fetches, stores the
// fresh payload under the request's TTL and returns it.
//
// When the fetch fails and any entry exists, even a stale one, the entry is
// served instead of the error: in the field, stale data beats no data. With
// no entry at all the fetch error propagates.
func (c *ResponseCache) Get(ctx context.Context, req Request, fetch FetchFunc) (Result, error) {
	key := req.Key()

	v, err, _ := c.sfg.Do(key, func() (interface{}, error) {
		entry := c.lookup(ctx, key)

		if entry != nil && !req.Override && !entry.Stale(c.now()) {
			return Result{Data: entry.Payload, FromCache: true}, nil
		}

		data, fetchErr := fetch(ctx)
		if fetchErr != nil {
			if entry != nil {
				c.log.Warn("fetch failed, serving cached entry",
					"key", key, "error", fetchErr, "stale", entry.Stale(c.now()))
				return Result{Data: entry.Payload, FromCache: true, Stale: true}, nil
			}
			return Result{}, fetchErr
		}

		if setErr := c.Set(ctx, key, data, req.TTL); setErr != nil {
			// A failed write degrades to uncached behavior, nothing more.
			c.log.Warn("cache set failed", "key", key, "error", setErr)
		}

		return Result{Data: data, FromCache: false}, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// Set stores a payload under the given key and TTL. TTLForever entries stay
// until an override fetch or an explicit remove replaces them.
func (c *ResponseCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return c.storage.Set(ctx, key, &Entry{
		Key:      key,
		Payload:  payload,
		StoredAt: c.now(),
		TTL:      ttl,
	})
}

// Remove drops the entry for an exact key.
func (c *ResponseCache) Remove(ctx context.Context, key string) error {
	return c.storage.Remove(ctx, key)
}

// RemovePrefix drops every entry whose key starts with prefix. Used by
// "clear cache" operations that must not disturb session-scoped keys.
func (c *ResponseCache) RemovePrefix(ctx context.Context, prefix string) error {
	return c.storage.RemovePrefix(ctx, prefix)
}

// lookup reads the stored entry, treating corruption as a miss: the bad
// entry is deleted so the next read refetches cleanly.
func (c *ResponseCache) lookup(ctx context.Context, key string) *Entry {
	entry, err := c.storage.Find(ctx, key)
	if err == nil {
		return entry
	}
	if errors.Is(err, ErrCorruptEntry) {
		c.log.Warn("dropping corrupt cache entry", "key", key)
		if rmErr := c.storage.Remove(ctx, key); rmErr != nil {
			c.log.Warn("failed to drop corrupt entry", "key", key, "error", rmErr)
		}
		return nil
	}
	if !errors.Is(err, ErrNoEntry) {
		c.log.Warn("cache find failed", "key", key, "error", err)
	}
	return nil
}
