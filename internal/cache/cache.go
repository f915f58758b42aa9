// Package cache implements a request-keyed HTTP response cache with
// per-entry TTL, forced-refresh override and stale-serve fallback, backed by
// a pluggable durable storage adapter.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNoEntry is returned by Storage.Find when the key is absent.
	ErrNoEntry = errors.New("cache entry not found")

	// ErrCorruptEntry marks a stored entry that cannot be decoded. The
	// response cache treats it as a miss: delete and refetch, never fatal.
	ErrCorruptEntry = errors.New("corrupt cache entry")
)

// TTLForever marks an entry that never expires by time. It is only replaced
// by an override fetch or an explicit remove.
const TTLForever time.Duration = -1

// Entry is one cached response. StoredAt and TTL live next to the payload so
// staleness is judged by the cache, not by the backing store.
type Entry struct {
	Key      string          `json:"key"`
	Payload  json.RawMessage `json:"payload"`
	StoredAt time.Time       `json:"storedAt"`
	TTL      time.Duration   `json:"ttl"`
}

// Stale reports whether the entry must not be served without revalidation.
// Entries with TTLForever are never stale.
func (e *Entry) Stale(now time.Time) bool {
	if e.TTL < 0 {
		return false
	}
	return now.Sub(e.StoredAt) > e.TTL
}

// Storage is the durable key-value adapter behind the response cache.
// Implementations must tolerate concurrent calls from independent screens;
// last-write-wins per key is acceptable and no cross-key transactions are
// required.
type Storage interface {
	Find(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Remove(ctx context.Context, key string) error
	RemovePrefix(ctx context.Context, prefix string) error
}
