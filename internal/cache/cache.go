// Package cache implements the Cache Facade (C3): a uniform key/value
// interface with optional TTL, delegating to the Memory Manager (C2). See
// spec §4.3.
package cache

import (
	"context"
	"crypto/md5" //nolint:gosec // fingerprinting only, not a security boundary
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/sacahan/trailtag/internal/log"
	"github.com/sacahan/trailtag/internal/metrics"
	"github.com/sacahan/trailtag/internal/model"
)

// memoryManager is the subset of *memory.Manager the cache facade needs.
// Defined here (rather than imported concretely) so cache can be tested
// against a fake without pulling in the memory package's file I/O.
type memoryManager interface {
	Save(ctx context.Context, content string, metadata map[string]any, agentRole string) (string, error)
	All(ctx context.Context) ([]model.MemoryEntry, error)
}

const defaultPrefix = "trailtag:"

// Cache is the Cache Facade. It holds no state of its own (spec §3
// "Ownership") — every call reads or writes through the memory manager.
type Cache struct {
	mm     memoryManager
	prefix string
}

// New constructs a Cache Facade over the given Memory Manager.
func New(mm memoryManager) *Cache {
	return &Cache{mm: mm, prefix: defaultPrefix}
}

// fingerprint returns the MD5-based cache key used as metadata.key, per
// spec §4.3: "{prefix}" + md5(key|json(params)).
func (c *Cache) fingerprint(key string, params map[string]any) string {
	input := key
	if params != nil {
		if b, err := json.Marshal(params); err == nil {
			input += "|" + string(b)
		}
	}
	sum := md5.Sum([]byte(input)) //nolint:gosec
	return c.prefix + hex.EncodeToString(sum[:])
}

// Get returns the most recent non-deleted cache entry whose original query
// matches key, decoding JSON content when possible. A nil return means a
// miss: not found, deleted, or TTL-expired.
func (c *Cache) Get(ctx context.Context, key string, params map[string]any) any {
	entry := c.latest(ctx, key, params)
	if entry == nil || entry.Deleted || expired(*entry) {
		metrics.RecordCacheResult(false)
		return nil
	}
	metrics.RecordCacheResult(true)
	var decoded any
	if err := json.Unmarshal([]byte(entry.Content), &decoded); err == nil {
		return decoded
	}
	return entry.Content
}

// latest finds the newest MemoryEntry of type cache matching key: an exact
// equality lookup, never the fuzzy token-ratio scoring the entity/knowledge
// families use via Search (spec §4.3). It prefers an exact match on
// original_query over the MD5 fingerprint — set() always stores
// original_query=key, so this is the primary path; the fingerprint match
// only matters for entries some other writer stored without it. The
// backend returns entries in append order, so the last matching entry in
// that order is authoritative even when two writes land in the same
// StoredAt second.
func (c *Cache) latest(ctx context.Context, key string, params map[string]any) *model.MemoryEntry {
	all, err := c.mm.All(ctx)
	if err != nil {
		log.WithComponent("cache").Warn().Err(err).Msg("failed to list cache entries")
		return nil
	}
	fp := c.fingerprint(key, params)

	var byQuery, byFingerprint *model.MemoryEntry
	for i := range all {
		e := all[i]
		if e.Type != model.MemoryCache {
			continue
		}
		if e.OriginalQuery == key {
			byQuery = &e
		} else if e.Key == fp {
			byFingerprint = &e
		}
	}
	if byQuery != nil {
		return byQuery
	}
	return byFingerprint
}

func expired(e model.MemoryEntry) bool {
	if e.TTL == 0 {
		return false
	}
	return time.Now().UTC().Unix()-e.StoredAt > int64(e.TTL)
}

// Set serializes value as JSON and appends a new cache MemoryEntry.
// Returns false only when serialization fails; storage faults are
// swallowed by the memory manager per spec §4.1/§4.3.
func (c *Cache) Set(ctx context.Context, key string, value any, params map[string]any, ttl int) bool {
	data, err := json.Marshal(value)
	if err != nil {
		log.WithComponent("cache").Error().Err(err).Str("key", key).Msg("failed to marshal cache value")
		return false
	}
	metadata := map[string]any{
		"type":           model.MemoryCache,
		"key":            c.fingerprint(key, params),
		"original_query": key,
		"deleted":        false,
		"stored_at":      time.Now().UTC().Unix(),
	}
	if ttl != 0 {
		metadata["ttl"] = ttl
	}
	if _, err := c.mm.Save(ctx, string(data), metadata, ""); err != nil {
		log.WithComponent("cache").Error().Err(err).Str("key", key).Msg("failed to persist cache entry")
		return false
	}
	return true
}

// Exists reports whether Get would return a non-nil value for key.
func (c *Cache) Exists(ctx context.Context, key string, params map[string]any) bool {
	return c.Get(ctx, key, params) != nil
}

// Delete writes a tombstone MemoryEntry, soft-deleting key (spec §4.3:
// "soft-delete only").
func (c *Cache) Delete(ctx context.Context, key string, params map[string]any) {
	metadata := map[string]any{
		"type":           model.MemoryCache,
		"key":            c.fingerprint(key, params),
		"original_query": key,
		"deleted":        true,
		"stored_at":      time.Now().UTC().Unix(),
	}
	if _, err := c.mm.Save(ctx, "", metadata, ""); err != nil {
		log.WithComponent("cache").Error().Err(err).Str("key", key).Msg("failed to persist tombstone")
	}
}

// Clear is a contractual no-op (spec §4.3): the append-only cache log is
// compacted offline, not cleared in-band.
func (c *Cache) Clear() {
	log.WithComponent("cache").Warn().Msg("clear() called; cache facade does not support bulk clear, see spec §4.3")
}

// IsDegraded always reports false. Retained for contract compatibility
// with the source system's polymorphic-backend concept (spec §9).
func (c *Cache) IsDegraded() bool { return false }
