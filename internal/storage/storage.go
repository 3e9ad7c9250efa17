// Package storage implements the Storage Backend (C1): a pure record store
// of model.MemoryEntry values, keyed by UUID, with substring search and
// soft-delete semantics left to the layers above it (internal/memory,
// internal/cache). See spec §4.1.
package storage

import (
	"context"

	"github.com/sacahan/trailtag/internal/model"
)

// Backend is the storage contract. Implementations must never let
// filesystem/network faults escape Save or Search: errors are logged and
// swallowed, with in-memory state remaining authoritative until restart
// (spec §4.1 "Failure semantics").
type Backend interface {
	// Save assigns a new UUID, stamps timestamps, and appends the entry.
	// Never updates in place; duplicates are resolved by callers via
	// metadata.key plus soft-delete markers.
	Save(ctx context.Context, content string, metadata map[string]any, agentRole string) (string, error)

	// Search performs a linear scan over undeleted entries, scoring each by
	// (query token hits as content substring) / (content token count), and
	// returns the top `limit` entries at or above scoreThreshold.
	Search(ctx context.Context, query string, limit int, scoreThreshold float64) ([]model.SearchResult, error)

	// All returns a snapshot copy of every entry currently held, including
	// soft-deleted ones. Used by the memory manager and cache facade, which
	// need to reason about tombstones and key spaces directly.
	All(ctx context.Context) ([]model.MemoryEntry, error)

	// Reset clears all in-memory state and removes the on-disk snapshot.
	Reset(ctx context.Context) error
}
