package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/sacahan/trailtag/internal/log"
	"github.com/sacahan/trailtag/internal/metrics"
	"github.com/sacahan/trailtag/internal/model"
)

const snapshotFile = "memories.json"

// FileBackend is the default Backend: an in-memory map of MemoryEntry,
// snapshotted to a single JSON file on every Save. Grounded on
// CrewMemoryStorage in original_source/src/trailtag/memory/manager.py.
type FileBackend struct {
	mu      sync.Mutex
	dir     string
	entries map[string]model.MemoryEntry
	order   []string // insertion order, for deterministic snapshots
}

// NewFileBackend constructs a FileBackend rooted at dir/crew_memory, loading
// any existing snapshot. Parse failures are logged and treated as empty
// state, never as a fatal startup error (spec §4.1).
func NewFileBackend(dir string) *FileBackend {
	root := filepath.Join(dir, "crew_memory")
	b := &FileBackend{
		dir:     root,
		entries: make(map[string]model.MemoryEntry),
	}
	b.load()
	return b
}

func (b *FileBackend) path() string {
	return filepath.Join(b.dir, snapshotFile)
}

func (b *FileBackend) load() {
	data, err := os.ReadFile(b.path())
	if err != nil {
		return // no snapshot yet; start empty
	}
	var list []model.MemoryEntry
	if err := json.Unmarshal(data, &list); err != nil {
		log.WithComponent("storage").Warn().Err(err).Msg("failed to parse memory snapshot, starting empty")
		return
	}
	for _, e := range list {
		b.entries[e.ID] = e
		b.order = append(b.order, e.ID)
	}
	log.WithComponent("storage").Info().Int("count", len(b.entries)).Msg("loaded memory snapshot")
}

// persist performs a best-effort full rewrite of the snapshot file using
// renameio, exactly as the teacher's internal/jobs/write_unix.go does for its
// M3U/XMLTV snapshots: fsync before rename prevents data loss on power
// failure, which a bare os.Rename does not guarantee. Errors are logged,
// never returned: storage is advisory (spec §4.1) — a failed snapshot write
// degrades durability, it must never abort the caller.
func (b *FileBackend) persist() {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		log.WithComponent("storage").Error().Err(err).Msg("failed to create storage dir")
		return
	}
	list := make([]model.MemoryEntry, 0, len(b.order))
	for _, id := range b.order {
		list = append(list, b.entries[id])
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		log.WithComponent("storage").Error().Err(err).Msg("failed to marshal memory snapshot")
		return
	}

	pendingFile, err := renameio.NewPendingFile(b.path())
	if err != nil {
		log.WithComponent("storage").Error().Err(err).Msg("failed to create pending snapshot file")
		return
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			log.WithComponent("storage").Debug().Err(err).Msg("cleanup pending snapshot file")
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		log.WithComponent("storage").Error().Err(err).Msg("failed to write pending snapshot file")
		return
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		log.WithComponent("storage").Error().Err(err).Msg("failed to atomically replace snapshot file")
	}
}

func (b *FileBackend) Save(_ context.Context, content string, metadata map[string]any, agentRole string) (string, error) {
	start := time.Now()
	defer func() { metrics.ObserveStorageWrite("file", time.Since(start)) }()

	now := time.Now().UTC()
	entry := model.MemoryEntry{
		ID:        uuid.New().String(),
		Type:      memoryTypeFromMetadata(metadata),
		Content:   content,
		Metadata:  metadata,
		AgentRole: agentRole,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if metadata != nil {
		if k, ok := metadata["key"].(string); ok {
			entry.Key = k
		}
		if oq, ok := metadata["original_query"].(string); ok {
			entry.OriginalQuery = oq
		}
		if del, ok := metadata["deleted"].(bool); ok {
			entry.Deleted = del
		}
		if sa, ok := metadata["stored_at"].(int64); ok {
			entry.StoredAt = sa
		}
		if ttl, ok := metadata["ttl"].(int); ok {
			entry.TTL = ttl
		}
	}

	b.mu.Lock()
	b.entries[entry.ID] = entry
	b.order = append(b.order, entry.ID)
	b.persist()
	b.mu.Unlock()

	return entry.ID, nil
}

func memoryTypeFromMetadata(metadata map[string]any) model.MemoryType {
	if metadata == nil {
		return model.MemoryShortTerm
	}
	if t, ok := metadata["type"].(model.MemoryType); ok {
		return t
	}
	if t, ok := metadata["type"].(string); ok {
		return model.MemoryType(t)
	}
	return model.MemoryShortTerm
}

func (b *FileBackend) Search(_ context.Context, query string, limit int, scoreThreshold float64) ([]model.SearchResult, error) {
	b.mu.Lock()
	snapshot := make([]model.MemoryEntry, 0, len(b.order))
	for _, id := range b.order {
		snapshot = append(snapshot, b.entries[id])
	}
	b.mu.Unlock()

	queryLower := strings.ToLower(query)
	queryTokens := max(1, len(strings.Fields(queryLower)))

	var results []model.SearchResult
	for _, e := range snapshot {
		if e.Deleted {
			continue
		}
		contentLower := strings.ToLower(e.Content)
		if !strings.Contains(contentLower, queryLower) {
			continue
		}
		contentTokens := max(1, len(strings.Fields(contentLower)))
		score := float64(queryTokens) / float64(contentTokens)
		if score > 1.0 {
			score = 1.0
		}
		if score < scoreThreshold {
			continue
		}
		results = append(results, model.SearchResult{
			ID:        e.ID,
			Content:   e.Content,
			Metadata:  e.Metadata,
			Score:     score,
			AgentRole: e.AgentRole,
			CreatedAt: e.CreatedAt,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (b *FileBackend) All(_ context.Context) ([]model.MemoryEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.MemoryEntry, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.entries[id])
	}
	return out, nil
}

func (b *FileBackend) Reset(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]model.MemoryEntry)
	b.order = nil
	_ = os.Remove(b.path())
	return nil
}
