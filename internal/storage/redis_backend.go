package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sacahan/trailtag/internal/log"
	"github.com/sacahan/trailtag/internal/metrics"
	"github.com/sacahan/trailtag/internal/model"
)

// RedisBackend is the alternative Backend implementation noted in spec §9
// ("implementations MAY add alternative backends behind the same
// interface"). Every entry is stored as a JSON blob under
// "{prefix}entry:{id}", plus an index set "{prefix}index" of all known IDs
// so Search/All can enumerate without a KEYS scan in the hot path.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend connects to addr and returns a Backend backed by Redis.
// Connectivity is verified with a PING at construction time; a connection
// failure is returned as the error, with no fallback to another backend.
func NewRedisBackend(ctx context.Context, addr, prefix string) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "trailtag:"
	}
	return &RedisBackend{client: client, prefix: prefix}, nil
}

func (b *RedisBackend) entryKey(id string) string { return b.prefix + "entry:" + id }
func (b *RedisBackend) indexKey() string          { return b.prefix + "index" }

func (b *RedisBackend) Save(ctx context.Context, content string, metadata map[string]any, agentRole string) (string, error) {
	start := time.Now()
	defer func() { metrics.ObserveStorageWrite("redis", time.Since(start)) }()

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

	data, err := json.Marshal(entry)
	if err != nil {
		log.WithComponent("storage.redis").Error().Err(err).Msg("failed to marshal entry")
		return entry.ID, nil
	}
	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.entryKey(entry.ID), data, 0)
	pipe.SAdd(ctx, b.indexKey(), entry.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		log.WithComponent("storage.redis").Error().Err(err).Msg("failed to persist entry")
	}
	return entry.ID, nil
}

func (b *RedisBackend) allIDs(ctx context.Context) []string {
	ids, err := b.client.SMembers(ctx, b.indexKey()).Result()
	if err != nil {
		log.WithComponent("storage.redis").Warn().Err(err).Msg("failed to list entry index")
		return nil
	}
	return ids
}

func (b *RedisBackend) All(ctx context.Context) ([]model.MemoryEntry, error) {
	ids := b.allIDs(ctx)
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = b.entryKey(id)
	}
	vals, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		log.WithComponent("storage.redis").Warn().Err(err).Msg("failed to fetch entries")
		return nil, nil
	}
	out := make([]model.MemoryEntry, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var e model.MemoryEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (b *RedisBackend) Search(ctx context.Context, query string, limit int, scoreThreshold float64) ([]model.SearchResult, error) {
	all, _ := b.All(ctx)
	queryLower := strings.ToLower(query)
	queryTokens := max(1, len(strings.Fields(queryLower)))

	var results []model.SearchResult
	for _, e := range all {
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

func (b *RedisBackend) Reset(ctx context.Context) error {
	ids := b.allIDs(ctx)
	if len(ids) == 0 {
		return b.client.Del(ctx, b.indexKey()).Err()
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = b.entryKey(id)
	}
	keys = append(keys, b.indexKey())
	return b.client.Del(ctx, keys...).Err()
}
