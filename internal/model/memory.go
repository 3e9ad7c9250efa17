package model

import "time"

// MemoryType distinguishes the record families owned by the memory manager
// (C2) and the underlying storage pool (C1).
type MemoryType string

const (
	MemoryShortTerm MemoryType = "short_term"
	MemoryLongTerm  MemoryType = "long_term"
	MemoryEntity    MemoryType = "entity"
	MemoryKnowledge MemoryType = "knowledge"
	MemoryCache     MemoryType = "cache"
)

// MemoryEntry is the single record type owned by the storage backend (C1).
// Cache entries additionally populate Key/OriginalQuery/Deleted/StoredAt/TTL.
type MemoryEntry struct {
	ID        string         `json:"id"`
	Type      MemoryType     `json:"type"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	AgentRole string         `json:"agent_role,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`

	// Cache-specific fields (Type == MemoryCache).
	Key           string `json:"key,omitempty"`
	OriginalQuery string `json:"original_query,omitempty"`
	Deleted       bool   `json:"deleted,omitempty"`
	StoredAt      int64  `json:"stored_at,omitempty"`
	TTL           int    `json:"ttl,omitempty"`
}

// SearchResult is one ranked hit from Backend.Search / MemoryManager.Search.
type SearchResult struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Score     float64        `json:"score"`
	AgentRole string         `json:"agent_role,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// JobProgressEntry is the typed projection of Job persisted by the memory
// manager under the job-progress family (C2).
type JobProgressEntry struct {
	JobID     string    `json:"job_id"`
	VideoID   string    `json:"video_id"`
	Status    JobStatus `json:"status"`
	Phase     JobPhase  `json:"phase"`
	Progress  int       `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// AnalysisResultEntry is the persisted final artifact plus provenance,
// keyed by video_id, idempotent on re-save.
type AnalysisResultEntry struct {
	VideoID          string            `json:"video_id"`
	Metadata         map[string]any    `json:"metadata"`
	TopicSummary     map[string]any    `json:"topic_summary"`
	MapVisualization MapVisualization  `json:"map_visualization"`
	ProcessingTime   float64           `json:"processing_time"`
	CreatedAt        time.Time         `json:"created_at"`
	Cached           bool              `json:"cached"`
}

// AgentMemoryEntry is a record of an agent's working memory/insights for a
// given task, persisted per agent_role.
type AgentMemoryEntry struct {
	AgentRole     string         `json:"agent_role"`
	MemoryType    string         `json:"memory_type"`
	Context       string         `json:"context"`
	Entities      []map[string]any `json:"entities,omitempty"`
	Relationships []map[string]any `json:"relationships,omitempty"`
	Insights      []string       `json:"insights,omitempty"`
	Confidence    float64        `json:"confidence"`
	SourceTaskID  string         `json:"source_task_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// MemoryStats summarizes the memory manager's current record population.
type MemoryStats struct {
	TotalEntries   int     `json:"total_entries"`
	ShortTermCount int     `json:"short_term_count"`
	LongTermCount  int     `json:"long_term_count"`
	EntityCount    int     `json:"entity_count"`
	KnowledgeCount int     `json:"knowledge_count"`
	StorageSizeMB  float64 `json:"storage_size_mb"`
	AvgQueryTimeMS float64 `json:"avg_query_time_ms"`
}
