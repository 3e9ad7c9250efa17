// Package memory implements the Memory Manager (C2): a typed facade over
// the Storage Backend (C1) for four record families — job progress,
// analysis results, agent memory, and the generic cache family consumed by
// the Cache Facade (C3). See spec §4.2.
package memory

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
	"github.com/sacahan/trailtag/internal/model"
	"github.com/sacahan/trailtag/internal/storage"
)

// Manager is the Memory Manager. It owns three JSON snapshot files
// (job_memories.json, analysis_results.json, agent_memories.json) and
// delegates the fourth family (generic cache) to the underlying Backend,
// which owns the MemoryEntry pool exclusively (spec §3 "Ownership").
type Manager struct {
	backend storage.Backend
	dir     string

	mu              sync.Mutex
	jobProgress     map[string]model.JobProgressEntry     // job_id -> entry
	analysisResults map[string]model.AnalysisResultEntry  // video_id -> entry
	agentMemories   map[string][]model.AgentMemoryEntry   // agent_role -> entries
}

// NewManager constructs a Manager rooted at dir, loading any existing
// per-family snapshots. A parse failure on one family is logged and that
// family starts empty; it never prevents the others from loading.
func NewManager(dir string, backend storage.Backend) *Manager {
	m := &Manager{
		backend:         backend,
		dir:             dir,
		jobProgress:     make(map[string]model.JobProgressEntry),
		analysisResults: make(map[string]model.AnalysisResultEntry),
		agentMemories:   make(map[string][]model.AgentMemoryEntry),
	}
	m.loadJobProgress()
	m.loadAnalysisResults()
	m.loadAgentMemories()
	return m
}

func (m *Manager) path(name string) string { return filepath.Join(m.dir, name) }

func (m *Manager) loadJobProgress() {
	data, err := os.ReadFile(m.path("job_memories.json"))
	if err != nil {
		return
	}
	var list []model.JobProgressEntry
	if err := json.Unmarshal(data, &list); err != nil {
		log.WithComponent("memory").Warn().Err(err).Msg("failed to parse job_memories.json, starting empty")
		return
	}
	for _, e := range list {
		m.jobProgress[e.JobID] = e
	}
}

func (m *Manager) persistJobProgress() {
	list := make([]model.JobProgressEntry, 0, len(m.jobProgress))
	for _, e := range m.jobProgress {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt.Before(list[j].UpdatedAt) })
	writeSnapshot(m.dir, "job_memories.json", list)
}

func (m *Manager) loadAnalysisResults() {
	data, err := os.ReadFile(m.path("analysis_results.json"))
	if err != nil {
		return
	}
	var list []model.AnalysisResultEntry
	if err := json.Unmarshal(data, &list); err != nil {
		log.WithComponent("memory").Warn().Err(err).Msg("failed to parse analysis_results.json, starting empty")
		return
	}
	for _, e := range list {
		m.analysisResults[e.VideoID] = e
	}
}

func (m *Manager) persistAnalysisResults() {
	list := make([]model.AnalysisResultEntry, 0, len(m.analysisResults))
	for _, e := range m.analysisResults {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	writeSnapshot(m.dir, "analysis_results.json", list)
}

func (m *Manager) loadAgentMemories() {
	data, err := os.ReadFile(m.path("agent_memories.json"))
	if err != nil {
		return
	}
	var byRole map[string][]model.AgentMemoryEntry
	if err := json.Unmarshal(data, &byRole); err != nil {
		log.WithComponent("memory").Warn().Err(err).Msg("failed to parse agent_memories.json, starting empty")
		return
	}
	m.agentMemories = byRole
}

func (m *Manager) persistAgentMemories() {
	writeSnapshot(m.dir, "agent_memories.json", m.agentMemories)
}

// writeSnapshot rewrites a family's snapshot file via renameio, the same
// fsync-before-rename pattern the teacher's internal/jobs/write_unix.go uses
// for its M3U/XMLTV snapshots: a bare os.Rename can still lose the write on
// power failure, since nothing forces the new file's data to disk first.
// Errors are logged, never returned: storage is advisory (spec §4.1).
func writeSnapshot(dir, name string, v any) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.WithComponent("memory").Error().Err(err).Str("file", name).Msg("failed to create storage dir")
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.WithComponent("memory").Error().Err(err).Str("file", name).Msg("failed to marshal snapshot")
		return
	}

	path := filepath.Join(dir, name)
	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		log.WithComponent("memory").Error().Err(err).Str("file", name).Msg("failed to create pending snapshot file")
		return
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			log.WithComponent("memory").Debug().Err(err).Str("file", name).Msg("cleanup pending snapshot file")
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		log.WithComponent("memory").Error().Err(err).Str("file", name).Msg("failed to write pending snapshot file")
		return
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		log.WithComponent("memory").Error().Err(err).Str("file", name).Msg("failed to atomically replace snapshot file")
	}
}

// SaveJobProgress constructs or updates the JobProgressEntry for jobID and
// rewrites the job_memories.json snapshot (spec §4.2).
func (m *Manager) SaveJobProgress(jobID, videoID string, status model.JobStatus, phase model.JobPhase, progress int, extra map[string]any) {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.jobProgress[jobID]
	if !ok {
		entry = model.JobProgressEntry{JobID: jobID, VideoID: videoID, CreatedAt: now}
	}
	entry.Status = status
	entry.Phase = phase
	entry.Progress = progress
	entry.UpdatedAt = now
	if extra != nil {
		if entry.Extra == nil {
			entry.Extra = make(map[string]any, len(extra))
		}
		for k, v := range extra {
			entry.Extra[k] = v
		}
	}
	m.jobProgress[jobID] = entry
	m.persistJobProgress()
}

// GetJobProgress returns the stored projection for jobID, if any.
func (m *Manager) GetJobProgress(jobID string) (model.JobProgressEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobProgress[jobID]
	return e, ok
}

// SaveAnalysisResult is idempotent on videoID: a later save overwrites an
// earlier one in analysis_results.json.
func (m *Manager) SaveAnalysisResult(videoID string, metadata, topicSummary map[string]any, mapViz model.MapVisualization, processingTime float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analysisResults[videoID] = model.AnalysisResultEntry{
		VideoID:          videoID,
		Metadata:         metadata,
		TopicSummary:     topicSummary,
		MapVisualization: mapViz,
		ProcessingTime:   processingTime,
		CreatedAt:        time.Now().UTC(),
		Cached:           true,
	}
	m.persistAnalysisResults()
}

// GetAnalysisResult returns the persisted final artifact for videoID, if any.
func (m *Manager) GetAnalysisResult(videoID string) (model.AnalysisResultEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.analysisResults[videoID]
	return e, ok
}

// SaveAgentMemory appends a new AgentMemoryEntry under agentRole.
func (m *Manager) SaveAgentMemory(agentRole, context string, entities, relationships []map[string]any, insights []string, confidence float64) string {
	id := uuid.New().String()
	entry := model.AgentMemoryEntry{
		AgentRole:     agentRole,
		MemoryType:    "agent",
		Context:       context,
		Entities:      entities,
		Relationships: relationships,
		Insights:      insights,
		Confidence:    confidence,
		SourceTaskID:  id,
		CreatedAt:     time.Now().UTC(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agentMemories[agentRole] = append(m.agentMemories[agentRole], entry)
	m.persistAgentMemories()
	return id
}

// QueryAgentMemories returns newest-first entries for agentRole whose
// Context contains query as a substring, capped at limit.
func (m *Manager) QueryAgentMemories(agentRole, query string, limit int) []model.AgentMemoryEntry {
	m.mu.Lock()
	all := append([]model.AgentMemoryEntry(nil), m.agentMemories[agentRole]...)
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	var matched []model.AgentMemoryEntry
	needle := strings.ToLower(query)
	for _, e := range all {
		if needle == "" || strings.Contains(strings.ToLower(e.Context), needle) {
			matched = append(matched, e)
		}
		if limit > 0 && len(matched) >= limit {
			break
		}
	}
	return matched
}

// ResetMemories selectively wipes one record family, or all of them
// (including the backend's MemoryEntry pool) when memType is empty.
func (m *Manager) ResetMemories(ctx context.Context, memType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch memType {
	case "job_progress":
		m.jobProgress = make(map[string]model.JobProgressEntry)
		m.persistJobProgress()
	case "analysis_result":
		m.analysisResults = make(map[string]model.AnalysisResultEntry)
		m.persistAnalysisResults()
	case "agent_memory":
		m.agentMemories = make(map[string][]model.AgentMemoryEntry)
		m.persistAgentMemories()
	case "cache":
		_ = m.backend.Reset(ctx)
	default:
		m.jobProgress = make(map[string]model.JobProgressEntry)
		m.analysisResults = make(map[string]model.AnalysisResultEntry)
		m.agentMemories = make(map[string][]model.AgentMemoryEntry)
		m.persistJobProgress()
		m.persistAnalysisResults()
		m.persistAgentMemories()
		_ = m.backend.Reset(ctx)
	}
}

// GetMemoryStats summarizes the memory manager's record population.
func (m *Manager) GetMemoryStats(ctx context.Context) model.MemoryStats {
	all, _ := m.backend.All(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := model.MemoryStats{}
	for _, e := range all {
		if e.Deleted {
			continue
		}
		stats.TotalEntries++
		switch e.Type {
		case model.MemoryShortTerm:
			stats.ShortTermCount++
		case model.MemoryLongTerm:
			stats.LongTermCount++
		case model.MemoryEntity:
			stats.EntityCount++
		case model.MemoryKnowledge:
			stats.KnowledgeCount++
		}
	}
	stats.TotalEntries += len(m.jobProgress) + len(m.analysisResults)
	for _, v := range m.agentMemories {
		stats.TotalEntries += len(v)
	}
	return stats
}

// Save delegates directly to the backend, for the generic-cache family
// consumed by the Cache Facade (C3).
func (m *Manager) Save(ctx context.Context, content string, metadata map[string]any, agentRole string) (string, error) {
	return m.backend.Save(ctx, content, metadata, agentRole)
}

// All delegates directly to the backend.
func (m *Manager) All(ctx context.Context) ([]model.MemoryEntry, error) {
	return m.backend.All(ctx)
}

// Search delegates to the backend, optionally filtering by metadata key/value
// equality before scoring (spec §4.2 "filter_metadata").
func (m *Manager) Search(ctx context.Context, query string, limit int, scoreThreshold float64, filterMetadata map[string]any) ([]model.SearchResult, error) {
	results, err := m.backend.Search(ctx, query, limit, scoreThreshold)
	if err != nil || len(filterMetadata) == 0 {
		return results, err
	}
	filtered := results[:0]
	for _, r := range results {
		if matchesMetadata(r.Metadata, filterMetadata) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

func matchesMetadata(metadata, filter map[string]any) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
