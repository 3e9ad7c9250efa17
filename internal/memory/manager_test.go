package memory

import (
	"context"
	"testing"

	"github.com/sacahan/trailtag/internal/model"
	"github.com/sacahan/trailtag/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndGetJobProgress(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, storage.NewFileBackend(dir))

	m.SaveJobProgress("job-1", "video-1", model.JobStatusRunning, model.PhaseMetadata, 30, nil)

	entry, ok := m.GetJobProgress("job-1")
	require.True(t, ok)
	assert.Equal(t, model.JobStatusRunning, entry.Status)
	assert.Equal(t, model.PhaseMetadata, entry.Phase)
	assert.Equal(t, 30, entry.Progress)
}

func TestJobProgressSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, storage.NewFileBackend(dir))
	m.SaveJobProgress("job-1", "video-1", model.JobStatusDone, model.PhaseGeocode, 100, nil)

	reloaded := NewManager(dir, storage.NewFileBackend(dir))
	entry, ok := reloaded.GetJobProgress("job-1")
	require.True(t, ok)
	assert.Equal(t, model.JobStatusDone, entry.Status)
}

func TestSaveAnalysisResultIdempotent(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, storage.NewFileBackend(dir))

	viz := model.MapVisualization{VideoID: "v1", Routes: []model.RouteItem{{Location: "A"}}}
	m.SaveAnalysisResult("v1", nil, nil, viz, 12.5)
	m.SaveAnalysisResult("v1", nil, nil, viz, 20.0)

	entry, ok := m.GetAnalysisResult("v1")
	require.True(t, ok)
	assert.Equal(t, 20.0, entry.ProcessingTime)
}

func TestQueryAgentMemoriesNewestFirst(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, storage.NewFileBackend(dir))

	m.SaveAgentMemory("geocoder", "first pass over night market stalls", nil, nil, nil, 0.8)
	m.SaveAgentMemory("geocoder", "second pass over night market stalls", nil, nil, nil, 0.9)

	results := m.QueryAgentMemories("geocoder", "night market", 10)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Context, "second")
}

func TestResetMemoriesSelective(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, storage.NewFileBackend(dir))
	m.SaveJobProgress("job-1", "video-1", model.JobStatusQueued, model.PhaseNone, 0, nil)
	m.SaveAnalysisResult("v1", nil, nil, model.MapVisualization{VideoID: "v1", Routes: []model.RouteItem{{Location: "A"}}}, 1)

	m.ResetMemories(context.Background(), "job_progress")

	_, ok := m.GetJobProgress("job-1")
	assert.False(t, ok)
	_, ok = m.GetAnalysisResult("v1")
	assert.True(t, ok, "analysis results must survive a job_progress-scoped reset")
}

func TestGetMemoryStatsCountsFamilies(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, storage.NewFileBackend(dir))
	m.SaveJobProgress("job-1", "video-1", model.JobStatusQueued, model.PhaseNone, 0, nil)
	m.SaveAgentMemory("geocoder", "ctx", nil, nil, nil, 0.5)

	stats := m.GetMemoryStats(context.Background())
	assert.GreaterOrEqual(t, stats.TotalEntries, 2)
}
