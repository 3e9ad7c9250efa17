package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackendSaveAndSearch(t *testing.T) {
	ctx := context.Background()
	b := NewFileBackend(t.TempDir())

	id, err := b.Save(ctx, "Taipei 101 observation deck", map[string]any{"type": "entity"}, "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	results, err := b.Search(ctx, "taipei", 10, 0.0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
}

func TestFileBackendSearchScoreThreshold(t *testing.T) {
	ctx := context.Background()
	b := NewFileBackend(t.TempDir())

	_, err := b.Save(ctx, "a b c d e f g h", nil, "")
	require.NoError(t, err)

	// Query "a" has 1 token, content has 8 tokens -> score 0.125.
	results, err := b.Search(ctx, "a", 10, 0.5)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = b.Search(ctx, "a", 10, 0.1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestFileBackendSearchIgnoresDeleted(t *testing.T) {
	ctx := context.Background()
	b := NewFileBackend(t.TempDir())

	id, err := b.Save(ctx, "hidden harbor cafe", map[string]any{"deleted": true}, "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	results, err := b.Search(ctx, "harbor", 10, 0.0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFileBackendPersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := NewFileBackend(dir)

	_, err := b.Save(ctx, "persisted entry", nil, "")
	require.NoError(t, err)

	reloaded := NewFileBackend(dir)
	all, err := reloaded.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "persisted entry", all[0].Content)
}

func TestFileBackendLoadToleratesCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	snapshotDir := filepath.Join(dir, "crew_memory")
	require.NoError(t, writeFileHelper(snapshotDir, snapshotFile, "not json"))

	b := NewFileBackend(dir)
	all, err := b.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestFileBackendReset(t *testing.T) {
	ctx := context.Background()
	b := NewFileBackend(t.TempDir())
	_, err := b.Save(ctx, "entry", nil, "")
	require.NoError(t, err)

	require.NoError(t, b.Reset(ctx))

	all, err := b.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
