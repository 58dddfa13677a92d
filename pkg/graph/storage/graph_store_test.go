package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athapong/concept-graph/pkg/graph"
)

func TestJSONStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "store.json")

	s, err := NewJSONStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, sampleNode(1, 10, "Gravity", 20)))
	require.NoError(t, s.Insert(ctx, sampleNode(1, 20, "Orbits", 10)))
	_, err = s.CreateWorkspace(ctx, 3, "Physics", "")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, 1, 20))

	reopened, err := NewJSONStore(path)
	require.NoError(t, err)
	all, err := reopened.ListAll(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Gravity", all[0].Title)
	assert.Equal(t, []int64{20}, all[0].ConnectedIDs)

	ws, err := reopened.ListWorkspaces(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, ws, 1)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestJSONStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewJSONStore(path)
	assert.Error(t, err)
}

func TestStoreAndLoadGraph(t *testing.T) {
	path := filepath.Join(t.TempDir(), "view.json")
	view := graph.NewGraphView(1, []graph.PersistedNode{
		{NodeID: 1, WorkspaceID: 1, Title: "A", ConnectedIDs: []int64{2}},
		{NodeID: 2, WorkspaceID: 1, Title: "B", ConnectedIDs: []int64{1}},
	})
	view.GeneratedAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, StoreGraph(path, view))
	loaded, err := LoadGraph(path)
	require.NoError(t, err)
	assert.Equal(t, view.GeneratedAt, loaded.GeneratedAt)
	assert.Len(t, loaded.Nodes, 2)
	require.Len(t, loaded.Edges, 1)
	assert.Equal(t, "1-similar_to-2", loaded.Edges[0].ID)
}

func TestJSONStoreRollsBackFailedWrites(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	s, err := NewJSONStore(filepath.Join(dir, "store.json"))
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, sampleNode(1, 10, "Gravity", 20)))

	// a regular file where the directory was makes every write fail
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("not a directory"), 0644))

	assert.Error(t, s.Insert(ctx, sampleNode(1, 20, "Orbits")))
	missing, err := s.Get(ctx, 1, 20)
	require.NoError(t, err)
	assert.Nil(t, missing)

	changed := sampleNode(1, 10, "Gravitation", 20, 30)
	assert.Error(t, s.Update(ctx, changed))
	kept, err := s.Get(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, "Gravity", kept.Title)
	assert.Equal(t, []int64{20}, kept.ConnectedIDs)

	assert.Error(t, s.Delete(ctx, 1, 10))
	kept, err = s.Get(ctx, 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, kept)

	_, err = s.CreateWorkspace(ctx, 3, "Physics", "")
	assert.Error(t, err)
	list, err := s.ListWorkspaces(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, list)
}
