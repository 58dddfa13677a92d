package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athapong/concept-graph/pkg/config"
	"github.com/athapong/concept-graph/pkg/graph"
	"github.com/athapong/concept-graph/pkg/graph/processors"
	"github.com/athapong/concept-graph/pkg/graph/storage"
	"github.com/athapong/concept-graph/services"
)

type titleEmbedder map[string][]float32

func (e titleEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := e[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

type fixedExtractor []graph.ConceptNode

func (f fixedExtractor) Extract(ctx context.Context, markdown string) ([]graph.ConceptNode, error) {
	return f, nil
}

func newTestTools(t *testing.T) (*conceptGraphTools, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	engine := graph.NewSimilarityEngine(titleEmbedder{
		"Gravity":        {1, 0, 0},
		"Orbits":         {0.8, 0.6, 0},
		"Photosynthesis": {-1, 0, 0},
	})
	reconciler := graph.NewReconciler(store)
	pipeline := graph.NewPipeline(fixedExtractor{
		{Title: "Gravity"}, {Title: "Orbits"}, {Title: "Photosynthesis"},
	}, engine, reconciler, graph.WithMode(graph.ModeTitle))
	for _, p := range processors.Default() {
		pipeline.AddProcessor(p)
	}

	return &conceptGraphTools{cg: &services.ConceptGraph{
		Config:     &config.Config{UploadTimeout: 5 * time.Second},
		Pipeline:   pipeline,
		Reconciler: reconciler,
		Storage:    store,
		Workspaces: store,
	}}, store
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	request := mcp.CallToolRequest{}
	request.Params.Arguments = args
	return request
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	switch c := result.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content %T", result.Content[0])
	return ""
}

func TestUploadFileAndBrowse(t *testing.T) {
	tools, store := newTestTools(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "physics.md")
	require.NoError(t, os.WriteFile(path, []byte("# Physics\n\nGravity and orbits."), 0644))

	result, err := tools.uploadFileHandler(ctx, call(map[string]interface{}{
		"workspace_id": float64(42),
		"path":         path,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, text(t, result))

	var upload graph.UploadResult
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &upload))
	assert.Len(t, upload.Nodes, 3)

	all, err := store.ListAll(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	result, err = tools.listNodesHandler(ctx, call(map[string]interface{}{
		"workspace_id": float64(42),
		"keyword":      "",
		"title":        "orb",
	}))
	require.NoError(t, err)
	assert.Contains(t, text(t, result), `"title": "Orbits"`)
	assert.NotContains(t, text(t, result), `"title": "Gravity"`)

	result, err = tools.neighborsHandler(ctx, call(map[string]interface{}{
		"workspace_id": float64(42),
		"node_id":      float64(47637710),
	}))
	require.NoError(t, err)
	var walk struct {
		Nodes []graph.PersistedNode `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &walk))
	require.Len(t, walk.Nodes, 2)
	assert.Equal(t, "Orbits", walk.Nodes[1].Title)
}

func TestUploadFileErrors(t *testing.T) {
	tools, _ := newTestTools(t)
	ctx := context.Background()

	result, err := tools.uploadFileHandler(ctx, call(map[string]interface{}{"path": "x.md"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = tools.uploadFileHandler(ctx, call(map[string]interface{}{
		"workspace_id": float64(1),
		"path":         filepath.Join(t.TempDir(), "missing.md"),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	path := filepath.Join(t.TempDir(), "archive.zip")
	require.NoError(t, os.WriteFile(path, []byte{0x50, 0x4b, 0x03, 0x04}, 0644))
	_, err = tools.uploadFileHandler(ctx, call(map[string]interface{}{
		"workspace_id": float64(1),
		"path":         path,
	}))
	assert.ErrorIs(t, err, graph.ErrInvalidArgument)
}

func TestUploadURLRejectsOtherSchemes(t *testing.T) {
	tools, _ := newTestTools(t)
	result, err := tools.uploadURLHandler(context.Background(), call(map[string]interface{}{
		"workspace_id": float64(1),
		"url":          "file:///etc/passwd",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestCleanupHandler(t *testing.T) {
	tools, store := newTestTools(t)
	ctx := context.Background()
	_, err := tools.cg.Pipeline.UploadNodes(ctx, 42, []graph.ConceptNode{
		{Title: "Gravity"}, {Title: "Orbits"}, {Title: "Photosynthesis"},
	})
	require.NoError(t, err)

	result, err := tools.cleanupHandler(ctx, call(map[string]interface{}{"workspace_id": float64(42)}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = tools.cleanupHandler(ctx, call(map[string]interface{}{
		"workspace_id": float64(42),
		"keep_ids":     "47637710, 22819877",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	all, _ := store.ListAll(ctx, 42)
	assert.Len(t, all, 2)

	result, err = tools.cleanupHandler(ctx, call(map[string]interface{}{
		"workspace_id": float64(42),
		"node_id":      float64(22819877),
	}))
	require.NoError(t, err)
	var cleanup graph.CleanupResult
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &cleanup))
	assert.Equal(t, []int64{22819877}, cleanup.Deleted)
	assert.Equal(t, []int64{47637710}, cleanup.Pruned)

	_, err = tools.cleanupHandler(ctx, call(map[string]interface{}{
		"workspace_id": float64(42),
		"node_id":      float64(22819877),
	}))
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestIntArg(t *testing.T) {
	tests := []struct {
		value   interface{}
		want    int64
		wantErr bool
	}{
		{float64(42), 42, false},
		{float64(1.5), 0, true},
		{int64(7), 7, false},
		{3, 3, false},
		{" 12 ", 12, false},
		{"twelve", 0, true},
		{nil, 0, true},
		{true, 0, true},
	}
	for _, tt := range tests {
		got, err := intArg(map[string]interface{}{"id": tt.value}, "id")
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.value)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs(" 1, 2,,3 ")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	ids, err = parseIDs("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = parseIDs("1,x")
	assert.Error(t, err)
}

func TestToolManager(t *testing.T) {
	t.Setenv("ENABLE_TOOLS", "")
	ctx := context.Background()

	result, err := toolManagerHandler(ctx, call(map[string]interface{}{"action": "list"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, result), "All tools are enabled")

	result, err = toolManagerHandler(ctx, call(map[string]interface{}{"action": "disable", "tool_name": "fetch"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "tool_manager,concept_graph", os.Getenv("ENABLE_TOOLS"))

	result, err = toolManagerHandler(ctx, call(map[string]interface{}{"action": "enable", "tool_name": "fetch"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "tool_manager,concept_graph,fetch", os.Getenv("ENABLE_TOOLS"))

	result, err = toolManagerHandler(ctx, call(map[string]interface{}{"action": "enable", "tool_name": "jira"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = toolManagerHandler(ctx, call(map[string]interface{}{"action": "reset"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
