package algorithms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athapong/concept-graph/pkg/graph"
	"github.com/athapong/concept-graph/pkg/graph/storage"
)

// chain: 1 - 2 - 3 - 4, plus 1 - 5 and a dangling reference to 99
func newChain(t *testing.T) *storage.MemoryStore {
	t.Helper()
	s := storage.NewMemoryStore()
	nodes := []graph.PersistedNode{
		{NodeID: 1, WorkspaceID: 1, Title: "one", ConnectedIDs: []int64{2, 5, 99}},
		{NodeID: 2, WorkspaceID: 1, Title: "two", ConnectedIDs: []int64{1, 3}},
		{NodeID: 3, WorkspaceID: 1, Title: "three", ConnectedIDs: []int64{2, 4}},
		{NodeID: 4, WorkspaceID: 1, Title: "four", ConnectedIDs: []int64{3}},
		{NodeID: 5, WorkspaceID: 1, Title: "five", ConnectedIDs: []int64{1}},
	}
	for _, n := range nodes {
		require.NoError(t, s.Insert(context.Background(), n))
	}
	return s
}

func ids(nodes []graph.PersistedNode) []int64 {
	out := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.NodeID)
	}
	return out
}

func TestTraverse(t *testing.T) {
	tr := NewGraphTraversal(newChain(t))
	ctx := context.Background()

	tests := []struct {
		name  string
		depth int
		mode  TraversalType
		want  []int64
	}{
		{"bfs depth 0", 0, BFS, []int64{1}},
		{"bfs depth 1", 1, BFS, []int64{1, 2, 5}},
		{"bfs depth 2", 2, BFS, []int64{1, 2, 5, 3}},
		{"bfs whole graph", 10, BFS, []int64{1, 2, 5, 3, 4}},
		{"dfs depth 2", 2, DFS, []int64{1, 2, 3, 5}},
		{"dfs whole graph", 10, DFS, []int64{1, 2, 3, 4, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.Traverse(ctx, 1, 1, tt.depth, tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestTraverseErrors(t *testing.T) {
	tr := NewGraphTraversal(newChain(t))
	ctx := context.Background()

	_, err := tr.Traverse(ctx, 1, 42, 1, BFS)
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)

	_, err = tr.Traverse(ctx, 2, 1, 1, BFS)
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)

	_, err = tr.Traverse(ctx, 1, 1, -1, BFS)
	assert.ErrorIs(t, err, graph.ErrInvalidArgument)
}

func TestParseTraversalType(t *testing.T) {
	for in, want := range map[string]TraversalType{"": BFS, "bfs": BFS, " DFS ": DFS} {
		got, err := ParseTraversalType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseTraversalType("dijkstra")
	assert.ErrorIs(t, err, graph.ErrInvalidArgument)
}
