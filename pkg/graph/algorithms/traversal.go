package algorithms

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/athapong/concept-graph/pkg/graph"
)

type TraversalType string

const (
	BFS TraversalType = "BFS"
	DFS TraversalType = "DFS"
)

// ParseTraversalType accepts "bfs" or "dfs" in any case; empty means BFS.
func ParseTraversalType(s string) (TraversalType, error) {
	switch TraversalType(strings.ToUpper(strings.TrimSpace(s))) {
	case "", BFS:
		return BFS, nil
	case DFS:
		return DFS, nil
	default:
		return "", errors.Wrapf(graph.ErrInvalidArgument, "unsupported traversal type: %s", s)
	}
}

// GraphTraversal walks the stored connection ids of a workspace.
type GraphTraversal struct {
	nodes graph.NodeReader
}

func NewGraphTraversal(nodes graph.NodeReader) *GraphTraversal {
	return &GraphTraversal{nodes: nodes}
}

// Traverse returns the nodes within maxDepth hops of startID, start first.
// Connection ids that no longer resolve are skipped.
func (t *GraphTraversal) Traverse(ctx context.Context, workspaceID, startID int64, maxDepth int, traversalType TraversalType) ([]graph.PersistedNode, error) {
	if maxDepth < 0 {
		return nil, errors.Wrapf(graph.ErrInvalidArgument, "depth must not be negative, got %d", maxDepth)
	}
	start, err := t.nodes.Get(ctx, workspaceID, startID)
	if err != nil {
		return nil, err
	}
	if start == nil {
		return nil, errors.Wrapf(graph.ErrNodeNotFound, "node %d in workspace %d", startID, workspaceID)
	}

	visited := make(map[int64]bool)
	result := make([]graph.PersistedNode, 0)

	switch traversalType {
	case BFS:
		return t.bfs(ctx, workspaceID, *start, maxDepth, visited)
	case DFS:
		if err := t.dfs(ctx, workspaceID, *start, maxDepth, visited, &result); err != nil {
			return nil, err
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported traversal type: %s", traversalType)
	}
}

func (t *GraphTraversal) bfs(ctx context.Context, workspaceID int64, start graph.PersistedNode, maxDepth int, visited map[int64]bool) ([]graph.PersistedNode, error) {
	queue := []graph.PersistedNode{start}
	visited[start.NodeID] = true
	result := make([]graph.PersistedNode, 0)
	depth := 0

	for len(queue) > 0 && depth <= maxDepth {
		levelSize := len(queue)
		for i := 0; i < levelSize; i++ {
			current := queue[0]
			queue = queue[1:]
			result = append(result, current)

			if depth == maxDepth {
				continue
			}
			for _, id := range current.ConnectedIDs {
				if visited[id] {
					continue
				}
				next, err := t.nodes.Get(ctx, workspaceID, id)
				if err != nil {
					return nil, err
				}
				if next == nil {
					continue
				}
				visited[id] = true
				queue = append(queue, *next)
			}
		}
		depth++
	}

	return result, nil
}

func (t *GraphTraversal) dfs(ctx context.Context, workspaceID int64, current graph.PersistedNode, depth int, visited map[int64]bool, result *[]graph.PersistedNode) error {
	visited[current.NodeID] = true
	*result = append(*result, current)
	if depth == 0 {
		return nil
	}

	for _, id := range current.ConnectedIDs {
		if visited[id] {
			continue
		}
		next, err := t.nodes.Get(ctx, workspaceID, id)
		if err != nil {
			return err
		}
		if next == nil {
			continue
		}
		if err := t.dfs(ctx, workspaceID, *next, depth-1, visited, result); err != nil {
			return err
		}
	}
	return nil
}
