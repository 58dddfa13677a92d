package graph

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Node is a concept as rendered in a graph view.
type Node struct {
	ID         string                 `json:"id"`
	Label      string                 `json:"label"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Sources    []string               `json:"sources,omitempty"` // Document IDs the concept was extracted from
}

// Edge is an undirected similarity link in a graph view.
type Edge struct {
	ID         string                 `json:"id"`
	Source     string                 `json:"source"`
	Target     string                 `json:"target"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Weight     float64                `json:"weight"`
}

// KnowledgeGraphData is a serialisable view over a workspace graph.
type KnowledgeGraphData struct {
	WorkspaceID int64     `json:"workspace_id"`
	Nodes       []Node    `json:"nodes"`
	Edges       []Edge    `json:"edges"`
	GeneratedAt time.Time `json:"generated_at"`
}

const (
	conceptNodeType = "concept"
	similarEdgeType = "similar_to"
)

// NewGraphView renders stored nodes as a graph view. Each stored connection
// becomes one undirected edge; connections to nodes outside the slice are
// dropped.
func NewGraphView(workspaceID int64, nodes []PersistedNode) *KnowledgeGraphData {
	present := make(map[int64]bool, len(nodes))
	for _, n := range nodes {
		present[n.NodeID] = true
	}

	view := &KnowledgeGraphData{
		WorkspaceID: workspaceID,
		Nodes:       make([]Node, 0, len(nodes)),
		Edges:       make([]Edge, 0),
		GeneratedAt: time.Now(),
	}
	seen := make(map[string]bool)
	for _, n := range nodes {
		view.Nodes = append(view.Nodes, Node{
			ID:    nodeRef(n.NodeID),
			Label: n.Title,
			Type:  conceptNodeType,
			Properties: map[string]interface{}{
				"description": n.Description,
				"keywords":    n.Keywords,
			},
		})
		for _, other := range n.ConnectedIDs {
			if !present[other] {
				continue
			}
			id := edgeID(n.NodeID, other)
			if seen[id] {
				continue
			}
			seen[id] = true
			view.Edges = append(view.Edges, newEdge(n.NodeID, other, 1.0))
		}
	}
	return view
}

// GraphViewBuilder accumulates upload results into one view, keeping the
// similarity scores that stored nodes no longer carry.
type GraphViewBuilder struct {
	workspaceID int64
	nodes       map[int64]Node
	edges       map[string]Edge
	mutex       sync.RWMutex
	logger      *logrus.Logger
}

// NewGraphViewBuilder creates a builder for workspaceID.
func NewGraphViewBuilder(workspaceID int64) *GraphViewBuilder {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &GraphViewBuilder{
		workspaceID: workspaceID,
		nodes:       make(map[int64]Node),
		edges:       make(map[string]Edge),
		logger:      logger,
	}
}

// AddUpload merges the nodes and scored connections of one upload.
func (b *GraphViewBuilder) AddUpload(result *UploadResult) error {
	if result == nil {
		return fmt.Errorf("cannot add nil upload result to graph view")
	}
	if result.WorkspaceID != b.workspaceID {
		return invalidArgument("upload for workspace %d added to view of workspace %d", result.WorkspaceID, b.workspaceID)
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	ids := make(map[string]int64, len(result.Nodes))
	for _, n := range result.Nodes {
		ids[n.Title] = n.NodeID

		node, exists := b.nodes[n.NodeID]
		if !exists {
			node = Node{
				ID:    nodeRef(n.NodeID),
				Label: n.Title,
				Type:  conceptNodeType,
			}
		}
		node.Label = n.Title
		node.Properties = map[string]interface{}{
			"description": n.Description,
			"keywords":    n.Keywords,
		}
		if result.DocumentID != "" {
			node.Sources = append(node.Sources, result.DocumentID)
		}
		b.nodes[n.NodeID] = node
	}

	// each pair is listed on both endpoints; count it once per upload
	touched := make(map[string]bool)
	for _, n := range result.Nodes {
		for _, c := range n.ConnectedTitles {
			other, ok := ids[c.Title]
			if !ok {
				b.logger.WithFields(logrus.Fields{
					"title":     n.Title,
					"connected": c.Title,
				}).Warn("Skipping connection to unknown concept")
				continue
			}
			id := edgeID(n.NodeID, other)
			if touched[id] {
				continue
			}
			touched[id] = true
			edge, exists := b.edges[id]
			if !exists {
				b.edges[id] = newEdge(n.NodeID, other, c.Similarity)
				continue
			}
			// the same pair seen again in a later upload
			if edge.Weight != c.Similarity {
				edge.Weight = (edge.Weight + c.Similarity) / 2
				edge.Properties["similarity"] = edge.Weight
				b.edges[id] = edge
			}
		}
	}
	return nil
}

// Generate returns the accumulated view with nodes and edges in id order.
func (b *GraphViewBuilder) Generate() *KnowledgeGraphData {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	nodes := make([]Node, 0, len(b.nodes))
	for _, node := range b.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	edges := make([]Edge, 0, len(b.edges))
	for _, edge := range b.edges {
		edges = append(edges, edge)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	return &KnowledgeGraphData{
		WorkspaceID: b.workspaceID,
		Nodes:       nodes,
		Edges:       edges,
		GeneratedAt: time.Now(),
	}
}

func nodeRef(id int64) string {
	return strconv.FormatInt(id, 10)
}

func edgeID(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d-%s-%d", a, similarEdgeType, b)
}

func newEdge(a, b int64, weight float64) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{
		ID:     edgeID(a, b),
		Source: nodeRef(a),
		Target: nodeRef(b),
		Type:   similarEdgeType,
		Properties: map[string]interface{}{
			"similarity": weight,
		},
		Weight: weight,
	}
}
