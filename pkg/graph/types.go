package graph

import (
	"context"
	"time"
)

// ConceptNode is a candidate concept proposed by the extractor. It carries no
// identifier until it is stamped by Identify.
type ConceptNode struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords"`
}

// Connection is one scored edge endpoint as seen from the owning node.
type Connection struct {
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
}

// ScoredNode is a ConceptNode annotated with the connections accepted by the
// selector, in discovery order.
type ScoredNode struct {
	ConceptNode
	ConnectedTitles []Connection `json:"connected_titles"`
}

// IdentifiedNode is a ScoredNode carrying its deterministic node id.
type IdentifiedNode struct {
	ScoredNode
	NodeID int64 `json:"node_id"`
}

// PersistedNode is the stored form of a concept node.
type PersistedNode struct {
	NodeID          int64     `json:"node_id"`
	WorkspaceID     int64     `json:"workspace_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	ConnectedTitles []string  `json:"connected_titles"`
	ConnectedIDs    []int64   `json:"connected_ids"`
	Keywords        []string  `json:"keywords"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers never share slices with a store.
func (n PersistedNode) Clone() PersistedNode {
	c := n
	c.ConnectedTitles = append([]string(nil), n.ConnectedTitles...)
	c.ConnectedIDs = append([]int64(nil), n.ConnectedIDs...)
	c.Keywords = append([]string(nil), n.Keywords...)
	return c
}

// Workspace groups the nodes of one graph.
type Workspace struct {
	WorkspaceID int64  `json:"workspace_id"`
	UserID      int64  `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// DocumentProcessor converts raw uploaded bytes into a markdown Document
type DocumentProcessor interface {
	Process(ctx context.Context, content []byte, metadata map[string]interface{}) (*Document, error)
	SupportedTypes() []string
}

// Extractor proposes concept candidates for a markdown document
type Extractor interface {
	Extract(ctx context.Context, markdown string) ([]ConceptNode, error)
}

// Embedder turns texts into fixed-dimension vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NodeReader is the read half of Storage.
type NodeReader interface {
	Get(ctx context.Context, workspaceID, nodeID int64) (*PersistedNode, error)
	GetByTitle(ctx context.Context, workspaceID int64, title string) (*PersistedNode, error)
	ListAll(ctx context.Context, workspaceID int64) ([]PersistedNode, error)
}

// Storage persists concept nodes per workspace. Get and GetByTitle return
// (nil, nil) when the node does not exist.
type Storage interface {
	NodeReader
	Insert(ctx context.Context, node PersistedNode) error
	Update(ctx context.Context, node PersistedNode) error
	Delete(ctx context.Context, workspaceID, nodeID int64) error
}

// NodeLocker is implemented by storages that can hold a lock spanning the
// read-union-write of a single node. fn receives a Storage bound to the lock.
type NodeLocker interface {
	WithNodeLock(ctx context.Context, workspaceID, nodeID int64, fn func(Storage) error) error
}

// WorkspaceStore is implemented by storages that also keep workspace rows.
type WorkspaceStore interface {
	CreateWorkspace(ctx context.Context, userID int64, title, description string) (*Workspace, error)
	ListWorkspaces(ctx context.Context, userID int64) ([]Workspace, error)
}
