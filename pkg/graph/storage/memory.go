package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/athapong/concept-graph/pkg/graph"
)

// MemoryStore keeps nodes and workspaces in process memory. Values are
// cloned on the way in and out.
type MemoryStore struct {
	mutex      sync.RWMutex
	nodes      map[int64]map[int64]graph.PersistedNode
	workspaces map[int64]graph.Workspace
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:      make(map[int64]map[int64]graph.PersistedNode),
		workspaces: make(map[int64]graph.Workspace),
	}
}

var (
	_ graph.Storage        = (*MemoryStore)(nil)
	_ graph.WorkspaceStore = (*MemoryStore)(nil)
)

func (s *MemoryStore) Get(ctx context.Context, workspaceID, nodeID int64) (*graph.PersistedNode, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	n, ok := s.nodes[workspaceID][nodeID]
	if !ok {
		return nil, nil
	}
	c := n.Clone()
	return &c, nil
}

func (s *MemoryStore) GetByTitle(ctx context.Context, workspaceID int64, title string) (*graph.PersistedNode, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, n := range s.nodes[workspaceID] {
		if n.Title == title {
			c := n.Clone()
			return &c, nil
		}
	}
	return nil, nil
}

// ListAll returns the nodes of a workspace ordered by id.
func (s *MemoryStore) ListAll(ctx context.Context, workspaceID int64) ([]graph.PersistedNode, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]graph.PersistedNode, 0, len(s.nodes[workspaceID]))
	for _, n := range s.nodes[workspaceID] {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out, nil
}

func (s *MemoryStore) Insert(ctx context.Context, node graph.PersistedNode) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ws, ok := s.nodes[node.WorkspaceID]
	if !ok {
		ws = make(map[int64]graph.PersistedNode)
		s.nodes[node.WorkspaceID] = ws
	}
	if _, exists := ws[node.NodeID]; exists {
		return ErrDuplicateNode
	}
	ws[node.NodeID] = node.Clone()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, node graph.PersistedNode) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ws := s.nodes[node.WorkspaceID]
	if _, exists := ws[node.NodeID]; !exists {
		return ErrNodeMissing
	}
	ws[node.NodeID] = node.Clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, workspaceID, nodeID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.nodes[workspaceID], nodeID)
	return nil
}

// CreateWorkspace assigns the next workspace id (highest existing + 1).
func (s *MemoryStore) CreateWorkspace(ctx context.Context, userID int64, title, description string) (*graph.Workspace, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var next int64 = 1
	for id := range s.workspaces {
		if id >= next {
			next = id + 1
		}
	}
	ws := graph.Workspace{WorkspaceID: next, UserID: userID, Title: title, Description: description}
	s.workspaces[next] = ws
	return &ws, nil
}

func (s *MemoryStore) ListWorkspaces(ctx context.Context, userID int64) ([]graph.Workspace, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]graph.Workspace, 0)
	for _, ws := range s.workspaces {
		if ws.UserID == userID {
			out = append(out, ws)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkspaceID < out[j].WorkspaceID })
	return out, nil
}

// snapshot returns a deep copy of the store contents.
func (s *MemoryStore) snapshot() snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	snap := snapshot{
		Nodes:      make([]graph.PersistedNode, 0),
		Workspaces: make([]graph.Workspace, 0, len(s.workspaces)),
	}
	for _, ws := range s.nodes {
		for _, n := range ws {
			snap.Nodes = append(snap.Nodes, n.Clone())
		}
	}
	sort.Slice(snap.Nodes, func(i, j int) bool {
		if snap.Nodes[i].WorkspaceID != snap.Nodes[j].WorkspaceID {
			return snap.Nodes[i].WorkspaceID < snap.Nodes[j].WorkspaceID
		}
		return snap.Nodes[i].NodeID < snap.Nodes[j].NodeID
	})
	for _, ws := range s.workspaces {
		snap.Workspaces = append(snap.Workspaces, ws)
	}
	sort.Slice(snap.Workspaces, func(i, j int) bool { return snap.Workspaces[i].WorkspaceID < snap.Workspaces[j].WorkspaceID })
	return snap
}

func (s *MemoryStore) restore(snap snapshot) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.nodes = make(map[int64]map[int64]graph.PersistedNode)
	for _, n := range snap.Nodes {
		ws, ok := s.nodes[n.WorkspaceID]
		if !ok {
			ws = make(map[int64]graph.PersistedNode)
			s.nodes[n.WorkspaceID] = ws
		}
		ws[n.NodeID] = n.Clone()
	}
	s.workspaces = make(map[int64]graph.Workspace, len(snap.Workspaces))
	for _, w := range snap.Workspaces {
		s.workspaces[w.WorkspaceID] = w
	}
}
