package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/athapong/concept-graph/pkg/graph"
)

type snapshot struct {
	Nodes      []graph.PersistedNode `json:"nodes"`
	Workspaces []graph.Workspace     `json:"workspaces"`
}

// JSONStore is a MemoryStore persisted to a single JSON file after every
// write.
type JSONStore struct {
	*MemoryStore
	filePath string
	writeMu  sync.Mutex
}

var (
	_ graph.Storage        = (*JSONStore)(nil)
	_ graph.WorkspaceStore = (*JSONStore)(nil)
)

// NewJSONStore opens the store at filePath, loading it when the file exists.
func NewJSONStore(filePath string) (*JSONStore, error) {
	s := &JSONStore{
		MemoryStore: NewMemoryStore(),
		filePath:    filePath,
	}

	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read node store: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode node store %s: %w", filePath, err)
	}
	s.restore(snap)
	return s, nil
}

func (s *JSONStore) Insert(ctx context.Context, node graph.PersistedNode) error {
	return s.commit(func() error {
		return s.MemoryStore.Insert(ctx, node)
	}, func() {
		s.MemoryStore.Delete(ctx, node.WorkspaceID, node.NodeID)
	})
}

func (s *JSONStore) Update(ctx context.Context, node graph.PersistedNode) error {
	var previous *graph.PersistedNode
	return s.commit(func() error {
		previous, _ = s.MemoryStore.Get(ctx, node.WorkspaceID, node.NodeID)
		return s.MemoryStore.Update(ctx, node)
	}, func() {
		if previous != nil {
			s.MemoryStore.Update(ctx, *previous)
		}
	})
}

func (s *JSONStore) Delete(ctx context.Context, workspaceID, nodeID int64) error {
	var previous *graph.PersistedNode
	return s.commit(func() error {
		previous, _ = s.MemoryStore.Get(ctx, workspaceID, nodeID)
		return s.MemoryStore.Delete(ctx, workspaceID, nodeID)
	}, func() {
		if previous != nil {
			s.MemoryStore.Insert(ctx, *previous)
		}
	})
}

func (s *JSONStore) CreateWorkspace(ctx context.Context, userID int64, title, description string) (*graph.Workspace, error) {
	var ws *graph.Workspace
	err := s.commit(func() error {
		var err error
		ws, err = s.MemoryStore.CreateWorkspace(ctx, userID, title, description)
		return err
	}, func() {
		s.MemoryStore.mutex.Lock()
		delete(s.MemoryStore.workspaces, ws.WorkspaceID)
		s.MemoryStore.mutex.Unlock()
	})
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// commit applies a change to memory and writes the file. When the write
// fails the change is undone, so memory never runs ahead of disk.
func (s *JSONStore) commit(apply func() error, undo func()) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := apply(); err != nil {
		return err
	}
	if err := writeJSON(s.filePath, s.snapshot()); err != nil {
		undo()
		return fmt.Errorf("failed to write node store: %w", err)
	}
	return nil
}

// StoreGraph writes a graph view as indented JSON.
func StoreGraph(filePath string, view *graph.KnowledgeGraphData) error {
	return writeJSON(filePath, view)
}

// LoadGraph reads a graph view written by StoreGraph.
func LoadGraph(filePath string) (*graph.KnowledgeGraphData, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var view graph.KnowledgeGraphData
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// writeJSON replaces filePath atomically.
func writeJSON(filePath string, v interface{}) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(filePath)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filePath)
}
