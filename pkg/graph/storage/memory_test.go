package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athapong/concept-graph/pkg/graph"
)

func sampleNode(ws, id int64, title string, connected ...int64) graph.PersistedNode {
	return graph.PersistedNode{
		NodeID:       id,
		WorkspaceID:  ws,
		Title:        title,
		ConnectedIDs: connected,
		Keywords:     []string{"k"},
	}
}

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Insert(ctx, sampleNode(1, 20, "Orbits")))
	require.NoError(t, s.Insert(ctx, sampleNode(1, 10, "Gravity", 20)))
	require.NoError(t, s.Insert(ctx, sampleNode(2, 10, "Gravity")))
	assert.ErrorIs(t, s.Insert(ctx, sampleNode(1, 10, "Gravity")), ErrDuplicateNode)

	got, err := s.Get(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, got.ConnectedIDs)

	byTitle, err := s.GetByTitle(ctx, 1, "Orbits")
	require.NoError(t, err)
	assert.Equal(t, int64(20), byTitle.NodeID)

	missing, err := s.Get(ctx, 1, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := s.ListAll(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(10), all[0].NodeID)

	got.Title = "Gravitation"
	require.NoError(t, s.Update(ctx, *got))
	assert.ErrorIs(t, s.Update(ctx, sampleNode(3, 1, "x")), ErrNodeMissing)

	require.NoError(t, s.Delete(ctx, 1, 20))
	all, _ = s.ListAll(ctx, 1)
	require.Len(t, all, 1)
	assert.Equal(t, "Gravitation", all[0].Title)

	other, _ := s.ListAll(ctx, 2)
	assert.Len(t, other, 1)
}

func TestMemoryStoreClonesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	n := sampleNode(1, 10, "Gravity", 20)
	require.NoError(t, s.Insert(ctx, n))

	n.ConnectedIDs[0] = 99
	got, _ := s.Get(ctx, 1, 10)
	assert.Equal(t, []int64{20}, got.ConnectedIDs)

	got.Keywords[0] = "changed"
	again, _ := s.Get(ctx, 1, 10)
	assert.Equal(t, []string{"k"}, again.Keywords)
}

func TestMemoryStoreWorkspaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a, err := s.CreateWorkspace(ctx, 7, "Physics", "")
	require.NoError(t, err)
	b, err := s.CreateWorkspace(ctx, 7, "Biology", "cells")
	require.NoError(t, err)
	_, err = s.CreateWorkspace(ctx, 8, "History", "")
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.WorkspaceID)
	assert.Equal(t, int64(2), b.WorkspaceID)

	list, err := s.ListWorkspaces(ctx, 7)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Biology", list[1].Title)
}
