package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/athapong/concept-graph/pkg/graph"
)

type fakePoints struct {
	mu          sync.Mutex
	vectors     map[string][]float32
	getErr      error
	upsertErr   error
	created     []*qdrant.CreateCollection
	collections map[string]bool
}

func newFakePoints() *fakePoints {
	return &fakePoints{vectors: make(map[string][]float32), collections: make(map[string]bool)}
}

func (f *fakePoints) Get(ctx context.Context, request *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := make([]*qdrant.RetrievedPoint, 0)
	for _, id := range request.GetIds() {
		v, ok := f.vectors[id.GetUuid()]
		if !ok {
			continue
		}
		data := make([]string, len(v))
		for i, x := range v {
			data[i] = fmt.Sprint(x)
		}
		raw := fmt.Sprintf(`{"id":{"uuid":%q},"vectors":{"vector":{"data":[%s]}}}`, id.GetUuid(), strings.Join(data, ","))
		var p qdrant.RetrievedPoint
		if err := protojson.Unmarshal([]byte(raw), &p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, nil
}

func (f *fakePoints) Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	for _, p := range request.GetPoints() {
		f.vectors[p.GetId().GetUuid()] = p.GetVectors().GetVector().GetData()
	}
	return &qdrant.UpdateResult{}, nil
}

func (f *fakePoints) CollectionExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.collections[name], nil
}

func (f *fakePoints) CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, request)
	f.collections[request.GetCollectionName()] = true
	return nil
}

type countingEmbedder struct {
	calls [][]string
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls = append(c.calls, texts)
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func TestQdrantCacheServesRepeatedTexts(t *testing.T) {
	ctx := context.Background()
	store := newFakePoints()
	inner := &countingEmbedder{}
	cache := NewQdrantCache(inner, store, "embeddings", "text-embedding-3-small", nil)

	first, err := cache.Embed(ctx, []string{"Gravity", "Orbits"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{7, 1}, {6, 1}}, first)
	require.Len(t, store.created, 1)
	assert.Equal(t, uint64(2), store.created[0].GetVectorsConfig().GetParams().GetSize())

	second, err := cache.Embed(ctx, []string{"Orbits", "Cells", "Gravity"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{6, 1}, {5, 1}, {7, 1}}, second)

	require.Len(t, inner.calls, 2)
	assert.Equal(t, []string{"Cells"}, inner.calls[1])
	assert.Len(t, store.created, 1)
}

func TestQdrantCacheIsBestEffort(t *testing.T) {
	ctx := context.Background()
	store := newFakePoints()
	store.getErr = errors.New("qdrant unreachable")
	store.upsertErr = errors.New("qdrant unreachable")
	inner := &countingEmbedder{}
	cache := NewQdrantCache(inner, store, "embeddings", "m", nil)

	vectors, err := cache.Embed(ctx, []string{"Gravity"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{7, 1}}, vectors)
	assert.Len(t, inner.calls, 1)
}

func TestQdrantCachePropagatesEmbedderErrors(t *testing.T) {
	cache := NewQdrantCache(&countingEmbedder{err: errors.New("boom")}, newFakePoints(), "embeddings", "m", nil)
	_, err := cache.Embed(context.Background(), []string{"Gravity"})
	assert.EqualError(t, err, "boom")
}

func TestPointIDDependsOnModel(t *testing.T) {
	assert.Equal(t, PointID("a", "Gravity"), PointID("a", "Gravity"))
	assert.NotEqual(t, PointID("a", "Gravity"), PointID("b", "Gravity"))
}

// skewedEmbedder returns delta more (or fewer) vectors than it was asked for.
type skewedEmbedder struct {
	delta int
}

func (s skewedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts)+s.delta)
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestQdrantCacheRejectsMismatchedVectorCounts(t *testing.T) {
	for _, delta := range []int{-1, 1} {
		store := newFakePoints()
		cache := NewQdrantCache(skewedEmbedder{delta: delta}, store, "embeddings", "m", nil)

		_, err := cache.Embed(context.Background(), []string{"Gravity", "Orbits"})
		assert.ErrorIs(t, err, graph.ErrUpstreamUnavailable, "delta %d", delta)
		assert.Empty(t, store.vectors, "nothing is cached for delta %d", delta)
	}
}
