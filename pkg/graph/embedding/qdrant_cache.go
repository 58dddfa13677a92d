package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"

	"github.com/athapong/concept-graph/pkg/graph"
	"github.com/athapong/concept-graph/pkg/graph/metrics"
)

const cacheType = "embedding"

// PointStore is the part of *qdrant.Client the cache needs.
type PointStore interface {
	Get(ctx context.Context, request *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
}

// collectionManager is implemented by *qdrant.Client; the collection is
// created on first write when the store supports it.
type collectionManager interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
}

// QdrantCache is an Embedder that keeps vectors in a qdrant collection keyed
// by (model, text) and only asks the wrapped embedder for misses. Cache
// failures are logged and never fail an Embed call.
type QdrantCache struct {
	inner      graph.Embedder
	store      PointStore
	collection string
	model      string

	mu    sync.Mutex
	ready bool

	logger *logrus.Logger
}

// NewQdrantCache wraps inner with a cache in collection.
func NewQdrantCache(inner graph.Embedder, store PointStore, collection, model string, logger *logrus.Logger) *QdrantCache {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &QdrantCache{
		inner:      inner,
		store:      store,
		collection: collection,
		model:      model,
		logger:     logger,
	}
}

var _ graph.Embedder = (*QdrantCache)(nil)

// PointID returns the cache key of text under model.
func PointID(model, text string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(model+"\x00"+text)).String()
}

// Embed serves cached vectors and embeds the rest in one call to the wrapped
// embedder.
func (c *QdrantCache) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	cached := c.lookup(ctx, texts)

	missing := make([]string, 0)
	missingIdx := make([]int, 0)
	for i, t := range texts {
		if v, ok := cached[PointID(c.model, t)]; ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}

	metrics.CacheHits.WithLabelValues(cacheType).Add(float64(len(texts) - len(missing)))
	metrics.CacheMisses.WithLabelValues(cacheType).Add(float64(len(missing)))

	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, graph.Unavailable(
			fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missing)),
			"embedding response does not match the request")
	}
	for i, v := range vectors {
		out[missingIdx[i]] = v
	}

	c.save(ctx, missing, vectors)
	return out, nil
}

func (c *QdrantCache) lookup(ctx context.Context, texts []string) map[string][]float32 {
	found := make(map[string][]float32)
	if len(texts) == 0 {
		return found
	}

	ids := make([]*qdrant.PointId, 0, len(texts))
	seen := make(map[string]bool, len(texts))
	for _, t := range texts {
		id := PointID(c.model, t)
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, qdrant.NewIDUUID(id))
	}

	points, err := c.store.Get(ctx, &qdrant.GetPoints{
		CollectionName: c.collection,
		Ids:            ids,
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		c.logger.WithError(err).WithField("collection", c.collection).Warn("Embedding cache lookup failed")
		return found
	}

	for _, p := range points {
		data := p.GetVectors().GetVector().GetData()
		if len(data) == 0 {
			continue
		}
		found[p.GetId().GetUuid()] = data
	}
	return found
}

func (c *QdrantCache) save(ctx context.Context, texts []string, vectors [][]float32) {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return
	}
	if err := c.ensureCollection(ctx, uint64(len(vectors[0]))); err != nil {
		c.logger.WithError(err).WithField("collection", c.collection).Warn("Embedding cache collection unavailable")
		return
	}

	points := make([]*qdrant.PointStruct, 0, len(texts))
	for i, t := range texts {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(c.model, t)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"model": c.model,
				"text":  t,
			}),
		})
	}

	wait := true
	if _, err := c.store.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		c.logger.WithError(err).WithField("collection", c.collection).Warn("Embedding cache write failed")
	}
}

func (c *QdrantCache) ensureCollection(ctx context.Context, dims uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return nil
	}

	mgr, ok := c.store.(collectionManager)
	if !ok {
		c.ready = true
		return nil
	}
	exists, err := mgr.CollectionExists(ctx, c.collection)
	if err != nil {
		return err
	}
	if !exists {
		err = mgr.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: c.collection,
			VectorsConfig: &qdrant.VectorsConfig{
				Config: &qdrant.VectorsConfig_Params{
					Params: &qdrant.VectorParams{
						Size:     dims,
						Distance: qdrant.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return err
		}
		c.logger.WithFields(logrus.Fields{"collection": c.collection, "dims": dims}).Info("Created embedding cache collection")
	}
	c.ready = true
	return nil
}
