package graph

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/viterin/vek/vek32"
	"golang.org/x/sync/errgroup"

	"github.com/athapong/concept-graph/pkg/graph/metrics"
)

// SimilarityMode selects which node text is embedded and compared.
type SimilarityMode string

const (
	ModeTitle       SimilarityMode = "title"
	ModeDescription SimilarityMode = "description"
	ModeHybrid      SimilarityMode = "hybrid"
)

// Hybrid weights used when none are configured.
const (
	DefaultTitleWeight       = 0.6
	DefaultDescriptionWeight = 0.4
)

// rows are fanned out to goroutines only past this batch size
const parallelRowThreshold = 64

// ParseSimilarityMode validates a mode string.
func ParseSimilarityMode(s string) (SimilarityMode, error) {
	switch m := SimilarityMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeTitle, ModeDescription, ModeHybrid:
		return m, nil
	default:
		return "", invalidArgument("mode must be 'title', 'description', or 'hybrid', got %q", s)
	}
}

// SimilarityEngine scores every pair of a batch with cosine similarity over
// embeddings produced by the injected Embedder.
type SimilarityEngine struct {
	embedder          Embedder
	titleWeight       float64
	descriptionWeight float64
	workers           int
	logger            *logrus.Logger
}

// SimilarityOption configures a SimilarityEngine.
type SimilarityOption func(*SimilarityEngine)

// WithHybridWeights overrides the hybrid title/description weights.
func WithHybridWeights(title, description float64) SimilarityOption {
	return func(e *SimilarityEngine) {
		e.titleWeight = title
		e.descriptionWeight = description
	}
}

// WithWorkers bounds the goroutines used for large batches.
func WithWorkers(n int) SimilarityOption {
	return func(e *SimilarityEngine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithSimilarityLogger sets the engine logger.
func WithSimilarityLogger(logger *logrus.Logger) SimilarityOption {
	return func(e *SimilarityEngine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewSimilarityEngine creates an engine around embedder.
func NewSimilarityEngine(embedder Embedder, opts ...SimilarityOption) *SimilarityEngine {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	e := &SimilarityEngine{
		embedder:          embedder,
		titleWeight:       DefaultTitleWeight,
		descriptionWeight: DefaultDescriptionWeight,
		workers:           4,
		logger:            logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeSimilarity returns the n×n similarity matrix of nodes under mode.
// The matrix is symmetric and its diagonal is 1.
func (e *SimilarityEngine) ComputeSimilarity(ctx context.Context, nodes []ConceptNode, mode SimilarityMode) ([][]float64, error) {
	if _, err := ParseSimilarityMode(string(mode)); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, invalidArgument("cannot compute similarity of an empty node batch")
	}
	for i, n := range nodes {
		if strings.TrimSpace(n.Title) == "" {
			return nil, errors.Wrapf(ErrMalformedNode, "node %d has no title", i)
		}
	}

	timer := prometheus.NewTimer(metrics.SimilarityDuration.WithLabelValues(string(mode)))
	defer timer.ObserveDuration()

	n := len(nodes)
	texts := make([]string, 0, 2*n)
	if mode == ModeTitle || mode == ModeHybrid {
		for _, node := range nodes {
			texts = append(texts, node.Title)
		}
	}
	if mode == ModeDescription || mode == ModeHybrid {
		for _, node := range nodes {
			texts = append(texts, node.Description)
		}
	}

	start := time.Now()
	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, Unavailable(err, "failed to embed node texts")
	}
	if len(vectors) != len(texts) {
		return nil, Unavailable(errors.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts)), "failed to embed node texts")
	}
	e.logger.WithFields(logrus.Fields{
		"nodes":   n,
		"texts":   len(texts),
		"mode":    mode,
		"elapsed": time.Since(start).String(),
	}).Debug("Embedded node texts")

	switch mode {
	case ModeTitle, ModeDescription:
		return e.cosineMatrix(ctx, vectors)
	default:
		titles, err := e.cosineMatrix(ctx, vectors[:n])
		if err != nil {
			return nil, err
		}
		descs, err := e.cosineMatrix(ctx, vectors[n:])
		if err != nil {
			return nil, err
		}
		out := newMatrix(n)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				out[i][j] = e.titleWeight*titles[i][j] + e.descriptionWeight*descs[i][j]
			}
			out[i][i] = 1.0
		}
		return out, nil
	}
}

func (e *SimilarityEngine) cosineMatrix(ctx context.Context, vectors [][]float32) ([][]float64, error) {
	n := len(vectors)
	m := newMatrix(n)

	row := func(i int) {
		m[i][i] = 1.0
		for j := i + 1; j < n; j++ {
			m[i][j] = cosine(vectors[i], vectors[j])
		}
	}

	if n < parallelRowThreshold {
		for i := 0; i < n; i++ {
			row(i)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.workers)
		for i := 0; i < n; i++ {
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				row(i)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	// mirror the upper triangle
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			m[j][i] = m[i][j]
		}
	}
	return m, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	// zero vectors come back as NaN
	sim := float64(vek32.CosineSimilarity(a, b))
	if math.IsNaN(sim) {
		return 0
	}
	return sim
}

func newMatrix(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}
