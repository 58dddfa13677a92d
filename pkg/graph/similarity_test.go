package graph

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	short   bool
	calls   [][]string
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out = append(out, v)
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func TestComputeSimilarityTitleMode(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Gravity": {1, 0, 0},
		"Orbits":  {1, 1, 0},
		"Cells":   {0, 0, 1},
	}}
	engine := NewSimilarityEngine(embedder)
	nodes := []ConceptNode{{Title: "Gravity"}, {Title: "Orbits"}, {Title: "Cells"}}

	m, err := engine.ComputeSimilarity(context.Background(), nodes, ModeTitle)
	require.NoError(t, err)
	require.Len(t, m, 3)

	for i := range m {
		assert.Equal(t, 1.0, m[i][i])
		for j := range m {
			assert.Equal(t, m[i][j], m[j][i], "matrix must be symmetric at %d,%d", i, j)
		}
	}
	assert.InDelta(t, 1/math.Sqrt2, m[0][1], 1e-5)
	assert.InDelta(t, 0, m[0][2], 1e-6)
	assert.Equal(t, [][]string{{"Gravity", "Orbits", "Cells"}}, embedder.calls)
}

func TestComputeSimilarityHybridMode(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"A":      {1, 0},
		"B":      {0, 1},
		"desc a": {1, 0},
		"desc b": {1, 0},
	}}
	engine := NewSimilarityEngine(embedder)
	nodes := []ConceptNode{{Title: "A", Description: "desc a"}, {Title: "B", Description: "desc b"}}

	m, err := engine.ComputeSimilarity(context.Background(), nodes, ModeHybrid)
	require.NoError(t, err)
	assert.InDelta(t, DefaultDescriptionWeight, m[0][1], 1e-6)
	assert.InDelta(t, DefaultDescriptionWeight, m[1][0], 1e-6)
	assert.Equal(t, 1.0, m[0][0])

	weighted := NewSimilarityEngine(embedder, WithHybridWeights(0.5, 0.5))
	m, err = weighted.ComputeSimilarity(context.Background(), nodes, ModeHybrid)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, m[0][1], 1e-6)
}

func TestComputeSimilarityDescriptionMode(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"first":  {1, 0},
		"second": {0, 1},
	}}
	engine := NewSimilarityEngine(embedder)
	nodes := []ConceptNode{{Title: "A", Description: "first"}, {Title: "B", Description: "second"}}

	m, err := engine.ComputeSimilarity(context.Background(), nodes, ModeDescription)
	require.NoError(t, err)
	assert.InDelta(t, 0, m[0][1], 1e-6)
	assert.Equal(t, [][]string{{"first", "second"}}, embedder.calls)
}

func TestComputeSimilarityErrors(t *testing.T) {
	nodes := []ConceptNode{{Title: "A"}, {Title: "B"}}

	tests := []struct {
		name     string
		embedder *fakeEmbedder
		nodes    []ConceptNode
		mode     SimilarityMode
		want     error
	}{
		{"unknown mode", &fakeEmbedder{}, nodes, SimilarityMode("semantic"), ErrInvalidArgument},
		{"empty batch", &fakeEmbedder{}, nil, ModeTitle, ErrInvalidArgument},
		{"missing title", &fakeEmbedder{}, []ConceptNode{{Title: "A"}, {Title: "  "}}, ModeTitle, ErrMalformedNode},
		{"embedder down", &fakeEmbedder{err: errors.New("connection refused")}, nodes, ModeTitle, ErrUpstreamUnavailable},
		{"short embedding response", &fakeEmbedder{short: true}, nodes, ModeTitle, ErrUpstreamUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSimilarityEngine(tt.embedder).ComputeSimilarity(context.Background(), tt.nodes, tt.mode)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestComputeSimilarityLargeBatch(t *testing.T) {
	n := parallelRowThreshold + 10
	vectors := make(map[string][]float32, n)
	nodes := make([]ConceptNode, n)
	for i := 0; i < n; i++ {
		title := string(rune('A'+i%26)) + string(rune('a'+i/26))
		nodes[i] = ConceptNode{Title: title}
		vectors[title] = []float32{float32(i%7) + 1, float32(i%5) - 2, float32(i % 3)}
	}
	engine := NewSimilarityEngine(&fakeEmbedder{vectors: vectors}, WithWorkers(3))

	m, err := engine.ComputeSimilarity(context.Background(), nodes, ModeTitle)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := 1.0
			if i != j {
				want = cosine(vectors[nodes[i].Title], vectors[nodes[j].Title])
			}
			assert.InDelta(t, want, m[i][j], 1e-9)
		}
	}
}

func TestCosineZeroVector(t *testing.T) {
	assert.Equal(t, 0.0, cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, cosine([]float32{1}, []float32{1, 0}))
}

func TestParseSimilarityMode(t *testing.T) {
	mode, err := ParseSimilarityMode(" Hybrid ")
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, mode)

	_, err = ParseSimilarityMode("")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
