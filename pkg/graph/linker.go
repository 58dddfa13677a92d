package graph

import (
	"math"

	"github.com/athapong/concept-graph/pkg/graph/metrics"
)

// Default acceptance band. Pairs above Max are treated as near-duplicates
// rather than related concepts.
const (
	DefaultMinSimilarity = 0.45
	DefaultMaxSimilarity = 0.95
)

// Band is the inclusive similarity range a pair must fall in to become an edge.
type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultBand returns the operational band.
func DefaultBand() Band {
	return Band{Min: DefaultMinSimilarity, Max: DefaultMaxSimilarity}
}

// Validate reports an inverted or NaN band.
func (b Band) Validate() error {
	if math.IsNaN(b.Min) || math.IsNaN(b.Max) {
		return invalidArgument("similarity band bounds must be numbers")
	}
	if b.Min > b.Max {
		return invalidArgument("similarity band min %.3f is greater than max %.3f", b.Min, b.Max)
	}
	return nil
}

// Accepts reports whether score falls inside the band.
func (b Band) Accepts(score float64) bool {
	return b.Min <= score && score <= b.Max
}

// SelectConnections records every pair i<j whose score is inside band on both
// endpoints. The input nodes are left untouched. An inverted band selects
// nothing.
func SelectConnections(nodes []ConceptNode, matrix [][]float64, band Band) ([]ScoredNode, error) {
	n := len(nodes)
	if len(matrix) != n {
		return nil, invalidArgument("similarity matrix has %d rows for %d nodes", len(matrix), n)
	}
	for i, row := range matrix {
		if len(row) != n {
			return nil, invalidArgument("similarity matrix row %d has %d columns for %d nodes", i, len(row), n)
		}
	}

	scored := make([]ScoredNode, n)
	for i, node := range nodes {
		scored[i] = ScoredNode{
			ConceptNode: ConceptNode{
				Title:       node.Title,
				Description: node.Description,
				Keywords:    append([]string(nil), node.Keywords...),
			},
			ConnectedTitles: []Connection{},
		}
	}

	edges := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			score := matrix[i][j]
			if !band.Accepts(score) {
				continue
			}
			scored[i].ConnectedTitles = append(scored[i].ConnectedTitles, Connection{Title: nodes[j].Title, Similarity: score})
			scored[j].ConnectedTitles = append(scored[j].ConnectedTitles, Connection{Title: nodes[i].Title, Similarity: score})
			edges++
		}
	}
	metrics.EdgesSelected.Add(float64(edges))

	return scored, nil
}
