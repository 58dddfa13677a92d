package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectConnectionsBand(t *testing.T) {
	nodes := []ConceptNode{{Title: "Gravity"}, {Title: "Orbits"}, {Title: "Photosynthesis"}}
	matrix := [][]float64{
		{1, 0.7, 0.1},
		{0.7, 1, 0.05},
		{0.1, 0.05, 1},
	}

	scored, err := SelectConnections(nodes, matrix, Band{Min: 0.45, Max: 0.95})
	require.NoError(t, err)
	require.Len(t, scored, 3)

	assert.Equal(t, []Connection{{Title: "Orbits", Similarity: 0.7}}, scored[0].ConnectedTitles)
	assert.Equal(t, []Connection{{Title: "Gravity", Similarity: 0.7}}, scored[1].ConnectedTitles)
	assert.NotNil(t, scored[2].ConnectedTitles)
	assert.Empty(t, scored[2].ConnectedTitles)
}

func TestSelectConnectionsBounds(t *testing.T) {
	nodes := []ConceptNode{{Title: "A"}, {Title: "B"}, {Title: "C"}, {Title: "D"}}
	matrix := [][]float64{
		{1, 0.45, 0.95, 0.97},
		{0.45, 1, 0.2, 0.2},
		{0.95, 0.2, 1, 0.2},
		{0.97, 0.2, 0.2, 1},
	}

	scored, err := SelectConnections(nodes, matrix, DefaultBand())
	require.NoError(t, err)

	// both bounds are inclusive; near-duplicates above the ceiling are dropped
	assert.Equal(t, []Connection{{Title: "B", Similarity: 0.45}, {Title: "C", Similarity: 0.95}}, scored[0].ConnectedTitles)
	assert.Empty(t, scored[3].ConnectedTitles)
}

func TestSelectConnectionsInvertedBandSelectsNothing(t *testing.T) {
	nodes := []ConceptNode{{Title: "A"}, {Title: "B"}}
	matrix := [][]float64{{1, 0.6}, {0.6, 1}}

	scored, err := SelectConnections(nodes, matrix, Band{Min: 0.9, Max: 0.1})
	require.NoError(t, err)
	for _, s := range scored {
		assert.Empty(t, s.ConnectedTitles)
	}
	assert.ErrorIs(t, Band{Min: 0.9, Max: 0.1}.Validate(), ErrInvalidArgument)
}

func TestSelectConnectionsDimensionMismatch(t *testing.T) {
	nodes := []ConceptNode{{Title: "A"}, {Title: "B"}}

	_, err := SelectConnections(nodes, [][]float64{{1}}, DefaultBand())
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = SelectConnections(nodes, [][]float64{{1, 0.5}, {0.5}}, DefaultBand())
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSelectConnectionsLeavesInputUntouched(t *testing.T) {
	nodes := []ConceptNode{{Title: "A", Keywords: []string{"x"}}, {Title: "B"}}
	matrix := [][]float64{{1, 0.6}, {0.6, 1}}

	scored, err := SelectConnections(nodes, matrix, DefaultBand())
	require.NoError(t, err)

	scored[0].Keywords[0] = "changed"
	assert.Equal(t, "x", nodes[0].Keywords[0])
}
