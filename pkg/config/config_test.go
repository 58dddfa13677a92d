package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athapong/concept-graph/pkg/graph"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.StorageBackend)
	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, graph.ModeHybrid, cfg.SimilarityMode)
	assert.Equal(t, graph.DefaultMinSimilarity, cfg.Band.Min)
	assert.Equal(t, graph.DefaultMaxSimilarity, cfg.Band.Max)
	assert.Equal(t, 120*time.Second, cfg.UploadTimeout)
	assert.True(t, cfg.QdrantUseTLS)
	assert.Nil(t, cfg.EnableTools)
}

func TestOverrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"SIMILARITY_MODE": "title",
		"SIMILARITY_MIN":  "0.3",
		"SIMILARITY_MAX":  " 0.9 ",
		"STORAGE_BACKEND": "JSON",
		"JSON_STORE_PATH": "/tmp/graph.json",
		"UPLOAD_TIMEOUT":  "30",
		"ENABLE_TOOLS":    "concept_graph, fetch,,",
		"LLM_PROVIDER":    "deepseek",
	}))
	require.NoError(t, err)

	assert.Equal(t, graph.ModeTitle, cfg.SimilarityMode)
	assert.Equal(t, graph.Band{Min: 0.3, Max: 0.9}, cfg.Band)
	assert.Equal(t, BackendJSON, cfg.StorageBackend)
	assert.Equal(t, 30*time.Second, cfg.UploadTimeout)
	assert.Equal(t, []string{"concept_graph", "fetch"}, cfg.EnableTools)
	assert.True(t, cfg.ToolEnabled("fetch"))
	assert.False(t, cfg.ToolEnabled("tool_manager"))
}

func TestInvalidConfig(t *testing.T) {
	tests := map[string]map[string]string{
		"inverted band":        {"SIMILARITY_MIN": "0.9", "SIMILARITY_MAX": "0.2"},
		"not a number":         {"SIMILARITY_MIN": "low"},
		"unknown mode":         {"SIMILARITY_MODE": "semantic"},
		"negative weight":      {"SIMILARITY_TITLE_WEIGHT": "-1"},
		"bad duration":         {"UPLOAD_TIMEOUT": "soon"},
		"zero timeout":         {"UPLOAD_TIMEOUT": "0s"},
		"unknown provider":     {"LLM_PROVIDER": "llama"},
		"unknown backend":      {"STORAGE_BACKEND": "sqlite"},
		"postgres without url": {"STORAGE_BACKEND": "postgres"},
		"neo4j without uri":    {"STORAGE_BACKEND": "neo4j"},
		"cache without qdrant": {"EMBEDDING_CACHE_COLLECTION": "embeddings"},
		"bad bool":             {"QDRANT_USE_TLS": "maybe"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromLookup(lookupFrom(env))
			assert.ErrorIs(t, err, graph.ErrInvalidArgument)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, LoadEnvFile(""))
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CONCEPT_GRAPH_TEST_KEY=from-file\n"), 0644))
	t.Setenv("CONCEPT_GRAPH_TEST_KEY", "")
	os.Unsetenv("CONCEPT_GRAPH_TEST_KEY")

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("CONCEPT_GRAPH_TEST_KEY"))
}
