// Package config reads the concept-graph settings from the environment.
package config

import (
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/athapong/concept-graph/pkg/graph"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendJSON     = "json"
	BackendPostgres = "postgres"
	BackendNeo4j    = "neo4j"
)

// LLM providers.
const (
	ProviderOpenAI   = "openai"
	ProviderDeepseek = "deepseek"
)

type Config struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string

	LLMProvider       string
	LLMModel          string
	MaxPromptTokens   int
	EmbeddingModel    string
	SimilarityMode    graph.SimilarityMode
	Band              graph.Band
	TitleWeight       float64
	DescriptionWeight float64

	StorageBackend string
	JSONStorePath  string
	DatabaseURL    string
	Neo4jURI       string
	Neo4jUser      string
	Neo4jPassword  string

	QdrantHost               string
	QdrantPort               int
	QdrantAPIKey             string
	QdrantUseTLS             bool
	EmbeddingCacheCollection string

	UploadTimeout time.Duration
	HTTPAddr      string
	EnableTools   []string
	EnableSSE     bool
}

// LoadEnvFile loads path into the environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Load reads Config from the environment and validates it.
func Load() (*Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup reads Config through lookup, which has the shape of os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	r := reader{lookup: lookup}

	cfg := &Config{
		OpenAIAPIKey:  r.str("OPENAI_API_KEY", ""),
		OpenAIBaseURL: r.str("OPENAI_BASE_URL", ""),

		LLMProvider:     strings.ToLower(r.str("LLM_PROVIDER", ProviderOpenAI)),
		LLMModel:        r.str("LLM_MODEL", "gpt-4.1-mini"),
		MaxPromptTokens: r.integer("LLM_MAX_PROMPT_TOKENS", 100000),
		EmbeddingModel:  r.str("EMBEDDING_MODEL", "text-embedding-3-small"),
		Band: graph.Band{
			Min: r.float("SIMILARITY_MIN", graph.DefaultMinSimilarity),
			Max: r.float("SIMILARITY_MAX", graph.DefaultMaxSimilarity),
		},
		TitleWeight:       r.float("SIMILARITY_TITLE_WEIGHT", graph.DefaultTitleWeight),
		DescriptionWeight: r.float("SIMILARITY_DESCRIPTION_WEIGHT", graph.DefaultDescriptionWeight),

		StorageBackend: strings.ToLower(r.str("STORAGE_BACKEND", BackendMemory)),
		JSONStorePath:  r.str("JSON_STORE_PATH", "concept_graph.json"),
		DatabaseURL:    r.str("DATABASE_URL", ""),
		Neo4jURI:       r.str("NEO4J_URI", ""),
		Neo4jUser:      r.str("NEO4J_USER", "neo4j"),
		Neo4jPassword:  r.str("NEO4J_PASSWORD", ""),

		QdrantHost:               r.str("QDRANT_HOST", ""),
		QdrantPort:               r.integer("QDRANT_PORT", 6334),
		QdrantAPIKey:             r.str("QDRANT_API_KEY", ""),
		QdrantUseTLS:             r.boolean("QDRANT_USE_TLS", true),
		EmbeddingCacheCollection: r.str("EMBEDDING_CACHE_COLLECTION", ""),

		UploadTimeout: r.duration("UPLOAD_TIMEOUT", 120*time.Second),
		HTTPAddr:      r.str("HTTP_ADDR", ":8000"),
		EnableTools:   r.list("ENABLE_TOOLS"),
		EnableSSE:     r.boolean("ENABLE_SSE", false),
	}

	mode, err := graph.ParseSimilarityMode(r.str("SIMILARITY_MODE", string(graph.ModeHybrid)))
	if err != nil {
		r.errs = append(r.errs, err)
	}
	cfg.SimilarityMode = mode

	if len(r.errs) > 0 {
		return nil, r.errs[0]
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if err := c.Band.Validate(); err != nil {
		return err
	}
	if c.TitleWeight < 0 || c.DescriptionWeight < 0 {
		return errors.Wrap(graph.ErrInvalidArgument, "similarity weights must not be negative")
	}
	if c.UploadTimeout <= 0 {
		return errors.Wrap(graph.ErrInvalidArgument, "UPLOAD_TIMEOUT must be positive")
	}
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderDeepseek:
	default:
		return errors.Wrapf(graph.ErrInvalidArgument, "unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	switch c.StorageBackend {
	case BackendMemory:
	case BackendJSON:
		if c.JSONStorePath == "" {
			return errors.Wrap(graph.ErrInvalidArgument, "JSON_STORE_PATH is required for the json backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.Wrap(graph.ErrInvalidArgument, "DATABASE_URL is required for the postgres backend")
		}
	case BackendNeo4j:
		if c.Neo4jURI == "" {
			return errors.Wrap(graph.ErrInvalidArgument, "NEO4J_URI is required for the neo4j backend")
		}
	default:
		return errors.Wrapf(graph.ErrInvalidArgument, "unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.EmbeddingCacheCollection != "" && c.QdrantHost == "" {
		return errors.Wrap(graph.ErrInvalidArgument, "QDRANT_HOST is required when EMBEDDING_CACHE_COLLECTION is set")
	}
	return nil
}

// ToolEnabled reports whether the MCP tool group name is enabled. An empty
// ENABLE_TOOLS enables everything.
func (c *Config) ToolEnabled(name string) bool {
	return len(c.EnableTools) == 0 || slices.Contains(c.EnableTools, name)
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, errors.Wrapf(graph.ErrInvalidArgument, "%s must be an integer, got %q", key, v))
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, errors.Wrapf(graph.ErrInvalidArgument, "%s must be a number, got %q", key, v))
		return def
	}
	return f
}

func (r *reader) boolean(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, errors.Wrapf(graph.ErrInvalidArgument, "%s must be a boolean, got %q", key, v))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// plain seconds
		if secs, serr := strconv.Atoi(v); serr == nil {
			return time.Duration(secs) * time.Second
		}
		r.errs = append(r.errs, errors.Wrapf(graph.ErrInvalidArgument, "%s must be a duration, got %q", key, v))
		return def
	}
	return d
}

func (r *reader) list(key string) []string {
	v := r.str(key, "")
	if v == "" {
		return nil
	}
	out := make([]string, 0)
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
