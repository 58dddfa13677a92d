package services

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/athapong/concept-graph/pkg/config"
	"github.com/athapong/concept-graph/pkg/graph"
	"github.com/athapong/concept-graph/pkg/graph/embedding"
	"github.com/athapong/concept-graph/pkg/graph/extraction"
	"github.com/athapong/concept-graph/pkg/graph/processors"
	"github.com/athapong/concept-graph/pkg/graph/storage"
)

// ConceptGraph bundles the components every surface (MCP, HTTP, CLI) needs.
type ConceptGraph struct {
	Config     *config.Config
	Pipeline   *graph.Pipeline
	Reconciler *graph.Reconciler
	Storage    graph.Storage
	// Workspaces is nil when the storage backend keeps no workspace rows.
	Workspaces graph.WorkspaceStore

	closers []func()
}

// NewConceptGraph wires storage, embedder, extractor and pipeline from cfg.
func NewConceptGraph(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*ConceptGraph, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	cg := &ConceptGraph{Config: cfg}

	store, err := cg.openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	cg.Storage = store
	if ws, ok := store.(graph.WorkspaceStore); ok {
		cg.Workspaces = ws
	}

	if cfg.OpenAIAPIKey == "" {
		cg.Close()
		return nil, errors.Wrap(graph.ErrInvalidArgument, "OPENAI_API_KEY is not set")
	}
	openaiClient := NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)

	var embedder graph.Embedder = embedding.NewOpenAIEmbedder(openaiClient, cfg.EmbeddingModel, logger)
	if cfg.EmbeddingCacheCollection != "" {
		qc, err := NewQdrantClient(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantAPIKey, cfg.QdrantUseTLS)
		if err != nil {
			cg.Close()
			return nil, graph.Unavailable(err, "embedding cache")
		}
		cg.closers = append(cg.closers, func() { qc.Close() })
		embedder = embedding.NewQdrantCache(embedder, qc, cfg.EmbeddingCacheCollection, cfg.EmbeddingModel, logger)
	}

	var chat extraction.ChatClient = openaiClient
	if cfg.LLMProvider == config.ProviderDeepseek {
		dc, err := NewDeepseekClient()
		if err != nil {
			cg.Close()
			return nil, errors.Wrap(graph.ErrInvalidArgument, err.Error())
		}
		chat = dc
	}
	extractor := extraction.NewLLMExtractor(chat,
		extraction.WithModel(cfg.LLMModel),
		extraction.WithMaxInputTokens(cfg.MaxPromptTokens),
		extraction.WithLogger(logger),
	)

	engine := graph.NewSimilarityEngine(embedder,
		graph.WithHybridWeights(cfg.TitleWeight, cfg.DescriptionWeight),
		graph.WithSimilarityLogger(logger),
	)
	cg.Reconciler = graph.NewReconciler(store, graph.WithReconcilerLogger(logger))
	cg.Pipeline = graph.NewPipeline(extractor, engine, cg.Reconciler,
		graph.WithMode(cfg.SimilarityMode),
		graph.WithBand(cfg.Band),
		graph.WithPipelineLogger(logger),
	)
	for _, p := range processors.Default() {
		cg.Pipeline.AddProcessor(p)
	}

	logger.WithFields(logrus.Fields{
		"storage":         cfg.StorageBackend,
		"llm_provider":    cfg.LLMProvider,
		"embedding_model": cfg.EmbeddingModel,
		"mode":            cfg.SimilarityMode,
	}).Info("Concept graph initialised")
	return cg, nil
}

func (cg *ConceptGraph) openStorage(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (graph.Storage, error) {
	switch cfg.StorageBackend {
	case config.BackendJSON:
		return storage.NewJSONStore(cfg.JSONStorePath)
	case config.BackendPostgres:
		s, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		cg.closers = append(cg.closers, s.Close)
		return s, nil
	case config.BackendNeo4j:
		s, err := storage.NewNeo4jStore(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			return nil, err
		}
		cg.closers = append(cg.closers, func() { s.Close() })
		return s, nil
	default:
		return storage.NewMemoryStore(), nil
	}
}

// Close releases backend connections.
func (cg *ConceptGraph) Close() {
	for i := len(cg.closers) - 1; i >= 0; i-- {
		cg.closers[i]()
	}
	cg.closers = nil
}
