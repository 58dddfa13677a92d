package embedding

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/athapong/concept-graph/pkg/graph"
	"github.com/athapong/concept-graph/pkg/graph/tokenizer"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = openai.SmallEmbedding3

// Model input limit of the OpenAI embedding models.
const maxInputTokens = 8191

// maxBatch is the number of inputs sent per embeddings request.
const maxBatch = 256

// Client is the part of *openai.Client the embedder needs.
type Client interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIEmbedder embeds texts through an OpenAI-compatible embeddings API.
type OpenAIEmbedder struct {
	client    Client
	model     openai.EmbeddingModel
	truncator *tokenizer.Truncator
	logger    *logrus.Logger
}

// NewOpenAIEmbedder creates an embedder for model (DefaultModel when empty).
func NewOpenAIEmbedder(client Client, model string, logger *logrus.Logger) *OpenAIEmbedder {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	m := openai.EmbeddingModel(model)
	if model == "" {
		m = DefaultModel
	}
	return &OpenAIEmbedder{
		client:    client,
		model:     m,
		truncator: tokenizer.New(tokenizer.DefaultEncoding, logger),
		logger:    logger,
	}
}

var _ graph.Embedder = (*OpenAIEmbedder)(nil)

// Model returns the embedding model name.
func (e *OpenAIEmbedder) Model() string {
	return string(e.model)
}

// Embed returns one vector per text, in input order. Empty texts are sent as
// a single space because the API rejects empty input.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := start + maxBatch
		if end > len(texts) {
			end = len(texts)
		}

		inputs := make([]string, 0, end-start)
		for _, t := range texts[start:end] {
			if strings.TrimSpace(t) == "" {
				t = " "
			}
			t, cut := e.truncator.Truncate(t, maxInputTokens)
			if cut {
				e.logger.WithField("model", e.model).Warn("Embedding input truncated")
			}
			inputs = append(inputs, t)
		}

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: inputs,
			Model: e.model,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to generate embeddings")
		}
		if len(resp.Data) != len(inputs) {
			return nil, errors.Errorf("embeddings response has %d vectors for %d inputs", len(resp.Data), len(inputs))
		}
		for i, d := range resp.Data {
			idx := i
			// Index is relative to the request when the server sets it
			if d.Index >= 0 && d.Index < len(inputs) {
				idx = d.Index
			}
			out[start+idx] = d.Embedding
		}
	}

	e.logger.WithFields(logrus.Fields{
		"model": e.model,
		"texts": len(texts),
	}).Debug("Generated embeddings")
	return out, nil
}
