package extraction

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/athapong/concept-graph/pkg/graph"
	"github.com/athapong/concept-graph/pkg/graph/tokenizer"
)

// DefaultModel is the chat model used for extraction.
const DefaultModel = "gpt-4.1-mini"

// ChatClient is the part of *openai.Client the extractor needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLMExtractor asks a chat model for the concept nodes of a markdown document
// and back-fills missing keywords with TextRank.
type LLMExtractor struct {
	client         ChatClient
	model          string
	maxInputTokens int
	truncator      *tokenizer.Truncator
	keywords       *KeywordExtractor
	logger         *logrus.Logger
}

// Option configures an LLMExtractor.
type Option func(*LLMExtractor)

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(e *LLMExtractor) {
		if model != "" {
			e.model = model
		}
	}
}

// WithMaxInputTokens caps the markdown sent to the model. Zero disables the cap.
func WithMaxInputTokens(n int) Option {
	return func(e *LLMExtractor) {
		e.maxInputTokens = n
	}
}

// WithKeywordExtractor replaces the keyword back-fill; nil disables it.
func WithKeywordExtractor(k *KeywordExtractor) Option {
	return func(e *LLMExtractor) {
		e.keywords = k
	}
}

// WithLogger sets the extractor logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(e *LLMExtractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewLLMExtractor creates an extractor around client.
func NewLLMExtractor(client ChatClient, opts ...Option) *LLMExtractor {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	e := &LLMExtractor{
		client:         client,
		model:          DefaultModel,
		maxInputTokens: 100000,
		keywords:       NewKeywordExtractor(5),
		logger:         logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.truncator = tokenizer.New(tokenizer.DefaultEncoding, e.logger)
	return e
}

var _ graph.Extractor = (*LLMExtractor)(nil)

// Extract returns the concept candidates of markdown. Candidates are returned
// as the model produced them; validation happens in the pipeline.
func (e *LLMExtractor) Extract(ctx context.Context, markdown string) ([]graph.ConceptNode, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, errors.Wrap(graph.ErrInvalidArgument, "document has no text to extract from")
	}

	notes, truncated := e.truncator.Truncate(markdown, e.maxInputTokens)
	if truncated {
		e.logger.WithField("max_tokens", e.maxInputTokens).Warn("Notes truncated before extraction")
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(notes)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "concept_nodes",
				Schema: conceptNodesSchema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return nil, graph.Unavailable(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return nil, graph.Unavailable(errors.New("no choices returned"), "chat completion failed")
	}

	nodes, err := ParseNodes(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, graph.Unavailable(err, "unusable extraction response")
	}

	if e.keywords != nil {
		for i := range nodes {
			if len(nodes[i].Keywords) > 0 {
				continue
			}
			kw, err := e.keywords.Keywords(nodes[i].Title + ". " + nodes[i].Description)
			if err != nil {
				e.logger.WithError(err).WithField("title", nodes[i].Title).Warn("Keyword back-fill failed")
				continue
			}
			nodes[i].Keywords = kw
		}
	}

	e.logger.WithFields(logrus.Fields{
		"model": e.model,
		"nodes": len(nodes),
	}).Info("Extracted concept nodes")
	return nodes, nil
}

// ParseNodes reads the {"nodes": [...]} object returned by the model.
// Code fences around the JSON are tolerated.
func ParseNodes(content string) ([]graph.ConceptNode, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	if !gjson.Valid(content) {
		return nil, errors.New("response is not valid JSON")
	}
	list := gjson.Get(content, "nodes")
	if !list.IsArray() {
		return nil, errors.New(`response has no "nodes" array`)
	}

	nodes := make([]graph.ConceptNode, 0, len(list.Array()))
	list.ForEach(func(_, value gjson.Result) bool {
		keywords := []string{}
		value.Get("keywords").ForEach(func(_, kw gjson.Result) bool {
			if s := strings.TrimSpace(kw.String()); s != "" {
				keywords = append(keywords, s)
			}
			return true
		})
		nodes = append(nodes, graph.ConceptNode{
			Title:       strings.TrimSpace(value.Get("title").String()),
			Description: strings.TrimSpace(value.Get("description").String()),
			Keywords:    keywords,
		})
		return true
	})
	return nodes, nil
}

var conceptNodesSchema = &jsonschema.Definition{
	Type:                 jsonschema.Object,
	AdditionalProperties: false,
	Required:             []string{"nodes"},
	Properties: map[string]jsonschema.Definition{
		"nodes": {
			Type:        jsonschema.Array,
			Description: "Every concept node found in the notes. Do not include concepts the notes do not mention.",
			Items: &jsonschema.Definition{
				Type:                 jsonschema.Object,
				AdditionalProperties: false,
				Required:             []string{"title", "description", "keywords"},
				Properties: map[string]jsonschema.Definition{
					"title": {
						Type:        jsonschema.String,
						Description: "Short name of the concept exactly as written in the notes, e.g. 'Napoleon'.",
					},
					"description": {
						Type:        jsonschema.String,
						Description: "Short paragraph describing the concept, based on the notes.",
					},
					"keywords": {
						Type:        jsonschema.Array,
						Description: "Short list of keywords describing the concept.",
						Items:       &jsonschema.Definition{Type: jsonschema.String},
					},
				},
			},
		},
	},
}
