package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athapong/concept-graph/pkg/graph"
)

type fakeChat struct {
	content  string
	err      error
	noChoice bool
	requests []openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, request)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	if f.noChoice {
		return openai.ChatCompletionResponse{}, nil
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.content}},
		},
	}, nil
}

func TestParseNodes(t *testing.T) {
	content := "```json\n" + `{"nodes": [
		{"title": " Gravity ", "description": "Attraction between masses.", "keywords": ["force", " ", "mass"]},
		{"title": "Orbits", "description": "Curved paths."}
	]}` + "\n```"

	nodes, err := ParseNodes(content)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, graph.ConceptNode{
		Title:       "Gravity",
		Description: "Attraction between masses.",
		Keywords:    []string{"force", "mass"},
	}, nodes[0])
	assert.Equal(t, []string{}, nodes[1].Keywords)
}

func TestParseNodesErrors(t *testing.T) {
	_, err := ParseNodes("the model refused")
	assert.Error(t, err)

	_, err = ParseNodes(`{"concepts": []}`)
	assert.Error(t, err)

	nodes, err := ParseNodes(`{"nodes": []}`)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestLLMExtractorExtract(t *testing.T) {
	chat := &fakeChat{content: `{"nodes": [{"title": "Gravity", "description": "Pulls.", "keywords": ["force"]}]}`}
	e := NewLLMExtractor(chat,
		WithModel("gpt-test"),
		WithMaxInputTokens(0),
		WithKeywordExtractor(nil),
	)

	nodes, err := e.Extract(context.Background(), "# Gravity\n\nGravity pulls.")
	require.NoError(t, err)
	assert.Equal(t, []graph.ConceptNode{{Title: "Gravity", Description: "Pulls.", Keywords: []string{"force"}}}, nodes)

	require.Len(t, chat.requests, 1)
	req := chat.requests[0]
	assert.Equal(t, "gpt-test", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[1].Content, "Gravity pulls.")
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONSchema, req.ResponseFormat.Type)
	assert.Equal(t, "concept_nodes", req.ResponseFormat.JSONSchema.Name)
	assert.True(t, req.ResponseFormat.JSONSchema.Strict)
}

func TestLLMExtractorBackfillsKeywords(t *testing.T) {
	chat := &fakeChat{content: `{"nodes": [{"title": "Photosynthesis", "description": "Plants turn sunlight into chemical energy.", "keywords": []}]}`}
	e := NewLLMExtractor(chat, WithMaxInputTokens(0))

	nodes, err := e.Extract(context.Background(), "notes")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.NotEmpty(t, nodes[0].Keywords)
}

func TestLLMExtractorErrors(t *testing.T) {
	tests := []struct {
		name     string
		chat     *fakeChat
		markdown string
		want     error
	}{
		{"empty document", &fakeChat{}, "  \n", graph.ErrInvalidArgument},
		{"api failure", &fakeChat{err: errors.New("503 service unavailable")}, "notes", graph.ErrUpstreamUnavailable},
		{"no choices", &fakeChat{noChoice: true}, "notes", graph.ErrUpstreamUnavailable},
		{"malformed response", &fakeChat{content: "not json"}, "notes", graph.ErrUpstreamUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewLLMExtractor(tt.chat, WithMaxInputTokens(0), WithKeywordExtractor(nil))
			_, err := e.Extract(context.Background(), tt.markdown)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
