package services

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
)

// NewDeepseekClient creates a chat client for DeepSeek models. It talks to a
// local Ollama when USE_OLLAMA_DEEPSEEK=true, to OpenRouter when
// USE_OPENROUTER=true, and to the DeepSeek API otherwise.
func NewDeepseekClient() (*openai.Client, error) {
	if os.Getenv("USE_OLLAMA_DEEPSEEK") == "true" {
		return NewOpenAIClient("not-needed", "http://localhost:11434/v1"), nil
	}

	if os.Getenv("USE_OPENROUTER") == "true" {
		apiKey := os.Getenv("OPENROUTER_API_KEY")
		if apiKey == "" {
			return nil, errors.New("OPENROUTER_API_KEY environment variable is not set")
		}
		config := openai.DefaultConfig(apiKey)
		config.BaseURL = "https://openrouter.ai/api/v1"
		config.OrgID = "openrouter"
		return openai.NewClientWithConfig(config), nil
	}

	apiKey := os.Getenv("DEEPSEEK_API_KEY")
	if apiKey == "" {
		return nil, errors.New("DEEPSEEK_API_KEY environment variable is not set")
	}
	baseURL := os.Getenv("DEEPSEEK_API_BASE")
	if baseURL == "" {
		baseURL = "https://api.deepseek.com/v1"
	}
	return NewOpenAIClient(apiKey, baseURL), nil
}
