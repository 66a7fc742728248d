package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/types"
)

const openAIURL = "https://api.openai.com/v1/chat/completions"

type OpenAIGenerator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func NewOpenAIGenerator(model string, apiKeyEnv string, directAPIKey string) (*OpenAIGenerator, error) {
	apiKey, err := resolveAPIKey(apiKeyEnv, directAPIKey)
	if err != nil {
		return nil, err
	}

	return &OpenAIGenerator{
		apiKey:  apiKey,
		model:   model,
		baseURL: openAIURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// WithBaseURL points the generator at a different endpoint.
func (g *OpenAIGenerator) WithBaseURL(url string) *OpenAIGenerator {
	g.baseURL = url
	return g
}

func (g *OpenAIGenerator) Complete(ctx context.Context, prompt string, opts map[string]any) (string, error) {
	maxTokens := 400
	if val, ok := opts["max_tokens"].(int); ok && val > 0 {
		maxTokens = val
	}

	// extraction wants deterministic output
	temperature := 0.0
	if val, ok := opts["temperature"].(float64); ok {
		temperature = val
	}

	system := DefaultSystem
	if val, ok := opts["system"].(string); ok && val != "" {
		system = val
	}

	req := openAIRequest{
		Model: g.model,
		Messages: []openAIMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens:      maxTokens,
		Temperature:    temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", g.apiKey))

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{Provider: "OpenAI", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var response openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return response.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) Model() string {
	return g.model
}

func resolveAPIKey(apiKeyEnv, directAPIKey string) (string, error) {
	// First try direct API key from config
	apiKey := directAPIKey
	if apiKey == "" && apiKeyEnv != "" {
		apiKey = os.Getenv(apiKeyEnv)
	}
	if apiKey == "" {
		return "", fmt.Errorf("API key not found in config or environment variable %s", apiKeyEnv)
	}
	return apiKey, nil
}

// Compile-time interface check
var _ types.Generator = (*OpenAIGenerator)(nil)
