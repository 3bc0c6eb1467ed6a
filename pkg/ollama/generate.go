package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/DocsmithAI/docsmith-mvp/engine/rag"
)

// GenerateClient implements rag.Generator using Ollama's OpenAI-compatible
// completions endpoint.
type GenerateClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewGenerateClient creates an Ollama completion client.
func NewGenerateClient(baseURL, model string) *GenerateClient {
	return &GenerateClient{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{},
	}
}

type ollamaCompletionReq struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaCompletionResp struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// Generate returns the completion text for a prompt.
func (c *GenerateClient) Generate(ctx context.Context, prompt string, opts rag.GenOptions) (string, error) {
	body, _ := json.Marshal(ollamaCompletionReq{
		Model:       c.model,
		Prompt:      prompt,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stop:        opts.StopSequences,
	})
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("ollama generate: status %d", resp.StatusCode)
	}

	var result ollamaCompletionResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ollama generate decode: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("ollama generate: empty choices")
	}
	return result.Choices[0].Text, nil
}
