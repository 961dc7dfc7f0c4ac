package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaBaseURL = "http://127.0.0.1:11434/v1"

// OllamaCompleter talks to Ollama's OpenAI-compatible endpoint and can
// release the model from memory through the native API.
type OllamaCompleter struct {
	*OpenAICompleter
	nativeURL string
	http      *http.Client
}

// NewOllamaCompleter creates a completer for a local Ollama server.
func NewOllamaCompleter(opts ProviderOptions) (*OllamaCompleter, error) {
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("ollama model is required")
	}
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = defaultOllamaBaseURL
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		opts.APIKey = "ollama"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	return &OllamaCompleter{
		OpenAICompleter: &OpenAICompleter{client: newOpenAIClient(opts), name: "ollama", model: opts.Model},
		nativeURL:       strings.TrimSuffix(base, "/v1"),
		http:            httpClient,
	}, nil
}

type ollamaKeepAliveRequest struct {
	Model     string `json:"model"`
	KeepAlive int    `json:"keep_alive"`
}

// Unload asks Ollama to evict the model by generating with keep_alive 0.
func (c *OllamaCompleter) Unload(ctx context.Context) error {
	body, err := json.Marshal(ollamaKeepAliveRequest{Model: c.model, KeepAlive: 0})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.nativeURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unload: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("ollama unload: status %s", resp.Status)
	}
	return nil
}
