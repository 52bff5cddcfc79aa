// Package llm generates answers with a local model host and sanitizes its
// output before it reaches callers.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout is the timeout for generation requests. Generation on CPU
// can be slow, so this is deliberately generous.
const DefaultTimeout = 5 * time.Minute

// apiPathGenerate is the Ollama API endpoint for text generation.
const apiPathGenerate = "/api/generate"

// GenerationError wraps a failure of the generation service.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Options are decoding parameters for one generation call.
type Options struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// OllamaGenerator produces completions using the Ollama API.
type OllamaGenerator struct {
	baseURL string
	model   string
	options Options
	client  *http.Client
}

// Option configures an OllamaGenerator.
type Option func(*OllamaGenerator)

// WithBaseURL sets the Ollama API base URL.
func WithBaseURL(url string) Option {
	return func(g *OllamaGenerator) {
		g.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *OllamaGenerator) {
		g.client = hc
	}
}

// NewOllamaGenerator creates a generator for the given model and decoding
// options.
func NewOllamaGenerator(baseURL, model string, options Options, opts ...Option) *OllamaGenerator {
	g := &OllamaGenerator{
		baseURL: baseURL,
		model:   model,
		options: options,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ModelName returns the name of the generation model.
func (g *OllamaGenerator) ModelName() string {
	return g.model
}

// Generate runs one non-streaming completion. Once started it runs to
// completion or failure; there are no retries here.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := ollamaGenerateRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: false,
		Options: ollamaModelOptions{
			Temperature: g.options.Temperature,
			TopP:        g.options.TopP,
			NumPredict:  g.options.MaxTokens,
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", &GenerationError{Err: fmt.Errorf("marshaling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+apiPathGenerate, bytes.NewReader(body))
	if err != nil {
		return "", &GenerationError{Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &GenerationError{Err: fmt.Errorf("sending request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &GenerationError{Err: fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, formatErrorBody(resp.Body))}
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &GenerationError{Err: fmt.Errorf("decoding response: %w", err)}
	}

	return result.Response, nil
}

// formatErrorBody reads and formats the response body for error messages.
func formatErrorBody(body io.Reader) string {
	respBody, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("(failed to read response body: %v)", err)
	}
	return string(respBody)
}

// ollamaGenerateRequest is the request body for the Ollama generate API.
type ollamaGenerateRequest struct {
	Model   string             `json:"model"`
	Prompt  string             `json:"prompt"`
	Stream  bool               `json:"stream"`
	Options ollamaModelOptions `json:"options"`
}

// ollamaModelOptions are the decoding parameters Ollama understands.
type ollamaModelOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

// ollamaGenerateResponse is the non-streaming generate response.
type ollamaGenerateResponse struct {
	Response string `json:"response"`
}
