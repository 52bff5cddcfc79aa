// Package embed generates vector embeddings for document chunks and
// queries, and persists snapshot caches of computed vectors.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultURL is the default Ollama API endpoint.
	DefaultURL = "http://localhost:11434"

	// DefaultTimeout is the timeout for embedding requests.
	DefaultTimeout = 60 * time.Second

	// RequestsPerSecond bounds the request rate against the model host so a
	// bulk ingestion cannot starve interactive queries.
	RequestsPerSecond = 20

	// apiPathEmbeddings is the Ollama API endpoint for generating embeddings.
	apiPathEmbeddings = "/api/embeddings"

	// apiPathTags is the Ollama API endpoint for listing models.
	apiPathTags = "/api/tags"
)

// Documents and queries are embedded with distinct instruction prefixes.
// Retrieval quality depends on this asymmetry; both sides of the pipeline
// must keep using the matching prefix.
const (
	documentPrefix = "search_document: "
	queryPrefix    = "search_query: "
)

// OllamaProvider generates embeddings using the Ollama API.
type OllamaProvider struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
	limiter   *rate.Limiter
}

// Option configures an OllamaProvider.
type Option func(*OllamaProvider)

// WithBaseURL sets the Ollama API base URL.
func WithBaseURL(url string) Option {
	return func(p *OllamaProvider) {
		p.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *OllamaProvider) {
		p.client = hc
	}
}

// NewOllamaProvider creates a provider for the given model. Every vector it
// returns is validated against dimension before callers see it.
func NewOllamaProvider(model string, dimension int, opts ...Option) *OllamaProvider {
	p := &OllamaProvider{
		baseURL:   DefaultURL,
		model:     model,
		dimension: dimension,
		client:    &http.Client{Timeout: DefaultTimeout},
		limiter:   rate.NewLimiter(rate.Limit(RequestsPerSecond), 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ModelName returns the name of the embedding model.
func (p *OllamaProvider) ModelName() string {
	return p.model
}

// Dimension returns the configured vector dimension.
func (p *OllamaProvider) Dimension() int {
	return p.dimension
}

// EmbedDocuments embeds texts for storage, preserving order.
func (p *OllamaProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := p.embed(ctx, documentPrefix+text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

// EmbedQuery embeds a user question for search.
func (p *OllamaProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, queryPrefix+text)
}

func (p *OllamaProvider) embed(ctx context.Context, prompt string) ([]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqBody := ollamaEmbedRequest{
		Model:  p.model,
		Prompt: prompt,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+apiPathEmbeddings, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, formatErrorBody(resp.Body))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(result.Embedding) != p.dimension {
		return nil, fmt.Errorf("unexpected embedding dimensions: got %d, want %d", len(result.Embedding), p.dimension)
	}

	return result.Embedding, nil
}

// IsAvailable checks if Ollama is running and accessible.
func (p *OllamaProvider) IsAvailable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+apiPathTags, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama is not running: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

// formatErrorBody reads and formats the response body for error messages.
func formatErrorBody(body io.Reader) string {
	respBody, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("(failed to read response body: %v)", err)
	}
	return string(respBody)
}

// ollamaEmbedRequest is the request body for the Ollama embeddings API.
type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// ollamaEmbedResponse is the response from the Ollama embeddings API.
type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}
