// Package qdrant is a minimal REST client to a Qdrant vector store.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/matsen/docchat/internal/index"
)

// DefaultTimeout is the timeout for store requests.
const DefaultTimeout = 15 * time.Second

// Store talks to one Qdrant collection over HTTP.
type Store struct {
	baseURL    string
	collection string
	dimension  int
	client     *http.Client
}

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Store) {
		s.client = hc
	}
}

// New creates a store for the collection at baseURL (http://host:port).
func New(baseURL, collection string, dimension int, opts ...Option) *Store {
	s := &Store{
		baseURL:    baseURL,
		collection: collection,
		dimension:  dimension,
		client:     &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.baseURL, s.collection)
}

// EnsureCollection creates the collection if it does not exist. If it does
// exist, its dimension and metric are checked against the configuration and
// a mismatch fails with index.ErrCollectionMismatch.
func (s *Store) EnsureCollection(ctx context.Context) error {
	info, status, err := s.getCollectionInfo(ctx)
	if err != nil {
		return err
	}

	if status == http.StatusNotFound {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     s.dimension,
				"distance": index.MetricCosine,
			},
		}
		return s.doJSON(ctx, http.MethodPut, s.collectionURL(), body, nil)
	}

	size := info.Result.Config.Params.Vectors.Size
	distance := info.Result.Config.Params.Vectors.Distance
	if size != s.dimension || distance != index.MetricCosine {
		return fmt.Errorf("%w: collection %q has size %d distance %s, want size %d distance %s",
			index.ErrCollectionMismatch, s.collection, size, distance, s.dimension, index.MetricCosine)
	}
	return nil
}

// Upsert writes points with wait=true so the write is durable on return.
// The batch is not transactional on the Qdrant side.
func (s *Store) Upsert(ctx context.Context, points []index.Point) error {
	if err := index.ValidatePoints(points, s.dimension); err != nil {
		return err
	}

	reqPoints := make([]qdrantPoint, len(points))
	for i, p := range points {
		reqPoints[i] = qdrantPoint{
			ID:      p.ID,
			Vector:  p.Vector,
			Payload: p.Payload,
		}
	}
	body := map[string]any{"points": reqPoints}
	return s.doJSON(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", body, nil)
}

// Search returns up to k results by descending cosine similarity. Qdrant
// returns an empty result set for an empty collection.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]index.SearchResult, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, collection expects %d",
			index.ErrDimensionMismatch, len(vector), s.dimension)
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float32       `json:"score"`
			Payload index.Payload `json:"payload"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionURL()+"/points/search", body, &resp); err != nil {
		return nil, err
	}

	results := make([]index.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, index.SearchResult{
			Text:     r.Payload.Text,
			Filename: r.Payload.Filename,
			Score:    r.Score,
		})
	}
	return results, nil
}

// Clear drops the collection and recreates it empty.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.doJSON(ctx, http.MethodDelete, s.collectionURL(), nil, nil); err != nil {
		return err
	}
	return s.EnsureCollection(ctx)
}

// collectionInfo is the subset of Qdrant's collection info we validate.
type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// getCollectionInfo fetches collection metadata. A 404 is not an error; the
// status code is returned so EnsureCollection can distinguish absence.
func (s *Store) getCollectionInfo(ctx context.Context) (*collectionInfo, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.collectionURL(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", index.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, http.StatusNotFound, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("qdrant GET %s failed: %s", s.collectionURL(), resp.Status)
	}

	var info collectionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decoding collection info: %w", err)
	}
	return &info, resp.StatusCode, nil
}

func (s *Store) doJSON(ctx context.Context, method, url string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", index.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// qdrantPoint is the wire form of an upserted point.
type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector"`
	Payload index.Payload `json:"payload"`
}

var _ index.Store = (*Store)(nil)
