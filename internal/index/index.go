// Package index defines the vector store contract shared by all backends.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Errors returned by vector store operations.
var (
	// ErrDimensionMismatch marks a vector whose length differs from the
	// collection's configured dimension. Such vectors are rejected before
	// any write happens.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrCollectionMismatch marks an existing collection whose configuration
	// differs from the requested dimension or metric. Silently reusing a
	// mismatched collection would corrupt search results, so it is an error.
	ErrCollectionMismatch = errors.New("collection configuration mismatch")

	// ErrUnavailable marks a store that cannot be reached.
	ErrUnavailable = errors.New("vector store unavailable")
)

// MetricCosine is the only similarity metric docchat collections use.
const MetricCosine = "Cosine"

// Payload is the non-vector metadata attached to an indexed point.
type Payload struct {
	Text     string `json:"text"`
	Filename string `json:"filename"`
	ChunkID  int    `json:"chunk_id"`
}

// Point is one indexed entry. IDs are generated fresh per point by the
// ingestion pipeline; re-ingesting the same file duplicates content.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// SearchResult is a retrieved chunk with its cosine similarity score.
type SearchResult struct {
	Text     string  `json:"text"`
	Filename string  `json:"filename"`
	Score    float32 `json:"score"`
}

// Store is a persistent nearest-neighbor store over one named collection.
type Store interface {
	// EnsureCollection creates the collection if absent. An existing
	// collection with a different dimension or metric fails with
	// ErrCollectionMismatch.
	EnsureCollection(ctx context.Context) error

	// Upsert writes points. Every vector must match the collection
	// dimension (ErrDimensionMismatch). The batch is not transactional: a
	// failure partway through may leave a prefix durably written.
	Upsert(ctx context.Context, points []Point) error

	// Search returns up to k points by descending cosine similarity.
	// An empty collection yields an empty slice, never an error.
	Search(ctx context.Context, vector []float32, k int) ([]SearchResult, error)

	// Clear destroys and recreates an empty collection with the same
	// configuration. Synchronous and irreversible.
	Clear(ctx context.Context) error
}

// ValidatePoints rejects any point whose vector length differs from dim
// before a backend writes anything.
func ValidatePoints(points []Point, dim int) error {
	for _, p := range points {
		if len(p.Vector) != dim {
			return fmt.Errorf("%w: point %s has dimension %d, collection expects %d",
				ErrDimensionMismatch, p.ID, len(p.Vector), dim)
		}
	}
	return nil
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denominator := float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB)))
	if denominator == 0 {
		return 0
	}

	return dot / denominator
}
