// Package rag wires the ingestion and query pipelines: extraction, cleaning,
// chunking, embedding, indexing, retrieval, and answer synthesis.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/matsen/docchat/internal/chunk"
	"github.com/matsen/docchat/internal/config"
	"github.com/matsen/docchat/internal/embed"
	"github.com/matsen/docchat/internal/extract"
	"github.com/matsen/docchat/internal/index"
	"github.com/matsen/docchat/internal/llm"
)

// ErrEmptyDocument is returned when extraction yields no text. Ingestion of
// such a file aborts with no side effects.
var ErrEmptyDocument = errors.New("no text could be extracted from the file")

// NoResultsFallback is the fixed answer returned when the index holds
// nothing relevant. That case is not an error and skips generation entirely.
const NoResultsFallback = "I couldn't find any relevant information to answer your question."

// Embedder produces fixed-dimension vectors. Documents and queries use
// distinct instruction framings, so the two methods are not interchangeable.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces an answer from a fully assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Answer is a synthesized answer with the chunks that grounded it, in
// descending similarity order.
type Answer struct {
	Text    string               `json:"answer"`
	Sources []index.SearchResult `json:"sources"`
}

// Service is the application core behind both the HTTP API and the CLI.
// Collaborator handles are passed in at construction; there are no ambient
// globals.
type Service struct {
	embedder  Embedder
	generator Generator
	store     index.Store
	cache     *embed.Cache

	chunking  config.ChunkingConfig
	retrieval config.RetrievalConfig
	model     string
	dimension int
}

// New constructs the service. cache may be nil when no snapshot directory is
// configured; only bulk ingestion uses it.
func New(embedder Embedder, generator Generator, store index.Store, cache *embed.Cache, cfg *config.Config) *Service {
	return &Service{
		embedder:  embedder,
		generator: generator,
		store:     store,
		cache:     cache,
		chunking:  cfg.Chunking,
		retrieval: cfg.Retrieval,
		model:     cfg.Ollama.EmbeddingModel,
		dimension: cfg.Ollama.Dimension,
	}
}

// Ask answers a question from the indexed corpus. With zero relevant chunks
// it short-circuits to the fixed fallback and never calls the generator.
func (s *Service) Ask(ctx context.Context, question string) (Answer, error) {
	queryVec, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return Answer{}, fmt.Errorf("embedding question: %w", err)
	}

	results, err := s.store.Search(ctx, queryVec, s.retrieval.TopK)
	if err != nil {
		return Answer{}, fmt.Errorf("searching index: %w", err)
	}

	if len(results) == 0 {
		return Answer{Text: NoResultsFallback, Sources: []index.SearchResult{}}, nil
	}

	context := BuildContext(results, s.retrieval.MaxContextLength)
	prompt := BuildPrompt(context, question)

	raw, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return Answer{}, err
	}

	return Answer{Text: llm.Sanitize(raw), Sources: results}, nil
}

// chunkRecord pairs an embedded chunk with its cache ID and index point.
type chunkRecord struct {
	docID  string
	vector []float32
	point  index.Point
}

// Ingest processes one file end to end and reports how many chunks were
// indexed. Ingestion is all-or-nothing per file: any failure after
// extraction returns before a single chunk is embedded or indexed.
func (s *Service) Ingest(ctx context.Context, filename string, content []byte) (int, error) {
	records, err := s.process(ctx, filename, content)
	if err != nil {
		return 0, err
	}

	points := make([]index.Point, len(records))
	for i, r := range records {
		points[i] = r.point
	}
	if err := s.store.Upsert(ctx, points); err != nil {
		return 0, fmt.Errorf("indexing %s: %w", filename, err)
	}
	return len(records), nil
}

// IngestBatch processes several files, indexing each one independently, and
// then overwrites the embeddings cache with a snapshot of everything the
// batch embedded. A file that fails is reported and skipped; earlier files
// stay indexed (there are no cross-file transactions).
func (s *Service) IngestBatch(ctx context.Context, files map[string][]byte) (chunks int, failures map[string]error, err error) {
	failures = make(map[string]error)

	var (
		ids     []string
		vectors [][]float32
	)
	for filename, content := range files {
		records, perr := s.process(ctx, filename, content)
		if perr != nil {
			failures[filename] = perr
			continue
		}
		points := make([]index.Point, len(records))
		for i, r := range records {
			points[i] = r.point
		}
		if perr := s.store.Upsert(ctx, points); perr != nil {
			failures[filename] = fmt.Errorf("indexing %s: %w", filename, perr)
			continue
		}
		for _, r := range records {
			ids = append(ids, r.docID)
			vectors = append(vectors, r.vector)
		}
		chunks += len(records)
	}

	if s.cache != nil && len(ids) > 0 {
		if serr := s.cache.Save(ids, vectors, s.model, s.dimension); serr != nil {
			return chunks, failures, fmt.Errorf("saving embeddings cache: %w", serr)
		}
	}
	return chunks, failures, nil
}

// process runs extraction, cleaning, chunking, and embedding for one file.
// Nothing is written anywhere; the caller decides what to do with the
// records.
func (s *Service) process(ctx context.Context, filename string, content []byte) ([]chunkRecord, error) {
	raw, err := extract.Extract(content, filename)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%s: %w", filename, ErrEmptyDocument)
	}

	cleaned := chunk.Clean(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("%s: %w", filename, ErrEmptyDocument)
	}

	texts, err := chunk.Split(cleaned, s.chunking.Size, s.chunking.Overlap)
	if err != nil {
		return nil, err
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", filename, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding %s: got %d vectors for %d chunks", filename, len(vectors), len(texts))
	}

	records := make([]chunkRecord, len(texts))
	for i, text := range texts {
		records[i] = chunkRecord{
			docID:  fmt.Sprintf("%s_%d", filename, i),
			vector: vectors[i],
			point: index.Point{
				ID:     uuid.NewString(),
				Vector: vectors[i],
				Payload: index.Payload{
					Text:     text,
					Filename: filename,
					ChunkID:  i,
				},
			},
		}
	}
	return records, nil
}

// Clear empties the index collection.
func (s *Service) Clear(ctx context.Context) error {
	return s.store.Clear(ctx)
}

// IsClientError reports whether err stems from the caller's input rather
// than from infrastructure, so transports can pick a status code.
func IsClientError(err error) bool {
	return errors.Is(err, extract.ErrUnsupportedFormat) ||
		errors.Is(err, ErrEmptyDocument)
}
