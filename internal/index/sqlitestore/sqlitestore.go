// Package sqlitestore is a fully offline vector store backend on SQLite.
// Similarity is computed in-process, which is fine for the corpus sizes a
// single-node deployment indexes.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/matsen/docchat/internal/index"
	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database holding one collection of points.
type Store struct {
	db         *sql.DB
	collection string
	dimension  int
}

// Open opens or creates a SQLite store at the given path.
func Open(path, collection string, dimension int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, collection: collection, dimension: dimension}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createSchema creates the database schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL,
			metric TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS points (
			id TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			text TEXT NOT NULL,
			filename TEXT NOT NULL,
			chunk_id INTEGER NOT NULL,
			vector_json TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_points_collection ON points(collection);
	`
	_, err := db.Exec(schema)
	return err
}

// EnsureCollection registers the collection if absent. An existing row with
// a different dimension or metric fails with index.ErrCollectionMismatch.
func (s *Store) EnsureCollection(ctx context.Context) error {
	var (
		dim    int
		metric string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT dimension, metric FROM collections WHERE name = ?`, s.collection).
		Scan(&dim, &metric)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO collections (name, dimension, metric) VALUES (?, ?, ?)`,
			s.collection, s.dimension, index.MetricCosine)
		if err != nil {
			return fmt.Errorf("creating collection: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("reading collection: %w", err)
	}

	if dim != s.dimension || metric != index.MetricCosine {
		return fmt.Errorf("%w: collection %q has dimension %d metric %s, want dimension %d metric %s",
			index.ErrCollectionMismatch, s.collection, dim, metric, s.dimension, index.MetricCosine)
	}
	return nil
}

// Upsert writes points one by one; an existing ID is replaced. Writes are
// intentionally not wrapped in a transaction: a failure partway through
// leaves the already-written prefix in place, matching the store contract.
func (s *Store) Upsert(ctx context.Context, points []index.Point) error {
	if err := index.ValidatePoints(points, s.dimension); err != nil {
		return err
	}

	for _, p := range points {
		vec, err := json.Marshal(p.Vector)
		if err != nil {
			return fmt.Errorf("encoding vector for point %s: %w", p.ID, err)
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO points (id, collection, text, filename, chunk_id, vector_json)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, s.collection, p.Payload.Text, p.Payload.Filename, p.Payload.ChunkID, string(vec))
		if err != nil {
			return fmt.Errorf("upserting point %s: %w", p.ID, err)
		}
	}
	return nil
}

// Search scans the collection and scores every point with cosine similarity.
// Results are sorted by descending score with ties broken by point ID so the
// order is deterministic.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]index.SearchResult, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, collection expects %d",
			index.ErrDimensionMismatch, len(vector), s.dimension)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, filename, vector_json FROM points WHERE collection = ?`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}
	defer rows.Close()

	type scored struct {
		id     string
		result index.SearchResult
	}
	var candidates []scored

	for rows.Next() {
		var (
			id, text, filename, vecJSON string
		)
		if err := rows.Scan(&id, &text, &filename, &vecJSON); err != nil {
			return nil, fmt.Errorf("scanning point: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(vecJSON), &vec); err != nil {
			return nil, fmt.Errorf("decoding vector for point %s: %w", id, err)
		}
		candidates = append(candidates, scored{
			id: id,
			result: index.SearchResult{
				Text:     text,
				Filename: filename,
				Score:    index.CosineSimilarity(vector, vec),
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating points: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].result.Score != candidates[j].result.Score {
			return candidates[i].result.Score > candidates[j].result.Score
		}
		return candidates[i].id < candidates[j].id
	})

	if k < len(candidates) {
		candidates = candidates[:k]
	}
	results := make([]index.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, c.result)
	}
	return results, nil
}

// Clear removes every point in the collection, leaving its configuration.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM points WHERE collection = ?`, s.collection)
	if err != nil {
		return fmt.Errorf("clearing collection: %w", err)
	}
	return s.EnsureCollection(ctx)
}

var _ index.Store = (*Store)(nil)
