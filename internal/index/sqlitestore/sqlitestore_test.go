package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/matsen/docchat/internal/index"
)

func openTestStore(t *testing.T, dimension int) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), "documents", dimension)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection failed: %v", err)
	}
	return s
}

func TestStore_SearchEmptyCollection(t *testing.T) {
	s := openTestStore(t, 3)

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search on empty collection must not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty results, got %d", len(results))
	}
}

func TestStore_UpsertAndSearch(t *testing.T) {
	s := openTestStore(t, 3)
	ctx := context.Background()

	points := []index.Point{
		{ID: "id-a", Vector: []float32{1, 0, 0}, Payload: index.Payload{Text: "exact match", Filename: "a.txt", ChunkID: 0}},
		{ID: "id-b", Vector: []float32{0.9, 0.1, 0}, Payload: index.Payload{Text: "close match", Filename: "a.txt", ChunkID: 1}},
		{ID: "id-c", Vector: []float32{0, 0, 1}, Payload: index.Payload{Text: "unrelated", Filename: "b.txt", ChunkID: 0}},
	}
	if err := s.Upsert(ctx, points); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	results, err := s.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Text != "exact match" || results[1].Text != "close match" {
		t.Errorf("results out of similarity order: %+v", results)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Error("scores must be descending")
		}
	}
	if results[0].Filename != "a.txt" {
		t.Errorf("payload filename = %s, want a.txt", results[0].Filename)
	}
}

func TestStore_SearchLimitsToK(t *testing.T) {
	s := openTestStore(t, 2)
	ctx := context.Background()

	var points []index.Point
	for i := 0; i < 10; i++ {
		points = append(points, index.Point{
			ID:      string(rune('a' + i)),
			Vector:  []float32{1, float32(i) / 10},
			Payload: index.Payload{Text: "t", Filename: "f.txt", ChunkID: i},
		})
	}
	if err := s.Upsert(ctx, points); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	results, err := s.Search(ctx, []float32{1, 0}, 4)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 4 {
		t.Errorf("expected 4 results, got %d", len(results))
	}
}

func TestStore_UpsertReplacesExistingID(t *testing.T) {
	s := openTestStore(t, 2)
	ctx := context.Background()

	first := index.Point{ID: "same", Vector: []float32{1, 0}, Payload: index.Payload{Text: "old", Filename: "f.txt"}}
	if err := s.Upsert(ctx, []index.Point{first}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	second := first
	second.Payload.Text = "new"
	if err := s.Upsert(ctx, []index.Point{second}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	results, err := s.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 point after replacing, got %d", len(results))
	}
	if results[0].Text != "new" {
		t.Errorf("payload = %s, want new", results[0].Text)
	}
}

func TestStore_DimensionValidation(t *testing.T) {
	s := openTestStore(t, 3)
	ctx := context.Background()

	t.Run("upsert", func(t *testing.T) {
		err := s.Upsert(ctx, []index.Point{{ID: "x", Vector: []float32{1, 0}}})
		if !errors.Is(err, index.ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
	})

	t.Run("search", func(t *testing.T) {
		_, err := s.Search(ctx, []float32{1, 0}, 5)
		if !errors.Is(err, index.ErrDimensionMismatch) {
			t.Errorf("expected ErrDimensionMismatch, got %v", err)
		}
	})
}

func TestStore_Clear(t *testing.T) {
	s := openTestStore(t, 2)
	ctx := context.Background()

	points := []index.Point{{ID: "a", Vector: []float32{1, 0}, Payload: index.Payload{Text: "t", Filename: "f.txt"}}}
	if err := s.Upsert(ctx, points); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	results, err := s.Search(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search after Clear failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty collection after Clear, got %d results", len(results))
	}

	// The collection configuration survives a Clear.
	if err := s.Upsert(ctx, points); err != nil {
		t.Errorf("Upsert after Clear failed: %v", err)
	}
}

func TestStore_CollectionConfigMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path, "documents", 3)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection failed: %v", err)
	}
	s.Close()

	// Reopening with a different dimension must fail instead of silently
	// reusing the existing collection.
	s2, err := Open(path, "documents", 4)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s2.Close()

	err = s2.EnsureCollection(context.Background())
	if !errors.Is(err, index.ErrCollectionMismatch) {
		t.Errorf("expected ErrCollectionMismatch, got %v", err)
	}
}
