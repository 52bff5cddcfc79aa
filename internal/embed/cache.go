package embed

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Errors returned by cache operations.
var (
	ErrCacheNotFound      = errors.New("embeddings cache not found")
	ErrUnsupportedVersion = errors.New("unsupported cache format version")
)

const (
	// CacheFileName is the name of the embeddings snapshot file.
	CacheFileName = "embeddings_cache.gob"

	// CurrentCacheVersion is the format version for compatibility checking.
	// Increment this when making breaking changes to the cache format.
	CurrentCacheVersion = 1
)

// Cache is a wholesale-overwrite snapshot of computed embeddings, keyed by
// opaque document IDs. It exists so bulk reprocessing can skip recomputing
// vectors; it is never read by the query pipeline and is not kept in sync
// with the vector store.
type Cache struct {
	dir string
}

// Snapshot is the persisted cache payload. DocIDs[i] pairs with Vectors[i].
type Snapshot struct {
	Version   int
	ModelName string
	Dimension int
	Count     int
	CreatedAt time.Time
	DocIDs    []string
	Vectors   [][]float32
}

// NewCache creates a cache rooted at dir.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Path returns the snapshot file path.
func (c *Cache) Path() string {
	return filepath.Join(c.dir, CacheFileName)
}

// Save overwrites the snapshot wholesale. Every vector must have dimension
// dim and ids must pair one-to-one with vectors. The file is written to a
// temp path and renamed so readers never observe a partial snapshot.
func (c *Cache) Save(ids []string, vectors [][]float32, model string, dim int) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) != dim {
			return fmt.Errorf("vector %d dimension mismatch: got %d, want %d", i, len(vec), dim)
		}
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	snap := Snapshot{
		Version:   CurrentCacheVersion,
		ModelName: model,
		Dimension: dim,
		Count:     len(ids),
		CreatedAt: time.Now(),
		DocIDs:    ids,
		Vectors:   vectors,
	}

	path := c.Path()
	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	enc := gob.NewEncoder(f)
	if err := enc.Encode(snap); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("encoding cache: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}

// Load reads the snapshot from disk. Returns ErrCacheNotFound if no snapshot
// exists. Version drift or an inconsistent blob fails the whole load; there
// is no partial recovery.
func (c *Cache) Load() (*Snapshot, error) {
	f, err := os.Open(c.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCacheNotFound
		}
		return nil, fmt.Errorf("opening cache file: %w", err)
	}
	defer f.Close()

	var snap Snapshot
	dec := gob.NewDecoder(f)
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding cache: %w", err)
	}

	if snap.Version != CurrentCacheVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, snap.Version, CurrentCacheVersion)
	}
	if len(snap.DocIDs) != len(snap.Vectors) || snap.Count != len(snap.DocIDs) {
		return nil, fmt.Errorf("corrupt cache: header count %d, ids %d, vectors %d",
			snap.Count, len(snap.DocIDs), len(snap.Vectors))
	}

	return &snap, nil
}

// Exists checks if a snapshot file exists.
func (c *Cache) Exists() bool {
	_, err := os.Stat(c.Path())
	return err == nil
}
