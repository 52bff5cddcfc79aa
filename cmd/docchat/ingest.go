package main

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/docchat/internal/extract"
)

func init() {
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Bulk-ingest documents and snapshot their embeddings",
	Long: `Bulk-ingest files or directories into the vector store.

With no arguments the configured documents directory is ingested. Supported
formats: PDF, DOCX, TXT; other files are skipped. After a successful run the
embeddings cache snapshot is overwritten wholesale so later reprocessing can
skip recomputation. Re-ingesting a file duplicates its content in the index.`,
	RunE: runIngest,
}

// IngestResult is the JSON summary printed after a bulk ingestion.
type IngestResult struct {
	Status          string            `json:"status"`
	FilesProcessed  int               `json:"files_processed"`
	FilesFailed     int               `json:"files_failed"`
	ChunksIndexed   int               `json:"chunks_indexed"`
	DurationSeconds float64           `json:"duration_seconds"`
	Failures        map[string]string `json:"failures,omitempty"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	roots := args
	if len(roots) == 0 {
		roots = []string{a.cfg.DocumentsPath}
	}

	files, err := collectFiles(roots)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no supported documents found under %v", roots)
	}

	start := time.Now()
	chunks, failures, err := a.service.IngestBatch(cmd.Context(), files)
	if err != nil {
		return err
	}

	result := IngestResult{
		Status:          "ok",
		FilesProcessed:  len(files) - len(failures),
		FilesFailed:     len(failures),
		ChunksIndexed:   chunks,
		DurationSeconds: time.Since(start).Seconds(),
	}
	if len(failures) > 0 {
		result.Status = "partial"
		result.Failures = make(map[string]string, len(failures))
		for name, ferr := range failures {
			result.Failures[name] = ferr.Error()
		}
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	if len(failures) == len(files) {
		os.Exit(ExitDataError)
	}
	return nil
}

// collectFiles reads every supported file under the given roots, keyed by
// base filename.
func collectFiles(roots []string) (map[string][]byte, error) {
	files := make(map[string][]byte)

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", root, err)
		}

		if !info.IsDir() {
			if err := addFile(files, root); err != nil {
				return nil, err
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !extract.Supported(path) {
				return nil
			}
			return addFile(files, path)
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}
	return files, nil
}

func addFile(files map[string][]byte, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	files[filepath.Base(path)] = content
	return nil
}
