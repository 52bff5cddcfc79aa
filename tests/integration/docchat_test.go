// Package integration exercises the docchat binary end to end against the
// sqlite backend and a local stand-in for the model host.
package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
)

var (
	docchatBinary     string
	docchatBinaryOnce sync.Once
	docchatBinaryErr  error
)

// getDocchatBinary builds the docchat binary once and returns its path.
func getDocchatBinary(t *testing.T) string {
	t.Helper()
	docchatBinaryOnce.Do(func() {
		_, filename, _, ok := runtime.Caller(0)
		if !ok {
			docchatBinaryErr = os.ErrInvalid
			return
		}
		moduleRoot := filepath.Dir(filepath.Dir(filepath.Dir(filename)))

		tmpDir, err := os.MkdirTemp("", "docchat-test-*")
		if err != nil {
			docchatBinaryErr = err
			return
		}
		docchatBinary = filepath.Join(tmpDir, "docchat")

		cmd := exec.Command("go", "build", "-o", docchatBinary, "./cmd/docchat")
		cmd.Dir = moduleRoot
		if output, err := cmd.CombinedOutput(); err != nil {
			docchatBinaryErr = &buildError{output: string(output), err: err}
			return
		}
	})
	if docchatBinaryErr != nil {
		t.Fatalf("failed to build docchat: %v", docchatBinaryErr)
	}
	return docchatBinary
}

type buildError struct {
	output string
	err    error
}

func (e *buildError) Error() string {
	return e.err.Error() + ": " + e.output
}

const testDimension = 8

// startFakeOllama serves the two model endpoints the binary talks to.
// Embeddings are a constant unit vector so every chunk matches every query.
func startFakeOllama(t *testing.T, generation string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		vec := make([]float32, testDimension)
		vec[0] = 1
		json.NewEncoder(w).Encode(map[string]any{"embedding": vec})
	})
	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"response": generation})
	})
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// testEnv builds the child process environment pointing at a throwaway
// sqlite file, cache directory, and the fake model host.
func testEnv(t *testing.T, ollamaURL string) (env []string, workDir string) {
	t.Helper()
	workDir = t.TempDir()
	env = append(os.Environ(),
		"STORE_BACKEND=sqlite",
		"SQLITE_PATH="+filepath.Join(workDir, "docchat.db"),
		"OLLAMA_URL="+ollamaURL,
		fmt.Sprintf("EMBEDDING_DIMENSION=%d", testDimension),
		"EMBEDDINGS_CACHE_PATH="+filepath.Join(workDir, "embeddings"),
	)
	return env, workDir
}

func runDocchat(t *testing.T, env []string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(getDocchatBinary(t), args...)
	cmd.Env = env
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return string(output), fmt.Errorf("exit code %d: %s", exitErr.ExitCode(), string(exitErr.Stderr))
		}
		return string(output), err
	}
	return string(output), nil
}

type askOutput struct {
	Answer  string `json:"answer"`
	Sources []struct {
		Text     string  `json:"text"`
		Filename string  `json:"filename"`
		Score    float32 `json:"score"`
	} `json:"sources"`
}

func TestIngestAskClear(t *testing.T) {
	ollama := startFakeOllama(t, "Paris is the capital of France.")
	env, workDir := testEnv(t, ollama.URL)

	docsDir := filepath.Join(workDir, "docs")
	if err := os.MkdirAll(docsDir, 0755); err != nil {
		t.Fatal(err)
	}
	doc := "Paris is the capital of France. It lies on the Seine."
	if err := os.WriteFile(filepath.Join(docsDir, "france.txt"), []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	// Ingest the directory.
	output, err := runDocchat(t, env, "ingest", docsDir)
	if err != nil {
		t.Fatalf("ingest failed: %v\nOutput: %s", err, output)
	}

	var ingestResult struct {
		Status         string `json:"status"`
		FilesProcessed int    `json:"files_processed"`
		FilesFailed    int    `json:"files_failed"`
		ChunksIndexed  int    `json:"chunks_indexed"`
	}
	if err := json.Unmarshal([]byte(output), &ingestResult); err != nil {
		t.Fatalf("failed to parse ingest output: %v\nOutput: %s", err, output)
	}
	if ingestResult.Status != "ok" {
		t.Errorf("status = %q, want ok", ingestResult.Status)
	}
	if ingestResult.FilesProcessed != 1 || ingestResult.ChunksIndexed != 1 {
		t.Errorf("processed %d files / %d chunks, want 1/1",
			ingestResult.FilesProcessed, ingestResult.ChunksIndexed)
	}

	// The batch snapshot must exist after a successful ingest.
	cachePath := filepath.Join(workDir, "embeddings", "embeddings_cache.gob")
	if _, err := os.Stat(cachePath); err != nil {
		t.Errorf("expected embeddings snapshot at %s: %v", cachePath, err)
	}

	// Ask against the indexed corpus.
	output, err = runDocchat(t, env, "ask", "What", "is", "the", "capital", "of", "France?")
	if err != nil {
		t.Fatalf("ask failed: %v\nOutput: %s", err, output)
	}

	var answer askOutput
	if err := json.Unmarshal([]byte(output), &answer); err != nil {
		t.Fatalf("failed to parse ask output: %v\nOutput: %s", err, output)
	}
	if answer.Answer != "Paris is the capital of France." {
		t.Errorf("answer = %q", answer.Answer)
	}
	if len(answer.Sources) != 1 {
		t.Fatalf("got %d sources, want 1", len(answer.Sources))
	}
	if answer.Sources[0].Filename != "france.txt" {
		t.Errorf("source filename = %q, want france.txt", answer.Sources[0].Filename)
	}

	// Clear and confirm the index is empty again.
	output, err = runDocchat(t, env, "clear")
	if err != nil {
		t.Fatalf("clear failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "cleared") {
		t.Errorf("clear output = %q", output)
	}

	output, err = runDocchat(t, env, "ask", "anything?")
	if err != nil {
		t.Fatalf("ask after clear failed: %v\nOutput: %s", err, output)
	}
	if err := json.Unmarshal([]byte(output), &answer); err != nil {
		t.Fatalf("failed to parse ask output: %v\nOutput: %s", err, output)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("expected no sources after clear, got %d", len(answer.Sources))
	}
	if !strings.Contains(answer.Answer, "couldn't find any relevant information") {
		t.Errorf("answer = %q, want the no-results fallback", answer.Answer)
	}
}

func TestIngestSkipsUnsupportedFiles(t *testing.T) {
	ollama := startFakeOllama(t, "unused")
	env, workDir := testEnv(t, ollama.URL)

	docsDir := filepath.Join(workDir, "docs")
	if err := os.MkdirAll(docsDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(docsDir, "notes.txt"), []byte("some notes"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(docsDir, "data.csv"), []byte("a,b,c"), 0644); err != nil {
		t.Fatal(err)
	}

	output, err := runDocchat(t, env, "ingest", docsDir)
	if err != nil {
		t.Fatalf("ingest failed: %v\nOutput: %s", err, output)
	}

	var result struct {
		FilesProcessed int `json:"files_processed"`
		FilesFailed    int `json:"files_failed"`
	}
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("failed to parse ingest output: %v\nOutput: %s", err, output)
	}
	// The csv is filtered during collection, not counted as a failure.
	if result.FilesProcessed != 1 || result.FilesFailed != 0 {
		t.Errorf("processed/failed = %d/%d, want 1/0", result.FilesProcessed, result.FilesFailed)
	}
}

func TestIngestEmptyDirectoryFails(t *testing.T) {
	ollama := startFakeOllama(t, "unused")
	env, workDir := testEnv(t, ollama.URL)

	docsDir := filepath.Join(workDir, "empty")
	if err := os.MkdirAll(docsDir, 0755); err != nil {
		t.Fatal(err)
	}

	if _, err := runDocchat(t, env, "ingest", docsDir); err == nil {
		t.Fatal("expected ingest of an empty directory to fail")
	}
}
