// Package main provides the docchat CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// envFile is the optional .env file loaded before configuration.
var envFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Retrieval-augmented question answering over local documents",
	Long: `docchat answers natural-language questions from a private document
corpus. Documents (PDF, DOCX, TXT) are split into overlapping word windows,
embedded with a local model, and indexed in a vector store; questions are
answered only from the retrieved context.

Core features:
  - HTTP API for uploads and questions (serve)
  - Bulk offline ingestion with an embeddings snapshot (ingest)
  - One-shot questions from the terminal (ask)

Models are served by a local Ollama instance; the index lives in Qdrant or
in a local SQLite file for fully offline use.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Path to .env file (missing file is ignored)")
	rootCmd.Version = Version
}
