package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/docchat/internal/server"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API.

Routes:
  POST /api/ask      Answer a question from the indexed corpus
  POST /api/upload   Ingest one document (multipart field "file")
  GET  /api/health   Liveness check`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	srv := server.New(a.service, a.logger)
	return srv.ListenAndServe(a.cfg.Server.Addr())
}
