// Package server exposes the HTTP API. It is a thin transport: request
// validation and status mapping only, with the pipelines behind rag.Service.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/matsen/docchat/internal/extract"
	"github.com/matsen/docchat/internal/rag"
)

// maxUploadBytes caps the multipart form held in memory per upload.
const maxUploadBytes = 64 << 20

// Server handles the HTTP API.
type Server struct {
	service *rag.Service
	logger  *slog.Logger
}

// New creates a server around the given service.
func New(service *rag.Service, logger *slog.Logger) *Server {
	return &Server{service: service, logger: logger}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	return s.logRequests(mux)
}

// askRequest is the body of POST /api/ask.
type askRequest struct {
	Question string `json:"question"`
}

// uploadResponse is the body of a successful POST /api/upload.
type uploadResponse struct {
	Message         string `json:"message"`
	Filename        string `json:"filename"`
	ChunksProcessed int    `json:"chunks_processed"`
}

// errorResponse carries a human-readable failure message.
type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, http.StatusBadRequest, "question must not be empty")
		return
	}

	answer, err := s.service.Ask(r.Context(), req.Question)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." {
		s.writeError(w, http.StatusBadRequest, "no filename provided")
		return
	}
	// Format and size checks happen before extraction so unsupported or
	// empty uploads never touch the pipeline.
	if !extract.Supported(filename) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf(
			"unsupported file type. Allowed types: %s", strings.Join(extract.SupportedExtensions, ", ")))
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "reading upload failed")
		return
	}
	if len(content) == 0 {
		s.writeError(w, http.StatusBadRequest, "file is empty")
		return
	}

	chunks, err := s.service.Ingest(r.Context(), filename, content)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, uploadResponse{
		Message:         "Document uploaded and processed successfully",
		Filename:        filename,
		ChunksProcessed: chunks,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// writeServiceError maps pipeline failures to status codes: client-input
// problems are 400, everything else is an internal failure.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	if rag.IsClientError(err) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("request failed", "error", err)
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, errorResponse{Detail: detail})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("writing response", "error", err)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start).String(),
		)
	})
}

// ListenAndServe runs the API on addr until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("listening", "addr", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
