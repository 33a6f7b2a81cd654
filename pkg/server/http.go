// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes the question pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/nl2sql/pkg/response"
	"github.com/teradata-labs/nl2sql/pkg/tokens"
)

const (
	// ServiceName is reported by /health.
	ServiceName = "nl2sql-agent"

	// RequestIDHeader carries the request id in and out.
	RequestIDHeader = "X-Request-ID"

	maxBodyBytes = 1 << 20
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	Enabled        bool
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// DefaultCORSConfig returns a permissive CORS configuration
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         86400,
	}
}

// Config configures the HTTP server.
type Config struct {
	Addr            string
	CORS            CORSConfig
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
}

// HTTPServer serves /ask, /health and the /tokens endpoints.
type HTTPServer struct {
	service    *Service
	httpServer *http.Server
	corsConfig CORSConfig
	logger     *zap.Logger
	shutdown   time.Duration
}

// NewHTTPServer creates an HTTP server for service.
func NewHTTPServer(service *Service, cfg Config) *HTTPServer {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	h := &HTTPServer{
		service:    service,
		corsConfig: cfg.CORS,
		logger:     cfg.Logger,
		shutdown:   cfg.ShutdownTimeout,
	}
	h.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return h
}

// Handler returns the routed handler with middleware applied.
func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /ask", h.handleAsk)
	mux.HandleFunc("GET /tokens/stats", h.handleTokenStats)
	mux.HandleFunc("GET /tokens/suggestions", h.handleTokenSuggestions)
	mux.HandleFunc("GET /tokens/export", h.handleTokenExport)
	mux.HandleFunc("POST /tokens/reset", h.handleTokenReset)

	var handler http.Handler = mux
	if h.corsConfig.Enabled {
		handler = h.corsMiddleware(handler)
	}
	return h.recoverMiddleware(handler)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (h *HTTPServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("Starting HTTP server", zap.String("addr", h.httpServer.Addr))
		if err := h.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdown)
	defer cancel()
	if err := h.Stop(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server")
	return h.httpServer.Shutdown(ctx)
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": ServiceName,
	})
}

func (h *HTTPServer) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req response.AskRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	requestID := r.Header.Get(RequestIDHeader)
	resp, err := h.service.Ask(r.Context(), req, requestID)
	if err != nil {
		if errors.Is(err, response.ErrEmptyQuestion) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Error processing your question: "+err.Error())
		return
	}

	if id, ok := resp.Metadata["request_id"].(string); ok {
		w.Header().Set(RequestIDHeader, id)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPServer) handleTokenStats(w http.ResponseWriter, _ *http.Request) {
	acc := h.accountant(w)
	if acc == nil {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_stats": acc.Stats(),
		"pricing":       acc.Pricing(),
	})
}

func (h *HTTPServer) handleTokenSuggestions(w http.ResponseWriter, _ *http.Request) {
	acc := h.accountant(w)
	if acc == nil {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions": acc.Suggestions(),
	})
}

func (h *HTTPServer) handleTokenExport(w http.ResponseWriter, r *http.Request) {
	acc := h.accountant(w)
	if acc == nil {
		return
	}
	format := r.URL.Query().Get("format")
	body, err := acc.Export().Marshal(format)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	contentType := "application/json"
	if format == tokens.FormatYAML || format == "yml" {
		contentType = "application/yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *HTTPServer) handleTokenReset(w http.ResponseWriter, _ *http.Request) {
	acc := h.accountant(w)
	if acc == nil {
		return
	}
	acc.Reset()
	h.logger.Info("token statistics reset")
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Token statistics reset",
	})
}

func (h *HTTPServer) accountant(w http.ResponseWriter) *tokens.Accountant {
	if h.service == nil || h.service.Accountant() == nil {
		h.writeError(w, http.StatusServiceUnavailable, "token accounting is not enabled")
		return nil
	}
	return h.service.Accountant()
}

// recoverMiddleware turns handler panics into 500 responses.
func (h *HTTPServer) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("handler panic",
					zap.String("path", r.URL.Path),
					zap.String("panic", fmt.Sprint(rec)))
				h.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers to HTTP responses
func (h *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowed := h.getAllowedOrigin(r.Header.Get("Origin")); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
		}
		if len(h.corsConfig.AllowedMethods) > 0 {
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(h.corsConfig.AllowedMethods, ", "))
		}
		if len(h.corsConfig.AllowedHeaders) > 0 {
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(h.corsConfig.AllowedHeaders, ", "))
		}
		w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)
		if h.corsConfig.MaxAge > 0 {
			w.Header().Set("Access-Control-Max-Age", strconv.Itoa(h.corsConfig.MaxAge))
		}

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getAllowedOrigin checks if the origin is allowed and returns it, or empty string if not
func (h *HTTPServer) getAllowedOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	for _, allowed := range h.corsConfig.AllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if allowed == origin {
			return origin
		}
	}
	return ""
}

// writeJSON encodes v before writing the status, so an unencodable value
// becomes a 500 instead of an empty 200.
func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to encode response", zap.Int("status", status), zap.Error(err))
		status = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]string{"detail": "failed to encode response"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func (h *HTTPServer) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"detail": detail})
}
