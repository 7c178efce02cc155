package api

import (
	"context"
	"encoding/json"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/welltest/internal/editor"
	"github.com/lox/welltest/internal/metrics"
)

// maxUploadBytes bounds multipart imports.
const maxUploadBytes = 64 << 20

type Server struct {
	editor *editor.Editor
	addr   string
	tmpl   *template.Template
}

func NewServer(ed *editor.Editor, addr string) *Server {
	return &Server{
		editor: ed,
		addr:   addr,
		tmpl:   newTemplates(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "GET /{$}", s.handleIndex)
	s.handle(mux, "GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.handle(mux, "GET /api/table", s.handleTable)
	s.handle(mux, "DELETE /api/table", s.handleClear)
	s.handle(mux, "POST /api/import", s.handleImport)
	s.handle(mux, "GET /api/imports", s.handleImports)
	s.handle(mux, "PUT /api/columns", s.handleDefineColumns)
	s.handle(mux, "POST /api/columns", s.handleAddColumn)
	s.handle(mux, "DELETE /api/columns", s.handleDeleteColumns)
	s.handle(mux, "POST /api/rows", s.handleAddRow)
	s.handle(mux, "DELETE /api/rows", s.handleDeleteRows)
	s.handle(mux, "PUT /api/cells", s.handleSetCell)
	s.handle(mux, "POST /api/time-convert", s.handleTimeConvert)
	s.handle(mux, "POST /api/pressure-drop", s.handlePressureDrop)
	s.handle(mux, "GET /api/search", s.handleSearch)
	s.handle(mux, "POST /api/save", s.handleSave)
	s.handle(mux, "POST /api/load", s.handleLoad)
	s.handle(mux, "GET /api/export", s.handleExport)
	return mux
}

// handle registers h and records its latency under the route pattern.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r)
		metrics.APIRequestLatency.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("api: listening on %s", s.addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
