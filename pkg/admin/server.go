// Package admin serves the operational HTTP endpoints of a fieldgate instance.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"fieldgate/pkg/engine"
	"fieldgate/pkg/lookup"
	"fieldgate/pkg/xlog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Server exposes /healthz, /metrics and /fields.
type Server struct {
	addr     string
	pipeline *engine.Pipeline
	buffer   *engine.RingBuffer
	lookups  *lookup.Interpolator
	logger   zerolog.Logger
	router   chi.Router
}

// FieldView is the /fields representation of one static field.
type FieldView struct {
	Processor   string `json:"processor"`
	Name        string `json:"name"`
	HasName     bool   `json:"has_name"`
	Value       string `json:"value"`
	NeedsLookup bool   `json:"needs_lookup"`
	Display     string `json:"display"`
}

// NewServer creates the admin server. lookups may be nil.
func NewServer(addr string, pipeline *engine.Pipeline, buffer *engine.RingBuffer, lookups *lookup.Interpolator) *Server {
	s := &Server{
		addr:     addr,
		pipeline: pipeline,
		buffer:   buffer,
		lookups:  lookups,
		logger:   xlog.WithComponent(xlog.ComponentAdmin),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/fields", s.handleFields)
	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str(xlog.FieldEvent, "admin.started").Str(xlog.FieldAddr, s.addr).Msg("admin server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin shutdown: %w", err)
	}
	return nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str(xlog.FieldEvent, "admin.request").
			Str("method", r.Method).
			Str(xlog.FieldPath, r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resolvers := []string{}
	if s.lookups != nil {
		resolvers = s.lookups.Resolvers()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resolvers":  resolvers,
		"status":     "ok",
		"processors": s.pipeline.Chain().Names(),
		"batch_size": s.pipeline.BatchSize(),
		"buffer": map[string]uint64{
			"usage":    s.buffer.Usage(),
			"capacity": s.buffer.Capacity(),
			"dropped":  s.buffer.DroppedCount(),
		},
	})
}

// handleFields lists the static fields of the active chain in chain order.
func (s *Server) handleFields(w http.ResponseWriter, _ *http.Request) {
	views := make([]FieldView, 0)
	for _, p := range s.pipeline.Chain().Processors() {
		fs, ok := p.(engine.FieldSource)
		if !ok {
			continue
		}
		for _, f := range fs.Fields() {
			name, ok := f.Name()
			views = append(views, FieldView{
				Processor:   fs.Name(),
				Name:        name,
				HasName:     ok,
				Value:       f.Value(),
				NeedsLookup: f.NeedsLookup(),
				Display:     f.String(),
			})
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // best-effort write; the client may have gone away
	json.NewEncoder(w).Encode(v)
}
