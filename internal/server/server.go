// Package server exposes a sprite registry over a read-only JSON API.
//
// Routes:
//
//	GET /healthz               liveness and sprite count
//	GET /sprites               canvas and every sprite in ID order
//	GET /sprites/{name}        one sprite, falling back to "unknown"
//	GET /ids/{id}/transform    the transform for an ID, as TransformFor
//
// Sprite names may contain slashes, so /sprites matches the rest of the
// path as the name.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/atlaspack/pkg/observability"
	"github.com/matzehuels/atlaspack/pkg/sprite"
)

// ShutdownTimeout bounds how long in-flight requests may finish after the
// serve context is cancelled.
const ShutdownTimeout = 5 * time.Second

// Server serves one immutable registry.
type Server struct {
	reg    *sprite.Registry
	logger *log.Logger
	router chi.Router
}

// SpriteJSON is the wire form of a sprite.
type SpriteJSON struct {
	ID        sprite.ID   `json:"id"`
	Name      string      `json:"name"`
	Layer     uint32      `json:"layer"`
	Transform sprite.Mat3 `json:"transform"`
	Fallback  bool        `json:"fallback,omitempty"`
}

// CanvasJSON is the wire form of the atlas canvas.
type CanvasJSON struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
	Layers uint32 `json:"layers"`
}

// ListJSON is the body of GET /sprites.
type ListJSON struct {
	Canvas  CanvasJSON   `json:"canvas"`
	Sprites []SpriteJSON `json:"sprites"`
}

// TransformJSON is the body of GET /ids/{id}/transform.
type TransformJSON struct {
	ID        sprite.ID   `json:"id"`
	Transform sprite.Mat3 `json:"transform"`
	Fallback  bool        `json:"fallback,omitempty"`
}

type errorJSON struct {
	Error string `json:"error"`
}

// New creates a server for reg. A nil logger discards request logs.
func New(reg *sprite.Registry, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	s := &Server{reg: reg, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Get("/healthz", s.health)
	r.Get("/sprites", s.list)
	r.Get("/sprites/*", s.sprite)
	r.Get("/ids/{id}/transform", s.transform)
	s.router = r
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("serving sprites", "addr", addr, "sprites", s.reg.Len())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sprites": s.reg.Len()})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	c := s.reg.Canvas()
	body := ListJSON{
		Canvas:  CanvasJSON{Width: c.Width, Height: c.Height, Layers: c.Layers},
		Sprites: make([]SpriteJSON, 0, s.reg.Len()),
	}
	for _, sp := range s.reg.Sprites() {
		body.Sprites = append(body.Sprites, toJSON(sp, false))
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) sprite(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if name == "" {
		writeError(w, http.StatusBadRequest, "sprite name is required")
		return
	}
	sp, found := s.reg.Resolve(name)
	if !found {
		s.logger.Debug("sprite not found, serving fallback", "name", name)
	}
	writeJSON(w, http.StatusOK, toJSON(sp, !found))
}

func (s *Server) transform(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sprite id "+strconv.Quote(raw))
		return
	}
	id := sprite.ID(n)
	_, found := s.reg.Sprite(id)
	writeJSON(w, http.StatusOK, TransformJSON{
		ID:        id,
		Transform: s.reg.TransformFor(id),
		Fallback:  !found,
	})
}

// observe reports each request to the HTTP hooks and logs it at debug.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		observability.HTTP().OnRequest(r.Context(), r.Method, r.URL.Path)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		dur := time.Since(start)
		observability.HTTP().OnResponse(r.Context(), r.Method, route, status, dur)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", status, "duration", dur)
	})
}

func toJSON(sp sprite.Sprite, fallback bool) SpriteJSON {
	return SpriteJSON{
		ID:        sp.ID,
		Name:      sp.Name,
		Layer:     sp.Layer,
		Transform: sp.Transform,
		Fallback:  fallback,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorJSON{Error: msg})
}
