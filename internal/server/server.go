// Package server exposes episode generation as MCP tools over streamable
// HTTP, next to health, metrics and audio endpoints.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/apresai/papercast/internal/bus"
	"github.com/apresai/papercast/internal/objectstore"
)

// Options configures the HTTP surface.
type Options struct {
	Name    string
	Version string
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Audio serves /audio/ from the object store when set.
	Audio objectstore.Reader
	Bus   *bus.Client
}

// Server is the MCP server for episode generation.
type Server struct {
	mcp      *mcpserver.MCPServer
	handlers *Handlers
	opts     Options
	log      *slog.Logger
}

// New registers the episode tools.
func New(handlers *Handlers, opts Options, logger *slog.Logger) *Server {
	if opts.Name == "" {
		opts.Name = "papercast"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := mcpserver.NewMCPServer(opts.Name, opts.Version,
		mcpserver.WithToolCapabilities(true),
	)

	tools := ToolDefs()
	s.AddTool(tools[0], handlers.HandleGenerateEpisode)
	s.AddTool(tools[1], handlers.HandleGenerateAudio)
	s.AddTool(tools[2], handlers.HandleGetEpisode)
	s.AddTool(tools[3], handlers.HandleListEpisodes)

	return &Server{mcp: s, handlers: handlers, opts: opts, log: logger}
}

// Handler returns the HTTP routes: /mcp, /healthz, /metrics and /audio/.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(s.mcp,
		mcpserver.WithStateLess(true),
	))
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		mux.Handle("/metrics", s.opts.Metrics)
	}
	if s.opts.Audio != nil {
		mux.HandleFunc("/audio/", s.handleAudio)
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"version": s.opts.Version,
		"tasks":   s.handlers.tasks.Running(),
	}
	code := http.StatusOK
	if s.opts.Bus != nil {
		healthy := s.opts.Bus.Healthy()
		status["bus"] = healthy
		if !healthy {
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/")
	if strings.Contains(key, "..") || !strings.HasSuffix(key, ".mp3") {
		http.NotFound(w, r)
		return
	}

	obj, err := s.opts.Audio.Get(r.Context(), key)
	if errors.Is(err, objectstore.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.log.ErrorContext(r.Context(), "read audio", "key", key, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	// Artifacts are write-once, so they never change under a key.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, obj.Body); err != nil {
		s.log.WarnContext(r.Context(), "stream audio", "key", key, "error", err)
	}
}
