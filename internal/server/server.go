package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/strata/internal/registry"
	"github.com/HerbHall/strata/internal/version"
	"github.com/HerbHall/strata/pkg/plugin"
)

// Options configures a Server.
type Options struct {
	Addr string

	// Registry is the sealed plugin registry served by the admin API and
	// whose routes are mounted.
	Registry *registry.Registry

	// Host is passed to plugin handlers and policies.
	Host plugin.Host

	// Metrics serves /metrics when set.
	Metrics http.Handler

	Logger *zap.Logger
}

// Server is the strata HTTP server: the admin API plus every plugin route.
type Server struct {
	httpServer *http.Server
	registry   *registry.Registry
	host       plugin.Host
	logger     *zap.Logger
	mux        *http.ServeMux
}

// New creates a new Server instance.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.New(logger)
	}
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		registry: reg,
		host:     opts.Host,
		logger:   logger.Named("server"),
		mux:      mux,
	}

	s.registerCoreRoutes()
	if opts.Metrics != nil {
		s.mux.Handle("GET /metrics", opts.Metrics)
	}
	s.mountPluginRoutes()

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// registerCoreRoutes sets up routes that are always available.
func (s *Server) registerCoreRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/plugins", s.handlePlugins)
	s.mux.HandleFunc("GET /api/v1/plugins/{name}", s.handlePlugin)
	s.mux.HandleFunc("GET /api/v1/plugins/{name}/content-types", s.handleContentTypes)
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Strata-Version", version.Short())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "strata",
		"version": version.Map(),
		"plugins": s.registry.Len(),
	})
}

type pluginSummary struct {
	Name         string   `json:"name"`
	Routes       int      `json:"routes"`
	ContentTypes []string `json:"contentTypes"`
}

type pluginDetail struct {
	Name         string         `json:"name"`
	Config       map[string]any `json:"config"`
	Routes       []plugin.Route `json:"routes"`
	Controllers  []string       `json:"controllers"`
	Services     []string       `json:"services"`
	Policies     []string       `json:"policies"`
	Middlewares  []string       `json:"middlewares"`
	ContentTypes []string       `json:"contentTypes"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// handlePlugins returns the list of registered plugins.
func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	names := s.registry.Names()
	info := make([]pluginSummary, 0, len(names))
	for _, name := range names {
		p, _ := s.registry.Get(name)
		info = append(info, pluginSummary{
			Name:         name,
			Routes:       len(p.Routes),
			ContentTypes: sortedKeys(p.ContentTypes),
		})
	}
	writeJSON(w, http.StatusOK, info)
}

// handlePlugin returns one plugin's resolved shape.
func (s *Server) handlePlugin(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	p, ok := s.registry.Get(name)
	if !ok {
		NotFound(w, fmt.Sprintf("plugin %q is not registered", name), r.URL.Path)
		return
	}
	routes := p.Routes
	if routes == nil {
		routes = []plugin.Route{}
	}
	writeJSON(w, http.StatusOK, pluginDetail{
		Name:         name,
		Config:       p.Config,
		Routes:       routes,
		Controllers:  sortedKeys(p.Controllers),
		Services:     sortedKeys(p.Services),
		Policies:     sortedKeys(p.Policies),
		Middlewares:  sortedKeys(p.Middlewares),
		ContentTypes: sortedKeys(p.ContentTypes),
		Extra:        p.Extra,
	})
}

// handleContentTypes returns the schemas of one plugin's content types.
func (s *Server) handleContentTypes(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	p, ok := s.registry.Get(name)
	if !ok {
		NotFound(w, fmt.Sprintf("plugin %q is not registered", name), r.URL.Path)
		return
	}
	out := make(map[string]any, len(p.ContentTypes))
	for ct, v := range p.ContentTypes {
		if v != nil {
			out[ct] = v.Schema
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
