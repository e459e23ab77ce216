// Package server exposes loaded modules, discovered agents, and live
// interactive sessions over HTTP. REST endpoints cover listing and
// inspection; /ws/session speaks the interactive envelope over
// WebSocket. Nothing is persisted: a session exists for as long as the
// connection that started it.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dojoai/dojo/internal/agent"
	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/engine"
	"github.com/dojoai/dojo/internal/parser"
	"github.com/dojoai/dojo/internal/provider"
	"github.com/dojoai/dojo/internal/session"
)

// Config holds the server configuration.
type Config struct {
	Host        string
	Port        int
	MaxSessions int

	EnableMetrics bool
	EnableCORS    bool

	// ModuleFiles and ModuleDir select the modules served. AgentDirs
	// overrides the default agent spec search path.
	ModuleFiles []string
	ModuleDir   string
	AgentDirs   []string

	// Providers backs llm-prompt agents. Nil leaves only the
	// self-contained kinds (scripted, http-endpoint, command) startable.
	Providers *provider.Registry

	// Sliding-window request budgets per client IP. Zero values for
	// all three disable rate limiting.
	RequestsPerMinute    int
	RequestsPerHour      int
	SessionStartsPerHour int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:                 "localhost",
		Port:                 8080,
		MaxSessions:          session.DefaultMaxSessions,
		EnableMetrics:        true,
		EnableCORS:           true,
		RequestsPerMinute:    60,
		RequestsPerHour:      500,
		SessionStartsPerHour: 20,
		ReadTimeout:          15 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		ShutdownTimeout:      30 * time.Second,
	}
}

// ModuleRegistry holds the modules loaded at startup, keyed by module id.
type ModuleRegistry struct {
	modules map[string]*ast.Module
	mu      sync.RWMutex
}

// NewModuleRegistry creates an empty module registry.
func NewModuleRegistry() *ModuleRegistry {
	return &ModuleRegistry{
		modules: make(map[string]*ast.Module),
	}
}

// Register adds a module under its own id, replacing any previous one.
func (r *ModuleRegistry) Register(m *ast.Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.ID] = m
}

// Get retrieves a module by id.
func (r *ModuleRegistry) Get(id string) (*ast.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, exists := r.modules[id]
	return m, exists
}

// List returns the registered module ids, sorted.
func (r *ModuleRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered modules.
func (r *ModuleRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}

// Server is the dojo HTTP server.
type Server struct {
	config    *Config
	modules   *ModuleRegistry
	agents    *agent.Loader
	providers *provider.Registry
	sessions  *session.Manager
	limiter   *RateLimiter
	server    *http.Server
	upgrader  websocket.Upgrader
}

// New creates a server from the configuration. Call LoadModules and
// LoadAgents before Start.
func New(config *Config) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}

	providers := config.Providers
	if providers == nil {
		providers = provider.NewRegistry()
	}

	s := &Server{
		config:    config,
		modules:   NewModuleRegistry(),
		agents:    &agent.Loader{},
		providers: providers,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return config.EnableCORS
			},
		},
	}

	if config.RequestsPerMinute > 0 || config.RequestsPerHour > 0 || config.SessionStartsPerHour > 0 {
		s.limiter = NewRateLimiter(config.RequestsPerMinute, config.RequestsPerHour, config.SessionStartsPerHour)
	}

	return s, nil
}

// initializeSessions builds the session manager if none was injected.
func (s *Server) initializeSessions() error {
	if s.sessions != nil {
		return nil
	}
	registry, err := engine.DefaultToolRegistry()
	if err != nil {
		return fmt.Errorf("building tool registry: %w", err)
	}
	s.sessions = session.NewManager(registry, s.config.MaxSessions)
	return nil
}

// LoadModules parses and registers the configured module files.
func (s *Server) LoadModules() error {
	moduleFiles := s.config.ModuleFiles
	if s.config.ModuleDir != "" {
		dirFiles, err := findModuleFiles(s.config.ModuleDir)
		if err != nil {
			return fmt.Errorf("failed to scan module directory: %w", err)
		}
		moduleFiles = append(moduleFiles, dirFiles...)
	}

	if len(moduleFiles) == 0 {
		return fmt.Errorf("no module files specified")
	}

	yamlParser, err := parser.NewYAMLParser()
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	log.Info().Msg("Loading and validating modules...")
	for _, file := range moduleFiles {
		module, err := yamlParser.ParseFile(file)
		if err != nil {
			return fmt.Errorf("failed to parse module %s: %w", file, err)
		}

		s.modules.Register(module)

		log.Info().
			Str("module_id", module.ID).
			Str("file", file).
			Int("steps", len(module.Steps)).
			Msg("Module loaded")
	}

	if s.modules.Count() == 0 {
		return fmt.Errorf("no valid modules loaded")
	}

	return nil
}

// LoadAgents discovers agent specs from the configured directories, or
// the default search path when none are set.
func (s *Server) LoadAgents() error {
	loader, err := agent.LoadSpecs(s.config.AgentDirs...)
	if err != nil {
		return fmt.Errorf("failed to load agent specs: %w", err)
	}
	s.agents = loader

	log.Info().Int("agents", len(loader.IDs())).Msg("Agent specs loaded")
	return nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	if err := s.initializeSessions(); err != nil {
		return err
	}

	router := mux.NewRouter()

	if s.config.EnableCORS {
		router.Use(s.corsMiddleware)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	if s.limiter != nil {
		api.Use(s.rateLimitMiddleware)
	}

	api.HandleFunc("/modules", s.listModules).Methods("GET")
	api.HandleFunc("/modules/{id}", s.getModule).Methods("GET")
	api.HandleFunc("/agents", s.listAgents).Methods("GET")
	api.HandleFunc("/sessions", s.listSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.getSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.deleteSession).Methods("DELETE")

	if s.config.EnableCORS {
		api.Methods("OPTIONS").HandlerFunc(s.handleOptions)
	}

	// The interactive endpoint sits outside /api/v1; the limiter counts
	// the upgrade as a session start but individual frames are free.
	var socket http.Handler = http.HandlerFunc(s.sessionSocket)
	if s.limiter != nil {
		socket = s.rateLimitMiddleware(socket)
	}
	router.Handle("/ws/session", socket).Methods("GET")

	if s.config.EnableMetrics {
		router.Handle("/metrics", promhttp.Handler())
	}

	router.HandleFunc("/health", s.healthCheck)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	log.Info().
		Str("addr", addr).
		Int("modules", s.modules.Count()).
		Int("agents", len(s.agents.IDs())).
		Int("max_sessions", s.config.MaxSessions).
		Bool("metrics", s.config.EnableMetrics).
		Msg("Starting dojo server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	return nil
}

// Stop stops the HTTP server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	log.Info().Msg("Shutting down server...")
	return s.server.Shutdown(ctx)
}

// StartWithGracefulShutdown starts the server and handles graceful shutdown.
func (s *Server) StartWithGracefulShutdown() error {
	if err := s.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer shutdownCancel()

		if err := s.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}

		cancel()
	}()

	<-ctx.Done()
	log.Info().Msg("Server shutdown complete")
	return nil
}

// GetAddr returns the server address.
func (s *Server) GetAddr() string {
	if s.server != nil && s.config.Port == 0 {
		return s.server.Addr
	}
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// GetModuleCount returns the number of loaded modules.
func (s *Server) GetModuleCount() int {
	return s.modules.Count()
}

// findModuleFiles finds module files in a directory.
func findModuleFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && (strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")) {
			files = append(files, path)
		}

		return nil
	})

	return files, err
}

// handleOptions handles CORS preflight requests.
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	// CORS headers are already set by middleware
	w.WriteHeader(http.StatusOK)
}
