// ABOUTME: Router orchestrator that wires config, supervisor, registry, and HTTP server.
// ABOUTME: Owns orderly startup and signal-driven graceful shutdown.

package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/mcp-router/internal/config"
	"github.com/2389/mcp-router/internal/mcp"
	"github.com/2389/mcp-router/internal/registry"
	"github.com/2389/mcp-router/internal/supervisor"
)

// shutdownTimeout bounds the HTTP server drain on shutdown.
const shutdownTimeout = 10 * time.Second

// Router orchestrates the mcp-router server components: the child
// supervisor, the unified registry, and the outward MCP HTTP server.
type Router struct {
	config     *config.Config
	logger     *slog.Logger
	registry   *registry.Registry
	supervisor *supervisor.Supervisor
	mcpServer  *mcp.Server
	httpServer *http.Server
	version    string
}

// New creates a router from the loaded configuration.
func New(cfg *config.Config, logger *slog.Logger, version string) (*Router, error) {
	reg := registry.New(logger)
	sup := supervisor.New(reg, logger, cfg.Children.RequestTimeout)

	mcpServer, err := mcp.NewServer(mcp.Config{
		Lister:     reg,
		Dispatcher: sup,
		Logger:     logger,
		ServerName: "mcp-router",
		Version:    version,
	})
	if err != nil {
		return nil, fmt.Errorf("creating mcp server: %w", err)
	}

	return &Router{
		config:     cfg,
		logger:     logger,
		registry:   reg,
		supervisor: sup,
		mcpServer:  mcpServer,
		version:    version,
	}, nil
}

// Run starts every child, binds the HTTP listener, and serves until the
// context is cancelled. Shutdown drains HTTP, signals the children, and
// clears the registry.
func (r *Router) Run(ctx context.Context) error {
	entries, err := config.LoadServers(r.config.Children.ConfigPath, r.logger)
	if err != nil {
		return fmt.Errorf("loading servers file: %w", err)
	}

	r.supervisor.StartAll(ctx, entries)
	r.logger.Info("=== CHILDREN STARTED ===",
		"configured", len(entries),
		"active", r.supervisor.ActiveCount(),
	)

	r.httpServer = &http.Server{
		Addr:    r.config.Server.HTTPAddr,
		Handler: r.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("mcp-router listening",
			"addr", r.config.Server.HTTPAddr,
			"endpoint", r.config.Server.Endpoint,
		)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		r.supervisor.Shutdown()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	r.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("http shutdown", "error", err)
	}

	r.supervisor.Shutdown()
	r.logger.Info("shutdown complete")
	return nil
}

// Handler builds the router's HTTP handler: the MCP endpoint plus health.
func (r *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	r.mcpServer.RegisterRoutes(mux, r.config.Server.Endpoint)
	mux.HandleFunc("/health", r.handleHealth)
	return mux
}

// handleHealth reports liveness plus aggregate counts.
func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := r.registry.Stats(r.supervisor.ActiveCount())
	payload := map[string]any{
		"status":        "ok",
		"activeServers": stats.ActiveServers,
		"toolCount":     stats.ToolCount,
		"resourceCount": stats.ResourceCount,
		"promptCount":   stats.PromptCount,
		"sessions":      r.mcpServer.SessionCount(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.logger.Warn("failed to encode health response", "error", err)
	}
}
