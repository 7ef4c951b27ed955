// ABOUTME: MCP-compatible HTTP server exposing the unified capability surface.
// ABOUTME: Implements Streamable HTTP transport with session management and SSE.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/mcp-router/internal/registry"
)

// protocolVersion is the MCP revision advertised to downstream clients.
const protocolVersion = "2025-06-18"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// sessionHeader carries the session id on every request after initialize.
const sessionHeader = "Mcp-Session-Id"

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes, plus the transport-level codes the router
// is contractually required to emit.
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603

	// JSONRPCNoSession is returned on requests without a valid session id.
	JSONRPCNoSession = -32000
	// JSONRPCServerError is returned for uncaught handler failures.
	JSONRPCServerError = -32003
)

// noSessionMessage is the exact invalid-session error body text.
const noSessionMessage = "Bad Request: No valid session ID provided"

// Dispatcher forwards a call to the child owning a unified identifier.
type Dispatcher interface {
	CallTool(ctx context.Context, unifiedName string, arguments json.RawMessage) (json.RawMessage, error)
	ReadResource(ctx context.Context, unifiedURI string) (json.RawMessage, error)
	GetPrompt(ctx context.Context, unifiedName string, arguments json.RawMessage) (json.RawMessage, error)
}

// Lister provides the ordered unified capability listings. Satisfied by
// *registry.Registry.
type Lister interface {
	Tools() []*registry.ToolEntry
	Resources() []*registry.ResourceEntry
	Prompts() []*registry.PromptEntry
}

// Config holds configuration for the MCP server.
type Config struct {
	Lister     Lister
	Dispatcher Dispatcher
	Logger     *slog.Logger
	ServerName string
	Version    string
}

// Server implements the MCP Streamable HTTP endpoint over the unified
// registry. Sessions are in-memory and end only on an explicit DELETE; a
// GET stream that disconnects leaves its session in place.
type Server struct {
	lister     Lister
	dispatcher Dispatcher
	logger     *slog.Logger
	serverName string
	version    string
	sessions   *sessionStore
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Lister == nil {
		return nil, errors.New("lister is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.ServerName
	if name == "" {
		name = "mcp-router"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	return &Server{
		lister:     cfg.Lister,
		dispatcher: cfg.Dispatcher,
		logger:     logger,
		serverName: name,
		version:    version,
		sessions:   newSessionStore(),
	}, nil
}

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux, endpoint string) {
	mux.HandleFunc(endpoint, s.handleMCP)
}

// SessionCount returns the number of live sessions (for health reporting).
func (s *Server) SessionCount() int {
	return s.sessions.count()
}

// handleMCP is the single MCP endpoint supporting POST, GET, and DELETE per
// the Streamable HTTP transport spec.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleGet(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, GET, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handlePost processes JSON-RPC messages sent via HTTP POST.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	var req JSONRPCRequest

	// Uncaught failures below must still produce a well-formed JSON-RPC
	// error with the request id when it was parsed.
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("handler panic", "panic", rec)
			s.sendError(w, http.StatusInternalServerError, req.ID, JSONRPCServerError,
				fmt.Sprintf("Internal server error: %v", rec))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, nil, JSONRPCParseError, "failed to read request body")
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendError(w, http.StatusBadRequest, nil, JSONRPCInvalidRequest, "request body too large")
		return
	}

	if err := json.Unmarshal(body, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, nil, JSONRPCParseError, "invalid JSON")
		return
	}
	if req.JSONRPC != "2.0" {
		s.sendError(w, http.StatusBadRequest, req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version")
		return
	}

	sessionID := r.Header.Get(sessionHeader)
	isInitialize := req.Method == "initialize"
	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	if isInitialize {
		s.handleInitialize(w, req)
		return
	}

	// Every other request requires a valid session.
	if _, ok := s.sessions.get(sessionID); !ok {
		s.sendError(w, http.StatusBadRequest, nil, JSONRPCNoSession, noSessionMessage)
		return
	}

	s.logger.Debug("MCP request",
		"method", req.Method,
		"is_notification", isNotification,
		"session_id", sessionID,
	)

	// Notifications are accepted and acknowledged without a body.
	if isNotification {
		if !strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch req.Method {
	case "ping":
		s.sendResult(w, req.ID, map[string]any{})
	case "tools/list":
		s.handleToolsList(w, req)
	case "tools/call":
		s.handleToolsCall(w, r, req)
	case "resources/list":
		s.handleResourcesList(w, req)
	case "resources/read":
		s.handleResourcesRead(w, r, req)
	case "prompts/list":
		s.handlePromptsList(w, req)
	case "prompts/get":
		s.handlePromptsGet(w, r, req)
	default:
		s.sendError(w, http.StatusOK, req.ID, JSONRPCMethodNotFound, "method not found")
	}
}

// handleInitialize mints a new session and answers the handshake.
func (s *Server) handleInitialize(w http.ResponseWriter, req JSONRPCRequest) {
	sess := s.sessions.create(protocolVersion)

	s.logger.Info("MCP session created",
		"session_id", sess.id,
		"protocol_version", sess.protocolVersion,
	)

	w.Header().Set(sessionHeader, sess.id)
	s.sendResult(w, req.ID, map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{"listChanged": false},
			"resources": map[string]any{},
			"prompts":   map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    s.serverName,
			"version": s.version,
		},
	})
}

// handleGet opens the server-to-client SSE stream for a session.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.get(r.Header.Get(sessionHeader))
	if !ok {
		s.sendError(w, http.StatusBadRequest, nil, JSONRPCNoSession, noSessionMessage)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sess.done:
			return
		case event, ok := <-sess.events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", event)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

// handleDelete terminates a session per the Streamable HTTP spec.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if !s.sessions.delete(sessionID) {
		s.sendError(w, http.StatusBadRequest, nil, JSONRPCNoSession, noSessionMessage)
		return
	}
	s.logger.Info("MCP session terminated", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// sendResult sends a successful JSON-RPC response.
func (s *Server) sendResult(w http.ResponseWriter, id json.RawMessage, result any) {
	if id == nil {
		id = json.RawMessage("null")
	}
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}

// sendError sends a JSON-RPC error response with the given HTTP status.
func (s *Server) sendError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string) {
	if id == nil {
		id = json.RawMessage("null")
	}
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC error response", "error", err)
	}
}
