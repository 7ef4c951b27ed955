// ABOUTME: JSON-RPC method handlers for the unified capability surface.
// ABOUTME: Listings come from the registry; calls are forwarded verbatim via the dispatcher.

package mcp

import (
	"encoding/json"
	"net/http"
)

// ToolInfo is one tool in a tools/list response.
type ToolInfo struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ResourceInfo is one resource in a resources/list response.
type ResourceInfo struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PromptInfo is one prompt in a prompts/list response.
type PromptInfo struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
}

// errorResult is the MCP-shaped failure payload returned when a forward to
// the child fails: downstream clients receive a well-formed tool result
// rather than a transport-level failure.
type errorResult struct {
	Content []errorContent `json:"content"`
	IsError bool           `json:"isError"`
}

type errorContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func newErrorResult(message string) errorResult {
	return errorResult{
		Content: []errorContent{{Type: "text", Text: message}},
		IsError: true,
	}
}

// emptySchema is used for tools discovered without an input schema.
var emptySchema = json.RawMessage(`{"type":"object"}`)

func (s *Server) handleToolsList(w http.ResponseWriter, req JSONRPCRequest) {
	entries := s.lister.Tools()
	tools := make([]ToolInfo, 0, len(entries))
	for _, e := range entries {
		schema := e.InputSchema
		if len(schema) == 0 {
			schema = emptySchema
		}
		tools = append(tools, ToolInfo{
			Name:        e.UnifiedName,
			Title:       e.Title,
			Description: e.Description,
			InputSchema: schema,
		})
	}

	s.logger.Debug("tools/list", "count", len(tools))
	s.sendResult(w, req.ID, map[string]any{"tools": tools})
}

func (s *Server) handleResourcesList(w http.ResponseWriter, req JSONRPCRequest) {
	entries := s.lister.Resources()
	resources := make([]ResourceInfo, 0, len(entries))
	for _, e := range entries {
		resources = append(resources, ResourceInfo{
			URI:         e.UnifiedURI,
			Name:        e.Name,
			Title:       e.Title,
			Description: e.Description,
			MimeType:    e.MimeType,
		})
	}

	s.logger.Debug("resources/list", "count", len(resources))
	s.sendResult(w, req.ID, map[string]any{"resources": resources})
}

func (s *Server) handlePromptsList(w http.ResponseWriter, req JSONRPCRequest) {
	entries := s.lister.Prompts()
	prompts := make([]PromptInfo, 0, len(entries))
	for _, e := range entries {
		prompts = append(prompts, PromptInfo{
			Name:        e.UnifiedName,
			Title:       e.Title,
			Description: e.Description,
			Arguments:   e.Arguments,
		})
	}

	s.logger.Debug("prompts/list", "count", len(prompts))
	s.sendResult(w, req.ID, map[string]any{"prompts": prompts})
}

func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendError(w, http.StatusOK, req.ID, JSONRPCInvalidParams, "invalid params")
			return
		}
	}
	if params.Name == "" {
		s.sendError(w, http.StatusOK, req.ID, JSONRPCInvalidParams, "tool name is required")
		return
	}

	result, err := s.dispatcher.CallTool(r.Context(), params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool call failed",
			"tool_name", params.Name,
			"error", err,
		)
		s.sendResult(w, req.ID, newErrorResult(err.Error()))
		return
	}
	s.sendResult(w, req.ID, json.RawMessage(result))
}

func (s *Server) handleResourcesRead(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) {
	var params struct {
		URI string `json:"uri"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendError(w, http.StatusOK, req.ID, JSONRPCInvalidParams, "invalid params")
			return
		}
	}
	if params.URI == "" {
		s.sendError(w, http.StatusOK, req.ID, JSONRPCInvalidParams, "resource uri is required")
		return
	}

	result, err := s.dispatcher.ReadResource(r.Context(), params.URI)
	if err != nil {
		s.logger.Warn("resource read failed",
			"uri", params.URI,
			"error", err,
		)
		s.sendResult(w, req.ID, newErrorResult(err.Error()))
		return
	}
	s.sendResult(w, req.ID, json.RawMessage(result))
}

func (s *Server) handlePromptsGet(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendError(w, http.StatusOK, req.ID, JSONRPCInvalidParams, "invalid params")
			return
		}
	}
	if params.Name == "" {
		s.sendError(w, http.StatusOK, req.ID, JSONRPCInvalidParams, "prompt name is required")
		return
	}

	result, err := s.dispatcher.GetPrompt(r.Context(), params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("prompt get failed",
			"prompt_name", params.Name,
			"error", err,
		)
		s.sendResult(w, req.ID, newErrorResult(err.Error()))
		return
	}
	s.sendResult(w, req.ID, json.RawMessage(result))
}
