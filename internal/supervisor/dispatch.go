// ABOUTME: Dispatches incoming MCP calls onto the owning child by unified name.
// ABOUTME: Translates unified identifiers back to the child's original names.

package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/mcp-router/internal/registry"
)

// ErrUnknownCapability indicates the unified identifier is not registered.
var ErrUnknownCapability = errors.New("unknown capability")

// ErrChildUnavailable indicates the owning child is not in the ready state.
var ErrChildUnavailable = errors.New("server unavailable")

// CallTool forwards a tool call to the owning child and returns the child's
// result verbatim.
func (s *Supervisor) CallTool(ctx context.Context, unifiedName string, arguments json.RawMessage) (json.RawMessage, error) {
	entry := s.registry.ToolByUnifiedName(unifiedName)
	if entry == nil {
		return nil, fmt.Errorf("%w: tool %q", ErrUnknownCapability, unifiedName)
	}
	c, err := s.readyChild(entry.ServerAlias)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("→ dispatching tool call",
		"unified_name", unifiedName,
		"alias", entry.ServerAlias,
		"original_name", entry.OriginalName,
	)
	return c.client.CallTool(ctx, entry.OriginalName, arguments)
}

// ReadResource forwards a resource read to the owning child, or answers the
// built-in stats resource locally.
func (s *Supervisor) ReadResource(ctx context.Context, unifiedURI string) (json.RawMessage, error) {
	if unifiedURI == registry.StatsURI {
		return s.statsResult()
	}
	entry := s.registry.ResourceByUnifiedURI(unifiedURI)
	if entry == nil {
		return nil, fmt.Errorf("%w: resource %q", ErrUnknownCapability, unifiedURI)
	}
	c, err := s.readyChild(entry.ServerAlias)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("→ dispatching resource read",
		"unified_uri", unifiedURI,
		"alias", entry.ServerAlias,
	)
	return c.client.ReadResource(ctx, entry.OriginalURI)
}

// GetPrompt forwards a prompt fetch to the owning child.
func (s *Supervisor) GetPrompt(ctx context.Context, unifiedName string, arguments json.RawMessage) (json.RawMessage, error) {
	entry := s.registry.PromptByUnifiedName(unifiedName)
	if entry == nil {
		return nil, fmt.Errorf("%w: prompt %q", ErrUnknownCapability, unifiedName)
	}
	c, err := s.readyChild(entry.ServerAlias)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("→ dispatching prompt get",
		"unified_name", unifiedName,
		"alias", entry.ServerAlias,
	)
	return c.client.GetPrompt(ctx, entry.OriginalName, arguments)
}

// readyChild resolves an alias to a ready child.
func (s *Supervisor) readyChild(alias string) (*Child, error) {
	c := s.Get(alias)
	if c == nil || c.State() != StateReady {
		return nil, fmt.Errorf("%w: %s", ErrChildUnavailable, alias)
	}
	return c, nil
}

// statsResult renders the built-in stats resource as a resources/read result.
func (s *Supervisor) statsResult() (json.RawMessage, error) {
	stats := s.registry.Stats(s.ActiveCount())
	text, err := json.Marshal(stats)
	if err != nil {
		return nil, err
	}
	result := map[string]any{
		"contents": []map[string]any{
			{
				"uri":      registry.StatsURI,
				"mimeType": "application/json",
				"text":     string(text),
			},
		},
	}
	return json.Marshal(result)
}
