// ABOUTME: MCP method surface for the child client: handshake, discovery, and calls.
// ABOUTME: Discovery tolerates partially-capable children by treating bad lists as empty.

package child

import (
	"context"
	"encoding/json"
)

// Tool is one tool discovered from a child via tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Resource is one resource discovered from a child via resources/list.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// Prompt is one prompt discovered from a child via prompts/list.
type Prompt struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
}

// Initialize runs the MCP initialize handshake followed by the initialized
// notification. The child is usable for discovery once this returns.
func (c *Client) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": "1.0.0",
		},
	}
	if _, err := c.call(ctx, "initialize", params); err != nil {
		return err
	}
	return c.notify("notifications/initialized", nil)
}

// ListTools returns the child's tools. A missing or malformed tools field is
// treated as an empty list with a warning so partially-capable children stay
// usable.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Tools json.RawMessage `json:"tools"`
	}
	if err := json.Unmarshal(result, &wrapper); err != nil {
		c.warnBadList("tools")
		return nil, nil
	}
	if len(wrapper.Tools) == 0 {
		c.warnBadList("tools")
		return nil, nil
	}
	var tools []Tool
	if err := json.Unmarshal(wrapper.Tools, &tools); err != nil {
		c.warnBadList("tools")
		return nil, nil
	}
	return tools, nil
}

// ListResources returns the child's resources with the same tolerance as
// ListTools.
func (c *Client) ListResources(ctx context.Context) ([]Resource, error) {
	result, err := c.call(ctx, "resources/list", nil)
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Resources json.RawMessage `json:"resources"`
	}
	if err := json.Unmarshal(result, &wrapper); err != nil {
		c.warnBadList("resources")
		return nil, nil
	}
	if len(wrapper.Resources) == 0 {
		c.warnBadList("resources")
		return nil, nil
	}
	var resources []Resource
	if err := json.Unmarshal(wrapper.Resources, &resources); err != nil {
		c.warnBadList("resources")
		return nil, nil
	}
	return resources, nil
}

// ListPrompts returns the child's prompts with the same tolerance as
// ListTools.
func (c *Client) ListPrompts(ctx context.Context) ([]Prompt, error) {
	result, err := c.call(ctx, "prompts/list", nil)
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Prompts json.RawMessage `json:"prompts"`
	}
	if err := json.Unmarshal(result, &wrapper); err != nil {
		c.warnBadList("prompts")
		return nil, nil
	}
	if len(wrapper.Prompts) == 0 {
		c.warnBadList("prompts")
		return nil, nil
	}
	var prompts []Prompt
	if err := json.Unmarshal(wrapper.Prompts, &prompts); err != nil {
		c.warnBadList("prompts")
		return nil, nil
	}
	return prompts, nil
}

// CallTool invokes a tool by its original name and returns the child's
// result verbatim.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (json.RawMessage, error) {
	params := map[string]any{"name": name}
	if len(arguments) > 0 {
		params["arguments"] = arguments
	}
	return c.call(ctx, "tools/call", params)
}

// ReadResource reads a resource by its original URI and returns the child's
// result verbatim.
func (c *Client) ReadResource(ctx context.Context, uri string) (json.RawMessage, error) {
	return c.call(ctx, "resources/read", map[string]any{"uri": uri})
}

// GetPrompt fetches a prompt by its original name and returns the child's
// result verbatim.
func (c *Client) GetPrompt(ctx context.Context, name string, arguments json.RawMessage) (json.RawMessage, error) {
	params := map[string]any{"name": name}
	if len(arguments) > 0 {
		params["arguments"] = arguments
	}
	return c.call(ctx, "prompts/get", params)
}

func (c *Client) warnBadList(kind string) {
	c.logger.Warn("child returned no usable list, treating as empty",
		"alias", c.alias,
		"kind", kind,
	)
}
