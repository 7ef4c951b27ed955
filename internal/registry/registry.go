// ABOUTME: Thread-safe unified capability registry for tools, resources, and prompts.
// ABOUTME: Namespaces child capabilities under their alias and supports bulk removal on exit.

package registry

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/mcp-router/internal/child"
)

// StatsURI is the built-in router stats resource. It is always present and
// is not namespaced under any child alias.
const StatsURI = "stats://mcp-router-server"

// ToolEntry maps a unified tool name back to its owning child.
type ToolEntry struct {
	UnifiedName  string
	OriginalName string
	ServerAlias  string
	Title        string
	Description  string
	InputSchema  json.RawMessage
}

// ResourceEntry maps a unified resource URI back to its owning child.
type ResourceEntry struct {
	UnifiedURI  string
	OriginalURI string
	ServerAlias string
	Name        string
	Title       string
	Description string
	MimeType    string
}

// PromptEntry maps a unified prompt name back to its owning child.
type PromptEntry struct {
	UnifiedName  string
	OriginalName string
	ServerAlias  string
	Title        string
	Description  string
	Arguments    json.RawMessage
}

// Stats is the payload of the built-in stats resource.
type Stats struct {
	ActiveServers int   `json:"activeServers"`
	ToolCount     int   `json:"toolCount"`
	ResourceCount int   `json:"resourceCount"`
	PromptCount   int   `json:"promptCount"`
	UptimeSeconds int64 `json:"uptimeSeconds"`
}

// ownedKeys is the reverse index for one child: the unified keys it owns,
// used for O(k) bulk removal when the child exits.
type ownedKeys struct {
	tools     []string
	resources []string
	prompts   []string
}

// Registry holds the unified view of every ready child's capabilities. The
// supervisor writes on child up/down; dispatch handlers read concurrently.
// Unified names are opaque labels: dispatch always goes through the entry's
// ServerAlias and original identifier, so aliases containing the delimiter
// cannot misroute a call.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]*ToolEntry
	resources map[string]*ResourceEntry
	prompts   map[string]*PromptEntry

	// Listing order: children in registration (config) order, capabilities
	// within a child in the order the child reported them.
	toolOrder     []string
	resourceOrder []string
	promptOrder   []string

	owned map[string]*ownedKeys

	logger    *slog.Logger
	startedAt time.Time
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		tools:     make(map[string]*ToolEntry),
		resources: make(map[string]*ResourceEntry),
		prompts:   make(map[string]*PromptEntry),
		owned:     make(map[string]*ownedKeys),
		logger:    logger,
		startedAt: time.Now(),
	}
}

// UnifiedName builds the outward identifier for a child capability.
func UnifiedName(alias, original string) string {
	return alias + "_" + original
}

// RegisterChild inserts every discovered capability of a child under its
// unified identifier. On collision the earlier registration wins and the
// loser is logged. Schemas are copied so later child mutation cannot corrupt
// registry state.
func (r *Registry) RegisterChild(alias string, tools []child.Tool, resources []child.Resource, prompts []child.Prompt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := &ownedKeys{}

	for _, t := range tools {
		unified := UnifiedName(alias, t.Name)
		if existing, ok := r.tools[unified]; ok {
			r.logger.Warn("tool name collision, keeping earlier registration",
				"unified_name", unified,
				"winner", existing.ServerAlias,
				"loser", alias,
			)
			continue
		}
		r.tools[unified] = &ToolEntry{
			UnifiedName:  unified,
			OriginalName: t.Name,
			ServerAlias:  alias,
			Title:        t.Title,
			Description:  t.Description,
			InputSchema:  cloneRaw(t.InputSchema),
		}
		r.toolOrder = append(r.toolOrder, unified)
		keys.tools = append(keys.tools, unified)
	}

	for _, res := range resources {
		unified := UnifiedName(alias, res.URI)
		if existing, ok := r.resources[unified]; ok {
			r.logger.Warn("resource uri collision, keeping earlier registration",
				"unified_uri", unified,
				"winner", existing.ServerAlias,
				"loser", alias,
			)
			continue
		}
		r.resources[unified] = &ResourceEntry{
			UnifiedURI:  unified,
			OriginalURI: res.URI,
			ServerAlias: alias,
			Name:        res.Name,
			Title:       res.Title,
			Description: res.Description,
			MimeType:    res.MimeType,
		}
		r.resourceOrder = append(r.resourceOrder, unified)
		keys.resources = append(keys.resources, unified)
	}

	for _, p := range prompts {
		unified := UnifiedName(alias, p.Name)
		if existing, ok := r.prompts[unified]; ok {
			r.logger.Warn("prompt name collision, keeping earlier registration",
				"unified_name", unified,
				"winner", existing.ServerAlias,
				"loser", alias,
			)
			continue
		}
		r.prompts[unified] = &PromptEntry{
			UnifiedName:  unified,
			OriginalName: p.Name,
			ServerAlias:  alias,
			Title:        p.Title,
			Description:  p.Description,
			Arguments:    cloneRaw(p.Arguments),
		}
		r.promptOrder = append(r.promptOrder, unified)
		keys.prompts = append(keys.prompts, unified)
	}

	r.owned[alias] = keys

	r.logger.Info("=== CHILD CAPABILITIES REGISTERED ===",
		"alias", alias,
		"tools", len(keys.tools),
		"resources", len(keys.resources),
		"prompts", len(keys.prompts),
		"total_tools", len(r.tools),
	)
}

// RemoveChild removes every capability owned by the alias in one atomic
// step, using the reverse index rather than re-querying survivors.
func (r *Registry) RemoveChild(alias string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys, ok := r.owned[alias]
	if !ok {
		return
	}
	delete(r.owned, alias)

	for _, k := range keys.tools {
		delete(r.tools, k)
	}
	for _, k := range keys.resources {
		delete(r.resources, k)
	}
	for _, k := range keys.prompts {
		delete(r.prompts, k)
	}
	r.toolOrder = removeKeys(r.toolOrder, keys.tools)
	r.resourceOrder = removeKeys(r.resourceOrder, keys.resources)
	r.promptOrder = removeKeys(r.promptOrder, keys.prompts)

	r.logger.Info("=== CHILD CAPABILITIES REMOVED ===",
		"alias", alias,
		"tools", len(keys.tools),
		"resources", len(keys.resources),
		"prompts", len(keys.prompts),
		"total_tools", len(r.tools),
	)
}

// ToolByUnifiedName returns the entry for a unified tool name, or nil.
func (r *Registry) ToolByUnifiedName(name string) *ToolEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// ResourceByUnifiedURI returns the entry for a unified resource URI, or nil.
func (r *Registry) ResourceByUnifiedURI(uri string) *ResourceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resources[uri]
}

// PromptByUnifiedName returns the entry for a unified prompt name, or nil.
func (r *Registry) PromptByUnifiedName(name string) *PromptEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.prompts[name]
}

// Tools lists all tool entries in deterministic order.
func (r *Registry) Tools() []*ToolEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ToolEntry, 0, len(r.toolOrder))
	for _, k := range r.toolOrder {
		out = append(out, r.tools[k])
	}
	return out
}

// Resources lists all resource entries in deterministic order, with the
// built-in stats resource first.
func (r *Registry) Resources() []*ResourceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ResourceEntry, 0, len(r.resourceOrder)+1)
	out = append(out, &ResourceEntry{
		UnifiedURI:  StatsURI,
		OriginalURI: StatsURI,
		Name:        "Router statistics",
		Description: "Aggregate counts for the running router",
		MimeType:    "application/json",
	})
	for _, k := range r.resourceOrder {
		out = append(out, r.resources[k])
	}
	return out
}

// Prompts lists all prompt entries in deterministic order.
func (r *Registry) Prompts() []*PromptEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*PromptEntry, 0, len(r.promptOrder))
	for _, k := range r.promptOrder {
		out = append(out, r.prompts[k])
	}
	return out
}

// Stats returns the aggregate counts for the stats resource. activeServers
// is supplied by the caller, which knows child lifecycle state.
func (r *Registry) Stats(activeServers int) Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		ActiveServers: activeServers,
		ToolCount:     len(r.tools),
		ResourceCount: len(r.resources),
		PromptCount:   len(r.prompts),
		UptimeSeconds: int64(time.Since(r.startedAt).Seconds()),
	}
}

// Clear removes every entry. Called during shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = make(map[string]*ToolEntry)
	r.resources = make(map[string]*ResourceEntry)
	r.prompts = make(map[string]*PromptEntry)
	r.owned = make(map[string]*ownedKeys)
	r.toolOrder = nil
	r.resourceOrder = nil
	r.promptOrder = nil
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

func removeKeys(order []string, remove []string) []string {
	if len(remove) == 0 {
		return order
	}
	gone := make(map[string]struct{}, len(remove))
	for _, k := range remove {
		gone[k] = struct{}{}
	}
	kept := order[:0]
	for _, k := range order {
		if _, ok := gone[k]; !ok {
			kept = append(kept, k)
		}
	}
	return kept
}
