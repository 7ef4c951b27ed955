// ABOUTME: Loader for the child servers file (mcpServers JSON document).
// ABOUTME: Preserves declaration order and skips non-stdio entries; disabled ones are kept.

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// TransportStdio is the only child transport currently recognized.
const TransportStdio = "stdio"

// ServerEntry is one child server declaration, read-only after load. The
// Alias comes from the entry's key in the mcpServers object.
type ServerEntry struct {
	Alias    string            `json:"-"`
	Type     string            `json:"type"`
	Command  string            `json:"command"`
	Args     []string          `json:"args"`
	Env      map[string]string `json:"env"`
	Cwd      string            `json:"cwd"`
	Disabled bool              `json:"disabled"`

	// TimeoutMS is the per-request timeout in milliseconds; zero means none.
	TimeoutMS int64 `json:"timeout"`
}

// Timeout returns the entry's request timeout as a duration, or zero.
func (e ServerEntry) Timeout() time.Duration {
	if e.TimeoutMS <= 0 {
		return 0
	}
	return time.Duration(e.TimeoutMS) * time.Millisecond
}

// LoadServers reads the mcpServers document from path. Entries are returned
// in declaration order; unknown keys anywhere in the document are ignored.
// Entries with a transport type other than stdio are skipped with a warning.
// A recognized entry without a command is a configuration error.
func LoadServers(path string, logger *slog.Logger) ([]ServerEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading servers file: %w", err)
	}

	var doc struct {
		MCPServers json.RawMessage `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing servers file: %w", err)
	}
	if len(doc.MCPServers) == 0 {
		return nil, fmt.Errorf("servers file has no mcpServers object")
	}

	entries, err := decodeOrderedEntries(doc.MCPServers)
	if err != nil {
		return nil, fmt.Errorf("parsing mcpServers: %w", err)
	}

	out := make([]ServerEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Type != TransportStdio {
			logger.Warn("skipping server with unsupported transport",
				"alias", entry.Alias,
				"type", entry.Type,
			)
			continue
		}
		if entry.Alias == "" {
			return nil, fmt.Errorf("server entry with empty alias")
		}
		if entry.Command == "" {
			return nil, fmt.Errorf("server %q missing command", entry.Alias)
		}
		if entry.Args == nil {
			return nil, fmt.Errorf("server %q missing args", entry.Alias)
		}
		out = append(out, entry)
	}
	return out, nil
}

// decodeOrderedEntries walks the mcpServers object token by token because
// encoding/json maps do not preserve key order, and listing determinism
// depends on configuration order.
func decodeOrderedEntries(raw json.RawMessage) ([]ServerEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("mcpServers is not an object")
	}

	var entries []ServerEntry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		alias, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", keyTok)
		}

		var entry ServerEntry
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("entry %q: %w", alias, err)
		}
		entry.Alias = alias
		entries = append(entries, entry)
	}
	return entries, nil
}
