// Package config loads the router's own YAML configuration and the JSON
// servers file (mcpServers) that declares the child MCP servers. The YAML
// side supports ${VAR} environment expansion and duration strings; the JSON
// side preserves declaration order because listing determinism depends on
// it.
package config
