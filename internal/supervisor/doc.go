// Package supervisor spawns and supervises the configured child MCP servers.
//
// # Overview
//
// Each enabled entry in the servers file becomes one child process with its
// stdin/stdout wired to a line-framed JSON-RPC transport and its stderr
// relayed to the log, tagged with the child's alias. After the MCP
// initialize handshake the supervisor discovers the child's tools,
// resources, and prompts and registers them in the unified registry under
// the child's alias prefix.
//
// # Lifecycle
//
// A child moves through spawning -> ready -> exited. Spawn or handshake
// failures mark the child failed and never affect its siblings; the router
// starts as long as the HTTP listener can bind. When a child's process
// closes, its registry entries are removed in one step using the registry's
// reverse index and the record is dropped. Children are not restarted; a
// restarted child requires a router restart.
//
// # Dispatch
//
// The supervisor is also the dispatch layer: CallTool, ReadResource, and
// GetPrompt resolve a unified identifier to the owning child via the
// registry entry's alias, translate back to the child's original name, and
// forward the call. Results flow back verbatim. The built-in stats resource
// is answered locally without touching any child.
package supervisor
