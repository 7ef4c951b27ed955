// Package mcp implements the router's outward Model Context Protocol server.
//
// # Overview
//
// The router presents itself to downstream clients as a single MCP endpoint.
// This package carries the HTTP side of that contract: JSON-RPC 2.0 over the
// Streamable HTTP transport, with per-session state and an SSE stream for
// server-pushed notifications.
//
// # Protocol
//
// One endpoint (conventionally /mcp) supports three verbs:
//
//   - POST - request/response and initialization. An initialize request
//     mints a session and returns its id in the Mcp-Session-Id header.
//     Every other request must carry a known session id or it is rejected
//     with HTTP 400 and JSON-RPC error -32000.
//   - GET - server-to-client event stream (text/event-stream); requires a
//     valid session id.
//   - DELETE - session termination; requires a valid session id.
//
// Methods handled: initialize, ping, tools/list, tools/call,
// resources/list, resources/read, prompts/list, prompts/get, and
// notifications/* (accepted with 202).
//
// # Forwarding
//
// Listings come from the unified registry in deterministic order; calls are
// forwarded through the Dispatcher to the child that owns the capability
// and the child's result flows back verbatim. A failure to reach the child
// is reported as an MCP-shaped result with isError set, never as a bare
// HTTP failure. Handler panics are converted to JSON-RPC -32003 with the
// request id preserved.
package mcp
