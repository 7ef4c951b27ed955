// Package child implements the per-child MCP client: a minimal JSON-RPC 2.0
// client over one line-framed transport with id-based response correlation.
//
// Calls suspend until the correlated response arrives, the configured
// timeout elapses, or the transport closes. Server-initiated notifications
// are accepted and logged; the router does not act on them today.
package child
