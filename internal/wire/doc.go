// Package wire carries newline-delimited JSON-RPC 2.0 messages between the
// router and one child's stdio pipes. The transport buffers partial reads,
// survives malformed lines, and applies the single structuredContent null
// coercion some children require.
package wire
