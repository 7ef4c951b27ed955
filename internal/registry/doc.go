// Package registry maintains the unified capability view: every ready
// child's tools, resources, and prompts keyed by their namespaced
// identifiers, with a per-child reverse index for atomic removal on exit.
package registry
