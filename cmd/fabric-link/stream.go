// ABOUTME: Event-stream response decoding for fabric-link.
// ABOUTME: Strips SSE message framing and surfaces result.content as plain text.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ssePrefix matches the "event: message\ndata: " framing some router
// responses use. Stripping it leaves the raw JSON-RPC payload.
var ssePrefix = regexp.MustCompile(`(?m)^event: message\n^data: `)

// parseEventStream decodes a text/event-stream body into printable output.
// When the payload carries result.content, just that content is printed;
// otherwise the whole parsed payload is pretty-printed.
func parseEventStream(stream string) string {
	// Drop keep-alive blank lines before reassembly.
	var lines []string
	for _, line := range strings.Split(stream, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	cleaned := ssePrefix.ReplaceAllString(strings.Join(lines, "\n"), "")

	var parsed map[string]any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding JSON from stream: %v\nContent: %s\n", err, stream)
		return fmt.Sprintf("JSON Decode Error: %v", err)
	}

	result, ok := parsed["result"].(map[string]any)
	if ok {
		if content, has := result["content"]; has {
			switch v := content.(type) {
			case string:
				return v
			case []any, map[string]any:
				pretty, err := json.MarshalIndent(v, "", "  ")
				if err == nil {
					return string(pretty)
				}
			default:
				return fmt.Sprint(v)
			}
		}
	}

	pretty, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return fmt.Sprint(parsed)
	}
	return string(pretty)
}
