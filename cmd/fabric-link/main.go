// ABOUTME: Companion CLI that bridges markdown-embedded JSON-RPC to the router.
// ABOUTME: Extracts a fenced json block from stdin, manages the session, posts to /mcp.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
)

const (
	defaultRouterURL   = "http://localhost:3000/mcp"
	defaultSessionFile = ".mcp_session_id"
	protocolVersion    = "2025-06-18"
)

// clientConfig is the optional fabric-link.toml file. Values override the
// WATSON_MCP_ROUTER_URL environment variable and the built-in defaults.
type clientConfig struct {
	URL         string `toml:"url"`
	SessionFile string `toml:"session_file"`
}

func loadClientConfig() clientConfig {
	cfg := clientConfig{
		URL:         defaultRouterURL,
		SessionFile: defaultSessionFile,
	}
	if env := os.Getenv("WATSON_MCP_ROUTER_URL"); env != "" {
		cfg.URL = env
	}
	var fileCfg clientConfig
	if _, err := toml.DecodeFile("fabric-link.toml", &fileCfg); err == nil {
		if fileCfg.URL != "" {
			cfg.URL = fileCfg.URL
		}
		if fileCfg.SessionFile != "" {
			cfg.SessionFile = fileCfg.SessionFile
		}
	}
	return cfg
}

func loadSessionID(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func saveSessionID(path, sessionID string) {
	if err := os.WriteFile(path, []byte(sessionID), 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not save session id: %v\n", err)
	}
}

// emitError writes a JSON-RPC error object to stdout, mirroring how the
// router itself reports failures, and a human-readable note to stderr.
func emitError(code int, message string, id any) {
	obj := map[string]any{
		"jsonrpc": "2.0",
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
		"id": id,
	}
	data, _ := json.Marshal(obj)
	fmt.Println(string(data))
	color.New(color.FgRed).Fprintf(os.Stderr, "Error: %s\n", message)
}

func main() {
	cfg := loadClientConfig()
	sessionID := loadSessionID(cfg.SessionFile)

	// Bootstrap a session before anything else.
	if sessionID == "" {
		newID, body, err := initializeSession(cfg.URL)
		if err != nil {
			emitError(-32003, fmt.Sprintf("Initial HTTP Request failed during 'initialize': %v", err), 0)
			return
		}
		if newID == "" {
			fmt.Fprintln(os.Stderr, "WARNING: No mcp-session-id received in initial 'initialize' response.")
		} else {
			saveSessionID(cfg.SessionFile, newID)
			sessionID = newID
		}
		fmt.Println(body)
	}

	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		emitError(-32000, fmt.Sprintf("reading stdin: %v", err), nil)
		return
	}

	if strings.TrimSpace(string(input)) == "" {
		// Nothing piped in: the run only performed the session bootstrap.
		return
	}

	jsonContent, ok := extractJSONBlock(input)
	if !ok {
		emitError(-32700, "Error: Could not find JSON content within ```json ... ``` block or empty input.", nil)
		return
	}

	var message map[string]any
	if err := json.Unmarshal([]byte(jsonContent), &message); err != nil {
		emitError(-32700, fmt.Sprintf("Error: Could not decode JSON from extracted content: %s", jsonContent), nil)
		return
	}

	if sessionID == "" {
		emitError(-32003, "Session ID not available after initialization attempt.", message["id"])
		return
	}

	if err := forward(cfg, sessionID, message); err != nil {
		emitError(-32003, fmt.Sprintf("HTTP Request failed: %v", err), message["id"])
	}
}

// initializeSession performs the initialize handshake and returns the minted
// session id with the raw response body.
func initializeSession(url string) (string, string, error) {
	initMessage := map[string]any{
		"jsonrpc": "2.0",
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": protocolVersion,
			"clientInfo": map[string]any{
				"name":    "FabricLinkClient",
				"version": "1.0.0",
			},
			"capabilities": map[string]any{
				"roots":       map[string]any{"listChanged": true},
				"sampling":    map[string]any{},
				"elicitation": map[string]any{},
			},
		},
		"id": 0,
	}
	data, _ := json.Marshal(initMessage)

	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(string(data)))
	if err != nil {
		return "", "", err
	}
	setHeaders(req, "")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}
	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.Header.Get("mcp-session-id"), strings.TrimRight(string(body), "\n"), nil
}

// forward posts the extracted JSON-RPC message and prints the decoded
// response to stdout.
func forward(cfg clientConfig, sessionID string, message map[string]any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, cfg.URL, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	setHeaders(req, sessionID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// A subsequent initialize can rotate the session id.
	if method, _ := message["method"].(string); method == "initialize" {
		if newID := resp.Header.Get("mcp-session-id"); newID != "" && newID != sessionID {
			saveSessionID(cfg.SessionFile, newID)
		}
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		fmt.Println(parseEventStream(string(body)))
		return nil
	}
	fmt.Println(strings.TrimRight(string(body), "\n"))
	return nil
}

func setHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("MCP-Protocol-Version", protocolVersion)
	req.Header.Set("Accept", "application/json; text/event-stream")
	if sessionID != "" {
		req.Header.Set("mcp-session-id", sessionID)
	}
}
