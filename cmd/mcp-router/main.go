// ABOUTME: Entry point for the mcp-router aggregating MCP proxy.
// ABOUTME: Spawns child MCP servers and federates their capabilities behind /mcp.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/mcp-router/internal/config"
	"github.com/2389/mcp-router/internal/router"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _ __ ___   ___ _ __        _ __ ___  _   _| |_ ___ _ __
| '_ ' _ \ / __| '_ \ _____| '__/ _ \| | | | __/ _ \ '__|
| | | | | | (__| |_) |_____| | | (_) | |_| | ||  __/ |
|_| |_| |_|\___| .__/      |_|  \___/ \__,_|\__\___|_|
               |_|
`

// getConfigPath returns the path to the router config file.
// Priority: MCP_ROUTER_CONFIG env var > XDG_CONFIG_HOME/mcp-router/router.yaml
// > ~/.config/mcp-router/router.yaml
func getConfigPath() string {
	if envPath := os.Getenv("MCP_ROUTER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "router.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "mcp-router", "router.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: mcp-router <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the router")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  health   Check router health")
		fmt.Println("  tools    List unified tools from a running router")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "tools":
		err = runTools(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the router config, falling back to defaults when no
// config file exists. The servers file is still required at serve time.
func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.Default(), "(defaults)", nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, configPath, err
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Servers:  %s\n", cfg.Children.ConfigPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s%s\n", cfg.Server.HTTPAddr, cfg.Server.Endpoint)
	fmt.Println()

	logger.Info("starting mcp-router",
		"config", configPath,
		"servers_file", cfg.Children.ConfigPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	rt, err := router.New(cfg, logger, version)
	if err != nil {
		return fmt.Errorf("creating router: %w", err)
	}

	return rt.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	fmt.Println(string(body))
	return nil
}

// runTools lists the unified tool names from a running router by opening a
// session and issuing tools/list.
func runTools(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	base := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, cfg.Server.Endpoint)

	sessionID, err := openSession(ctx, base)
	if err != nil {
		return err
	}

	listReq := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base, strings.NewReader(listReq))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Mcp-Session-Id", sessionID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("tools/list failed: %w", err)
	}
	defer resp.Body.Close()

	var decoded struct {
		Result struct {
			Tools []struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	for _, tool := range decoded.Result.Tools {
		cyan.Print(tool.Name)
		if tool.Description != "" {
			gray.Printf("  %s", tool.Description)
		}
		fmt.Println()
	}
	fmt.Printf("\n%d tools\n", len(decoded.Result.Tools))
	return nil
}

// openSession runs the initialize handshake and returns the session id.
func openSession(ctx context.Context, base string) (string, error) {
	initReq := fmt.Sprintf(`{"jsonrpc":"2.0","id":0,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"mcp-router-cli","version":%q},"capabilities":{}}}`, version)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base, strings.NewReader(initReq))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("initialize failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	sessionID := resp.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		return "", fmt.Errorf("router did not return a session id")
	}
	return sessionID, nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("mcp-router configuration setup")
	fmt.Println("==============================")
	fmt.Println()

	defaultConfigPath := getConfigPath()

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:3000")
	endpoint := prompt(reader, "MCP endpoint path", "/mcp")

	fmt.Println("\n--- Children Configuration ---")
	serversFile := prompt(reader, "Servers file (mcpServers JSON)", config.DefaultServersFile)
	requestTimeout := prompt(reader, "Per-request timeout (empty for none)", "")

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# mcp-router configuration\n")
	cfg.WriteString("# Generated by mcp-router init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", httpAddr))
	cfg.WriteString(fmt.Sprintf("  endpoint: %q\n", endpoint))
	cfg.WriteString("\n")

	cfg.WriteString("children:\n")
	cfg.WriteString(fmt.Sprintf("  config_path: %q\n", serversFile))
	if requestTimeout != "" {
		cfg.WriteString(fmt.Sprintf("  request_timeout: %q\n", requestTimeout))
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", logFormat))

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the router:")
	fmt.Printf("  mcp-router serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
