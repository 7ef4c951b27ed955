// ABOUTME: Tests for the router orchestrator handler wiring and health endpoint.
// ABOUTME: Uses an empty child set so no processes are spawned.

package router

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcp-router/internal/config"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	cfg := config.Default()
	r, err := New(cfg, slog.Default(), "test")
	require.NoError(t, err)
	return r
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)
	handler := r.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Status        string `json:"status"`
		ActiveServers int    `json:"activeServers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload.Status)
	assert.Equal(t, 0, payload.ActiveServers)
}

func TestMCPEndpointMounted(t *testing.T) {
	r := newTestRouter(t)
	handler := r.Handler()

	// The MCP endpoint answers initialize even with zero children.
	req := httptest.NewRequest(http.MethodPost, "/mcp",
		strings.NewReader(`{"jsonrpc":"2.0","id":0,"method":"initialize","params":{}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Mcp-Session-Id"))
}
