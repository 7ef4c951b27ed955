// ABOUTME: Tests for the MCP HTTP server including sessions and capability dispatch.
// ABOUTME: Validates the session-id contract, passthrough, and error shaping.

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcp-router/internal/child"
	"github.com/2389/mcp-router/internal/registry"
)

// stubDispatcher implements Dispatcher with canned behavior per identifier.
type stubDispatcher struct {
	callTool     func(name string, args json.RawMessage) (json.RawMessage, error)
	readResource func(uri string) (json.RawMessage, error)
	getPrompt    func(name string, args json.RawMessage) (json.RawMessage, error)
}

func (d *stubDispatcher) CallTool(_ context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	if d.callTool == nil {
		return nil, errors.New("no tool handler")
	}
	return d.callTool(name, args)
}

func (d *stubDispatcher) ReadResource(_ context.Context, uri string) (json.RawMessage, error) {
	if d.readResource == nil {
		return nil, errors.New("no resource handler")
	}
	return d.readResource(uri)
}

func (d *stubDispatcher) GetPrompt(_ context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	if d.getPrompt == nil {
		return nil, errors.New("no prompt handler")
	}
	return d.getPrompt(name, args)
}

// setupServer builds a server over a registry seeded with one weather child.
func setupServer(t *testing.T, dispatcher *stubDispatcher) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(slog.Default())
	reg.RegisterChild("weather",
		[]child.Tool{{
			Name:        "get_forecast",
			Description: "Weather forecast",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`),
		}},
		[]child.Resource{{URI: "mem://status", MimeType: "application/json"}},
		[]child.Prompt{{Name: "summarize"}})

	srv, err := NewServer(Config{
		Lister:     reg,
		Dispatcher: dispatcher,
		Logger:     slog.Default(),
		ServerName: "mcp-router",
		Version:    "test",
	})
	require.NoError(t, err)
	return srv, reg
}

func postJSON(t *testing.T, handler http.Handler, sessionID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// initSession runs the initialize handshake and returns the minted session id.
func initSession(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := postJSON(t, handler, "", `{"jsonrpc":"2.0","id":0,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"test","version":"0"},"capabilities":{}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := rec.Header().Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID)
	return sessionID
}

func mux(srv *Server) *http.ServeMux {
	m := http.NewServeMux()
	srv.RegisterRoutes(m, "/mcp")
	return m
}

func TestInitialize(t *testing.T) {
	t.Run("mints a session and returns server info", func(t *testing.T) {
		srv, _ := setupServer(t, &stubDispatcher{})
		m := mux(srv)

		rec := postJSON(t, m, "", `{"jsonrpc":"2.0","id":0,"method":"initialize","params":{}}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Mcp-Session-Id"))

		var resp struct {
			Result struct {
				ProtocolVersion string `json:"protocolVersion"`
				ServerInfo      struct {
					Name string `json:"name"`
				} `json:"serverInfo"`
			} `json:"result"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "2025-06-18", resp.Result.ProtocolVersion)
		assert.Equal(t, "mcp-router", resp.Result.ServerInfo.Name)
		assert.Equal(t, 1, srv.SessionCount())
	})
}

func TestSessionValidation(t *testing.T) {
	t.Run("post without session id is rejected", func(t *testing.T) {
		srv, _ := setupServer(t, &stubDispatcher{})
		rec := postJSON(t, mux(srv), "", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t,
			`{"jsonrpc":"2.0","error":{"code":-32000,"message":"Bad Request: No valid session ID provided"},"id":null}`,
			rec.Body.String())
	})

	t.Run("post with unknown session id is rejected", func(t *testing.T) {
		srv, _ := setupServer(t, &stubDispatcher{})
		rec := postJSON(t, mux(srv), "deadbeef", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp struct {
			Error *JSONRPCError   `json:"error"`
			ID    json.RawMessage `json:"id"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, JSONRPCNoSession, resp.Error.Code)
		assert.Equal(t, "null", string(resp.ID))
	})

	t.Run("get without session id is rejected", func(t *testing.T) {
		srv, _ := setupServer(t, &stubDispatcher{})
		req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
		rec := httptest.NewRecorder()
		mux(srv).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete without valid session id is rejected", func(t *testing.T) {
		srv, _ := setupServer(t, &stubDispatcher{})
		req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
		req.Header.Set("Mcp-Session-Id", "deadbeef")
		rec := httptest.NewRecorder()
		mux(srv).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete removes the session", func(t *testing.T) {
		srv, _ := setupServer(t, &stubDispatcher{})
		m := mux(srv)
		sessionID := initSession(t, m)

		req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
		req.Header.Set("Mcp-Session-Id", sessionID)
		rec := httptest.NewRecorder()
		m.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, 0, srv.SessionCount())

		// The session is gone for subsequent requests.
		rec2 := postJSON(t, m, sessionID, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
		assert.Equal(t, http.StatusBadRequest, rec2.Code)
	})
}

func TestToolsList(t *testing.T) {
	t.Run("returns unified names with schemas", func(t *testing.T) {
		srv, _ := setupServer(t, &stubDispatcher{})
		m := mux(srv)
		sessionID := initSession(t, m)

		rec := postJSON(t, m, sessionID, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Result struct {
				Tools []ToolInfo `json:"tools"`
			} `json:"result"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Result.Tools, 1)
		assert.Equal(t, "weather_get_forecast", resp.Result.Tools[0].Name)
		assert.JSONEq(t, `{"type":"object","properties":{"city":{"type":"string"}}}`,
			string(resp.Result.Tools[0].InputSchema))
	})

	t.Run("reflects child removal", func(t *testing.T) {
		srv, reg := setupServer(t, &stubDispatcher{})
		m := mux(srv)
		sessionID := initSession(t, m)

		reg.RemoveChild("weather")

		rec := postJSON(t, m, sessionID, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
		var resp struct {
			Result struct {
				Tools []ToolInfo `json:"tools"`
			} `json:"result"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.Result.Tools)
	})
}

func TestToolsCall(t *testing.T) {
	t.Run("forwards and returns the child result verbatim", func(t *testing.T) {
		childResult := `{"content":[{"type":"text","text":"sunny"}],"_meta":{"trace":"abc"}}`
		dispatcher := &stubDispatcher{
			callTool: func(name string, args json.RawMessage) (json.RawMessage, error) {
				assert.Equal(t, "weather_get_forecast", name)
				assert.JSONEq(t, `{"city":"Paris"}`, string(args))
				return json.RawMessage(childResult), nil
			},
		}
		srv, _ := setupServer(t, dispatcher)
		m := mux(srv)
		sessionID := initSession(t, m)

		rec := postJSON(t, m, sessionID,
			`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"weather_get_forecast","arguments":{"city":"Paris"}}}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Result json.RawMessage `json:"result"`
			ID     int             `json:"id"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 5, resp.ID)
		assert.JSONEq(t, childResult, string(resp.Result))
	})

	t.Run("dispatch failure becomes an MCP-shaped tool error", func(t *testing.T) {
		dispatcher := &stubDispatcher{
			callTool: func(string, json.RawMessage) (json.RawMessage, error) {
				return nil, errors.New("server unavailable: db")
			},
		}
		srv, _ := setupServer(t, dispatcher)
		m := mux(srv)
		sessionID := initSession(t, m)

		rec := postJSON(t, m, sessionID,
			`{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"weather_get_forecast","arguments":{}}}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Result struct {
				IsError bool `json:"isError"`
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"result"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Result.IsError)
		require.Len(t, resp.Result.Content, 1)
		assert.Contains(t, resp.Result.Content[0].Text, "server unavailable")
	})

	t.Run("missing tool name is invalid params", func(t *testing.T) {
		srv, _ := setupServer(t, &stubDispatcher{})
		m := mux(srv)
		sessionID := initSession(t, m)

		rec := postJSON(t, m, sessionID, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{}}`)
		var resp struct {
			Error *JSONRPCError `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, JSONRPCInvalidParams, resp.Error.Code)
	})
}

func TestResources(t *testing.T) {
	t.Run("list includes the stats resource first", func(t *testing.T) {
		srv, _ := setupServer(t, &stubDispatcher{})
		m := mux(srv)
		sessionID := initSession(t, m)

		rec := postJSON(t, m, sessionID, `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`)
		var resp struct {
			Result struct {
				Resources []ResourceInfo `json:"resources"`
			} `json:"result"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Result.Resources, 2)
		assert.Equal(t, registry.StatsURI, resp.Result.Resources[0].URI)
		assert.Equal(t, "weather_mem://status", resp.Result.Resources[1].URI)
	})

	t.Run("read forwards the unified uri", func(t *testing.T) {
		dispatcher := &stubDispatcher{
			readResource: func(uri string) (json.RawMessage, error) {
				assert.Equal(t, "weather_mem://status", uri)
				return json.RawMessage(`{"contents":[{"uri":"mem://status","text":"ok"}]}`), nil
			},
		}
		srv, _ := setupServer(t, dispatcher)
		m := mux(srv)
		sessionID := initSession(t, m)

		rec := postJSON(t, m, sessionID,
			`{"jsonrpc":"2.0","id":2,"method":"resources/read","params":{"uri":"weather_mem://status"}}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"ok"`)
	})
}

func TestPrompts(t *testing.T) {
	t.Run("get forwards name and arguments", func(t *testing.T) {
		dispatcher := &stubDispatcher{
			getPrompt: func(name string, args json.RawMessage) (json.RawMessage, error) {
				assert.Equal(t, "weather_summarize", name)
				return json.RawMessage(`{"messages":[]}`), nil
			},
		}
		srv, _ := setupServer(t, dispatcher)
		m := mux(srv)
		sessionID := initSession(t, m)

		rec := postJSON(t, m, sessionID,
			`{"jsonrpc":"2.0","id":3,"method":"prompts/get","params":{"name":"weather_summarize","arguments":{}}}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "messages")
	})
}

func TestProtocolEdges(t *testing.T) {
	t.Run("ping answers locally", func(t *testing.T) {
		srv, _ := setupServer(t, &stubDispatcher{})
		m := mux(srv)
		sessionID := initSession(t, m)

		rec := postJSON(t, m, sessionID, `{"jsonrpc":"2.0","id":9,"method":"ping"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":9,"result":{}}`, rec.Body.String())
	})

	t.Run("notifications are accepted with 202", func(t *testing.T) {
		srv, _ := setupServer(t, &stubDispatcher{})
		m := mux(srv)
		sessionID := initSession(t, m)

		rec := postJSON(t, m, sessionID, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("unknown method is -32601", func(t *testing.T) {
		srv, _ := setupServer(t, &stubDispatcher{})
		m := mux(srv)
		sessionID := initSession(t, m)

		rec := postJSON(t, m, sessionID, `{"jsonrpc":"2.0","id":4,"method":"tools/destroy"}`)
		var resp struct {
			Error *JSONRPCError `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, JSONRPCMethodNotFound, resp.Error.Code)
	})

	t.Run("invalid JSON body is a parse error", func(t *testing.T) {
		srv, _ := setupServer(t, &stubDispatcher{})
		rec := postJSON(t, mux(srv), "", `{not json`)
		var resp struct {
			Error *JSONRPCError `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, JSONRPCParseError, resp.Error.Code)
	})

	t.Run("handler panic becomes -32003 with request id", func(t *testing.T) {
		dispatcher := &stubDispatcher{
			callTool: func(string, json.RawMessage) (json.RawMessage, error) {
				panic("boom")
			},
		}
		srv, _ := setupServer(t, dispatcher)
		m := mux(srv)
		sessionID := initSession(t, m)

		rec := postJSON(t, m, sessionID,
			`{"jsonrpc":"2.0","id":11,"method":"tools/call","params":{"name":"weather_get_forecast"}}`)
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		var resp struct {
			Error *JSONRPCError `json:"error"`
			ID    int           `json:"id"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, JSONRPCServerError, resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "Internal server error")
		assert.Equal(t, 11, resp.ID)
	})
}

func TestSSEStream(t *testing.T) {
	t.Run("get streams events until the session is deleted", func(t *testing.T) {
		srv, _ := setupServer(t, &stubDispatcher{})
		m := mux(srv)

		ts := httptest.NewServer(m)
		defer ts.Close()

		// Initialize over the real server to get a session.
		initBody := `{"jsonrpc":"2.0","id":0,"method":"initialize","params":{}}`
		resp, err := http.Post(ts.URL+"/mcp", "application/json", strings.NewReader(initBody))
		require.NoError(t, err)
		resp.Body.Close()
		sessionID := resp.Header.Get("Mcp-Session-Id")
		require.NotEmpty(t, sessionID)

		req, err := http.NewRequest(http.MethodGet, ts.URL+"/mcp", nil)
		require.NoError(t, err)
		req.Header.Set("Mcp-Session-Id", sessionID)
		streamResp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer streamResp.Body.Close()
		require.Equal(t, http.StatusOK, streamResp.StatusCode)
		assert.Equal(t, "text/event-stream", streamResp.Header.Get("Content-Type"))

		// Push an event into the session and observe it on the stream.
		sess, ok := srv.sessions.get(sessionID)
		require.True(t, ok)
		require.True(t, sess.push([]byte(`{"jsonrpc":"2.0","method":"notifications/tools/list_changed"}`)))

		reader := bufio.NewReader(streamResp.Body)
		deadline := time.After(5 * time.Second)
		lineCh := make(chan string, 8)
		go func() {
			for {
				line, err := reader.ReadString('\n')
				if err != nil {
					close(lineCh)
					return
				}
				lineCh <- line
			}
		}()

		var sawData bool
		for !sawData {
			select {
			case line, ok := <-lineCh:
				if !ok {
					t.Fatal("stream closed before event arrived")
				}
				if strings.HasPrefix(line, "data: ") {
					assert.Contains(t, line, "list_changed")
					sawData = true
				}
			case <-deadline:
				t.Fatal("timed out waiting for SSE event")
			}
		}

		// Deleting the session ends the stream.
		delReq, err := http.NewRequest(http.MethodDelete, ts.URL+"/mcp", nil)
		require.NoError(t, err)
		delReq.Header.Set("Mcp-Session-Id", sessionID)
		delResp, err := http.DefaultClient.Do(delReq)
		require.NoError(t, err)
		delResp.Body.Close()

		closeDeadline := time.After(5 * time.Second)
		for {
			select {
			case _, ok := <-lineCh:
				if !ok {
					return // stream closed as expected
				}
			case <-closeDeadline:
				t.Fatal("stream did not close after session delete")
			}
		}
	})
}
