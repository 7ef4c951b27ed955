// ABOUTME: JSON-RPC 2.0 message types shared by the child transport and client.
// ABOUTME: Messages are newline-delimited JSON objects on the child's stdio pipes.

package wire

import (
	"encoding/json"
	"fmt"
)

// Message is a single JSON-RPC 2.0 message: request, response, or notification.
// Requests carry Method and ID; notifications carry Method without ID;
// responses carry ID with either Result or Error.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface so child-returned errors can be
// wrapped and matched by callers.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// IsResponse reports whether the message is a response (carries an id but
// no method). Whether a result or an error is present is not checked.
func (m *Message) IsResponse() bool {
	return len(m.ID) > 0 && m.Method == ""
}

// IsNotification reports whether the message is a notification (method
// without an id).
func (m *Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}
