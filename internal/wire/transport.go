// ABOUTME: Line-framed JSON-RPC transport over a pair of byte streams.
// ABOUTME: Buffers partial reads, splits on newline, and decodes one message per line.

package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrTransportClosed indicates a send was attempted after the transport closed.
var ErrTransportClosed = errors.New("transport closed")

const readChunkSize = 4096

// Transport reads and writes newline-delimited JSON messages over a pair of
// byte streams. Inbound bytes are buffered so messages split across reads are
// reassembled; a malformed line is reported via the error callback and the
// transport keeps going.
type Transport struct {
	reader io.Reader
	writer io.Writer

	onMessage func(*Message)
	onError   func(error)
	onClose   func()

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewTransport creates a transport over the given streams. Callbacks must be
// set before Start. The transport takes ownership of both streams: Close
// closes whichever of them implement io.Closer.
func NewTransport(reader io.Reader, writer io.Writer) *Transport {
	return &Transport{
		reader: reader,
		writer: writer,
		closed: make(chan struct{}),
	}
}

// OnMessage sets the callback invoked for every decoded inbound message.
func (t *Transport) OnMessage(fn func(*Message)) { t.onMessage = fn }

// OnError sets the callback invoked for inbound decode failures.
func (t *Transport) OnError(fn func(error)) { t.onError = fn }

// OnClose sets the callback invoked exactly once when the transport closes,
// whether by Close or by the inbound stream ending.
func (t *Transport) OnClose(fn func()) { t.onClose = fn }

// Start launches the read loop. It returns immediately.
func (t *Transport) Start() {
	go t.readLoop()
}

// Send serializes the message, appends a newline, and writes it to the
// outbound stream. The write blocks until the stream accepts it, which is
// how backpressure propagates to callers.
func (t *Transport) Send(msg *Message) error {
	select {
	case <-t.closed:
		return ErrTransportClosed
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// Close shuts the transport down. Both streams are closed if they support it
// and the close callback fires exactly once.
func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		close(t.closed)
		if c, ok := t.reader.(io.Closer); ok {
			_ = c.Close()
		}
		if c, ok := t.writer.(io.Closer); ok {
			_ = c.Close()
		}
		if t.onClose != nil {
			t.onClose()
		}
	})
}

// Done returns a channel closed when the transport has closed.
func (t *Transport) Done() <-chan struct{} {
	return t.closed
}

func (t *Transport) readLoop() {
	defer t.Close()

	var buf []byte
	chunk := make([]byte, readChunkSize)
	for {
		n, err := t.reader.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			buf = t.drainLines(buf)
		}
		if err != nil {
			// A trailing unterminated line is discarded: the peer is gone
			// and a partial message cannot be decoded reliably.
			return
		}
		select {
		case <-t.closed:
			return
		default:
		}
	}
}

// drainLines extracts every complete line from buf, delivers the decoded
// messages, and returns the unterminated tail for the next read.
func (t *Transport) drainLines(buf []byte) []byte {
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			return buf
		}
		line := bytes.TrimSpace(buf[:idx])
		buf = buf[idx+1:]
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			if t.onError != nil {
				t.onError(fmt.Errorf("decoding line: %w", err))
			}
			continue
		}

		if len(msg.Result) > 0 {
			msg.Result = coerceStructuredContent(msg.Result)
		}
		if t.onMessage != nil {
			t.onMessage(&msg)
		}
	}
}

// coerceStructuredContent rewrites result.structuredContent from JSON null
// to an empty object. Some children emit null where the schema expects an
// object; the rewrite is limited to that one position so other nulls are
// preserved exactly.
func coerceStructuredContent(result json.RawMessage) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(result, &fields); err != nil {
		return result
	}
	raw, ok := fields["structuredContent"]
	if !ok || !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return result
	}
	fields["structuredContent"] = json.RawMessage("{}")
	rewritten, err := json.Marshal(fields)
	if err != nil {
		return result
	}
	return rewritten
}
