package telephony

import (
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn wraps one media-stream WebSocket. Writes are serialized because
// gorilla/websocket allows only one concurrent writer; the close state
// is tracked so late writers see a closed connection instead of a
// panic on a freed socket.
type Conn struct {
	id string
	ws *websocket.Conn

	writeMu   sync.Mutex
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewConn wraps a WebSocket connection under the given provisional id.
func NewConn(id string, ws *websocket.Conn) *Conn {
	return &Conn{id: id, ws: ws}
}

// ID returns the connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// IsOpen reports whether the connection can still accept writes.
func (c *Conn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// WriteMessage writes one serialized wire message. Writing to a closed
// connection returns io.ErrClosedPipe; the caller treats that as a
// dropped frame.
func (c *Conn) WriteMessage(data []byte) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return io.ErrClosedPipe
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// ReadMessage reads the next wire message from the socket.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// Close marks the connection closed and closes the socket. Safe to
// call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		_ = c.ws.Close()
	})
	return nil
}
