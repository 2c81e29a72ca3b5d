// Package server provides the session transport: WebSocket connections,
// the agent session registry and event fan-out.
package server

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/moltchess/arena/pkg/messages"
)

// Channel is the ordered, reliable message channel the coordinator
// speaks to. Connections implement it; tests substitute fakes.
type Channel interface {
	SendJSON(v interface{}) error
	Close(code int, reason string)
}

var (
	errConnClosed = errors.New("connection closed")
	errSendFull   = errors.New("send buffer full")
)

// Connection wraps a WebSocket with a buffered outbound queue.
type Connection struct {
	ID uuid.UUID

	ws   *websocket.Conn
	send chan []byte // buffered channel of outbound messages

	mu        sync.Mutex // guards closed
	closed    bool
	closeOnce sync.Once

	logger *zap.Logger
}

// NewConnection wraps an upgraded WebSocket.
func NewConnection(ws *websocket.Conn, logger *zap.Logger) *Connection {
	return &Connection{
		ID:     uuid.New(),
		ws:     ws,
		send:   make(chan []byte, 256),
		logger: logger,
	}
}

// WritePump drains the send queue onto the socket. It exits when the
// connection closes.
func (c *Connection) WritePump() {
	defer c.ws.Close()

	for message := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
			c.logger.Debug("write error", zap.Error(err))
			return
		}
	}
}

// SendJSON queues a message for delivery. It never blocks: a full
// buffer or a closed connection returns an error, which callers treat
// as a transport failure.
func (c *Connection) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendFull
	}
}

// Close sends a close frame with the given code and tears the
// connection down. Safe to call more than once.
func (c *Connection) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		frame := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, frame, time.Now().Add(time.Second))
		_ = c.ws.Close()
		close(c.send)
	})
}

// ReadAuth reads one message under a deadline, for the credential
// handshake on connections without an api_key parameter.
func (c *Connection) ReadAuth(timeout time.Duration) (messages.Inbound, error) {
	var msg messages.Inbound

	if err := c.ws.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return msg, err
	}
	defer c.ws.SetReadDeadline(time.Time{})

	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, err
	}
	return msg, nil
}

// ReadLoop delivers inbound messages to the handler until the socket
// errors. Malformed JSON is answered with an error event and the
// session survives.
func (c *Connection) ReadLoop(handle func(messages.Inbound)) {
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Debug("read error", zap.Error(err))
			return
		}

		var msg messages.Inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			_ = c.SendJSON(messages.NewError("malformed message"))
			continue
		}
		handle(msg)
	}
}
