package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go-subscription-ws/internal/infrastructure/logger"
)

// ErrConnectionClosed is returned by Send once the connection is closed.
var ErrConnectionClosed = errors.New("websocket connection is closed")

// WebSocketConfig holds the transport timings of a connection.
type WebSocketConfig struct {
	// Binary sends outbound frames as binary instead of text messages.
	Binary       bool
	WriteTimeout time.Duration
	PongTimeout  time.Duration
	// PingPeriod must be shorter than PongTimeout.
	PingPeriod time.Duration
	SendBuffer int
}

// DefaultWebSocketConfig returns the timings used when none are configured.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteTimeout: 10 * time.Second,
		PongTimeout:  60 * time.Second,
		PingPeriod:   54 * time.Second,
		SendBuffer:   256,
	}
}

// WebSocketConnection implements Connection on top of a gorilla websocket.
// All writes happen on the write pump; all reads on the read pump.
type WebSocketConnection struct {
	id   string
	conn *websocket.Conn
	cfg  WebSocketConfig

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	logger logger.Logger

	// Message sending channel
	send chan []byte
	// closing carries the close frame to the write pump
	closing    chan []byte
	writerDone chan struct{}
	started    bool

	// Keep-alive mechanism
	lastActivity time.Time
	activityMu   sync.RWMutex
}

// NewWebSocketConnection wraps an upgraded websocket. Call Start to run the pumps.
func NewWebSocketConnection(
	id string,
	conn *websocket.Conn,
	cfg WebSocketConfig,
	logger logger.Logger,
) *WebSocketConnection {
	ctx, cancel := context.WithCancel(context.Background())

	defaults := DefaultWebSocketConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaults.PongTimeout
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongTimeout {
		cfg.PingPeriod = cfg.PongTimeout * 9 / 10
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaults.SendBuffer
	}

	return &WebSocketConnection{
		id:           id,
		conn:         conn,
		cfg:          cfg,
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger.WithField("connection_id", id),
		send:         make(chan []byte, cfg.SendBuffer),
		closing:      make(chan []byte, 1),
		writerDone:   make(chan struct{}),
		lastActivity: time.Now(),
	}
}

// Start runs the read and write pumps. Inbound frames go to handler.
func (c *WebSocketConnection) Start(handler FrameHandler) {
	c.closedMu.Lock()
	if c.started || c.closed {
		c.closedMu.Unlock()
		return
	}
	c.started = true
	c.closedMu.Unlock()

	c.setupWebSocket()

	go c.writePump()
	go c.readPump(handler)
}

// ID returns unique connection identifier
func (c *WebSocketConnection) ID() string {
	return c.id
}

// Type returns the connection type
func (c *WebSocketConnection) Type() string {
	return "websocket"
}

// Subprotocol returns the negotiated websocket sub-protocol.
func (c *WebSocketConnection) Subprotocol() string {
	return c.conn.Subprotocol()
}

// LastActivity returns when a frame or pong was last seen.
func (c *WebSocketConnection) LastActivity() time.Time {
	c.activityMu.RLock()
	defer c.activityMu.RUnlock()
	return c.lastActivity
}

// Send queues a frame for the write pump. It blocks while the send buffer is
// full, until ctx is done or the connection closes.
func (c *WebSocketConnection) Send(ctx context.Context, frame []byte) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	select {
	case c.send <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close flushes queued frames, writes a close frame with code and reason,
// and terminates the socket.
func (c *WebSocketConnection) Close(code int, reason string) error {
	c.closedMu.Lock()
	if c.closed {
		c.closedMu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	c.closedMu.Unlock()

	closeFrame := websocket.FormatCloseMessage(code, reason)
	if started {
		c.closing <- closeFrame
		select {
		case <-c.writerDone:
		case <-time.After(c.cfg.WriteTimeout):
			c.logger.Warn("write pump did not finish before close")
		}
	} else {
		c.conn.WriteControl(websocket.CloseMessage, closeFrame, time.Now().Add(c.cfg.WriteTimeout))
	}

	c.cancel()
	err := c.conn.Close()

	c.logger.Infof("WebSocket connection closed (code %d)", code)
	return err
}

// IsClosed returns true if connection is closed
func (c *WebSocketConnection) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// Context returns the connection's context (for cancellation)
func (c *WebSocketConnection) Context() context.Context {
	return c.ctx
}

// setupWebSocket configures WebSocket connection settings
func (c *WebSocketConnection) setupWebSocket() {
	// Set read deadline and pong handler for keep-alive
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.updateActivity()
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		return nil
	})
}

func (c *WebSocketConnection) messageType() int {
	if c.cfg.Binary {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// writePump handles sending messages to the WebSocket connection
func (c *WebSocketConnection) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				c.logger.Errorf("Failed to write message: %v", err)
				return
			}

		case closeFrame := <-c.closing:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.CloseMessage, closeFrame); err != nil {
				c.logger.Debugf("Failed to write close frame: %v", err)
			}
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Errorf("Failed to send ping: %v", err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// flush writes every frame already queued so a close never overtakes them.
func (c *WebSocketConnection) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				c.logger.Debugf("Failed to flush message: %v", err)
				return
			}
		default:
			return
		}
	}
}

func (c *WebSocketConnection) write(frame []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(c.messageType(), frame); err != nil {
		return err
	}
	c.updateActivity()
	return nil
}

// readPump hands inbound data frames to handler in arrival order.
func (c *WebSocketConnection) readPump(handler FrameHandler) {
	defer func() {
		c.Close(websocket.CloseNormalClosure, "")
		handler.HandleClose()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure,
			) {
				c.logger.Errorf("WebSocket error: %v", err)
			}
			return
		}

		c.updateActivity()

		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			handler.HandleMessage(data)
		}
	}
}

// updateActivity updates the last activity timestamp
func (c *WebSocketConnection) updateActivity() {
	c.activityMu.Lock()
	c.lastActivity = time.Now()
	c.activityMu.Unlock()
}
