// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chathub/internal/hub"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Submitter is the part of the hub a connection talks to.
type Submitter interface {
	Submit(ctx context.Context, handle hub.Handle, raw []byte) error
}

// frame is one queued outbound WebSocket message.
type frame struct {
	messageType int
	data        []byte
}

// Client is one WebSocket connection. It forwards text frames to the hub and
// implements hub.Handle so the hub can deliver to it.
type Client struct {
	id          string
	conn        *websocket.Conn
	send        chan frame
	done        chan struct{}
	closeOnce   sync.Once
	hub         Submitter
	addr        string
	log         *slog.Logger
	maxMessage  int64
	rateLimiter *rateLimiter
	cfg         Config
}

// NewClient creates a new Client for conn. The outbound buffer holds
// cfg.SendBufferSize frames; once it is full the client is closed.
func NewClient(conn *websocket.Conn, h Submitter, addr string, log *slog.Logger, cfg Config) *Client {
	if conn != nil {
		conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	id := uuid.NewString()

	return &Client{
		id:          id,
		conn:        conn,
		send:        make(chan frame, max(cfg.SendBufferSize, 1)),
		done:        make(chan struct{}),
		hub:         h,
		addr:        addr,
		log:         log.With("conn", id, "addr", addr),
		maxMessage:  int64(cfg.MaxMessageSize),
		rateLimiter: newRateLimiter(cfg.RateLimitBurst, cfg.RateLimitRefill),
		cfg:         cfg,
	}
}

// ID returns the connection identifier used in logs.
func (c *Client) ID() string {
	return c.id
}

// Deliver queues a text frame without blocking. It fails once the client is
// closed, and closes the client when its buffer is full.
func (c *Client) Deliver(payload []byte) error {
	return c.enqueue(frame{messageType: websocket.TextMessage, data: payload})
}

func (c *Client) enqueue(f frame) error {
	select {
	case <-c.done:
		return hub.ErrDeliveryFailed
	default:
	}

	select {
	case c.send <- f:
		return nil
	default:
		c.log.Warn("Send buffer full, closing connection", "buffer", cap(c.send))
		c.Close()
		return fmt.Errorf("%w: send buffer full", hub.ErrDeliveryFailed)
	}
}

// Close marks the client as gone. The write pump sends a close frame and
// tears the socket down. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Error("Error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// logReadError reports why the read loop ended at the right level.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Message exceeded maximum size", "limit", c.maxMessage)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("Client disconnected", "error", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("Client connection closed", "error", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn("Unexpected WebSocket close", "error", err)
	default:
		c.log.Warn("WebSocket read error", "error", err)
	}
}

// checkRateLimit reports whether the next frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.log.Warn("Rate limit exceeded; discarding frame", "burst", c.cfg.RateLimitBurst, "interval", c.cfg.RateLimitRefill)
		return false
	}
	return true
}

// readPump forwards text frames to the hub until the socket fails. Binary
// frames are echoed back and never reach the hub.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.Close()
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if messageType == websocket.BinaryMessage {
			if err := c.enqueue(frame{messageType: websocket.BinaryMessage, data: raw}); err != nil {
				return
			}
			continue
		}

		if !c.checkRateLimit() {
			continue
		}

		if err := c.hub.Submit(ctx, c, raw); err != nil {
			c.log.Info("Hub refused frame, closing connection", "error", err)
			return
		}
	}
}

// writePump drains the send buffer to the socket and keeps the connection
// alive with pings. It returns once the client is closed, a write fails, or
// ctx is done.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.closeConnection()
	}()

	for {
		select {
		case f := <-c.send:
			if !c.write(f) {
				return
			}
		case <-ticker.C:
			if !c.ping() {
				return
			}
		case <-c.done:
			c.drain()
			c.writeCloseMessage()
			return
		case <-ctx.Done():
			c.drain()
			c.writeCloseMessage()
			return
		}
	}
}

// drain writes the frames still queued so a closing client receives
// everything delivered before it was closed.
func (c *Client) drain() {
	for {
		select {
		case f := <-c.send:
			if !c.write(f) {
				return
			}
		default:
			return
		}
	}
}

// write sends one frame and returns false if the connection should be closed.
func (c *Client) write(f frame) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Error("Error setting write deadline", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(f.messageType, f.data); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing message", "error", err)
		}
		return false
	}
	return true
}

// ping sends a ping message to keep the connection alive
func (c *Client) ping() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Error("Error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn("Error writing ping message", "error", err)
		return false
	}
	return true
}

func (c *Client) writeCloseMessage() {
	deadline := time.Now().Add(writeWait)
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	if err != nil && !isExpectedCloseError(err) {
		c.log.Warn("Error writing close message", "error", err)
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("Error closing connection", "error", err)
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "broken pipe")
}
