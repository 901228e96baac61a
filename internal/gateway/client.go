package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/nextlevelbuilder/relaybus/internal/broker"
	"github.com/nextlevelbuilder/relaybus/internal/policy"
	"github.com/nextlevelbuilder/relaybus/internal/session"
	"github.com/nextlevelbuilder/relaybus/internal/validate"
	"github.com/nextlevelbuilder/relaybus/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	sendBufferSize = 64
)

// Client wraps one upgraded WebSocket connection: a read pump that
// decodes and validates inbound frames through a Session, and a write
// pump draining a buffered channel that also serves as the Session's
// reply sink (spec.md §3's "reply_sink" — the outbound half of a
// connection, shared between session and broker).
type Client struct {
	id      string
	role    string
	conn    *websocket.Conn
	server  *Server
	session *session.Session
	send    chan []byte
	logger  *slog.Logger
}

// NewClient mints a connection id, builds the Session bound to role,
// and wires the Session's reply sink to this client's outbound buffer.
func NewClient(conn *websocket.Conn, role string, p *policy.Policy, b *broker.Broker, s *Server) *Client {
	id := uuid.NewString()
	c := &Client{
		id:     id,
		role:   role,
		conn:   conn,
		server: s,
		send:   make(chan []byte, sendBufferSize),
		logger: s.logger,
	}
	c.session = session.New(id, role, p, b, c.deliver, s.logger, s.tracer)
	return c
}

// deliver is the Session's reply sink: it encodes a broker Delivery
// onto the wire and queues it for the write pump. A full send buffer
// means this connection is too slow to keep up — it is treated as
// failed delivery (spec.md §4.3 "Failure semantics") rather than
// blocking the broker.
func (c *Client) deliver(d broker.Delivery) error {
	raw, err := protocol.EncodeDelivery(d.Kind, d.Channel, d.Payload)
	if err != nil {
		return err
	}
	select {
	case c.send <- raw:
		return nil
	default:
		return errSendBufferFull
	}
}

// sendError queues a structured error frame for channel, never
// blocking — errors are best-effort and must not stall the read pump.
func (c *Client) sendError(channel string, reason, message string) {
	frame := protocol.NewErrorFrame(channel, validate.Reason(reason), message)
	raw, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("gateway: failed to encode error frame", "error", err)
		return
	}
	select {
	case c.send <- raw:
	default:
		c.logger.Warn("gateway: dropping error frame, send buffer full", "conn", c.id)
	}
}

// readPump decodes each inbound text frame, validates and routes it
// through the session, and reports any rejection back to the sender —
// per spec.md §7's error taxonomy, a rejected frame never closes the
// connection.
func (c *Client) readPump(rateLimiter *RateLimiter) {
	defer c.close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		if !rateLimiter.Allow(c.id) {
			c.sendError("", "RateLimited", "too many frames; slow down")
			continue
		}

		msg, err := protocol.DecodeMessage(raw, c.policy())
		if err != nil {
			c.sendError("", protocol.ReasonDecodeError, err.Error())
			continue
		}

		if err := c.session.HandleFrame(context.Background(), msg); err != nil {
			reason, _ := validate.ReasonOf(err)
			c.sendError(msg.Channel, string(reason), err.Error())
			c.server.recordDeliveryFailure(c.id, msg.Channel, string(reason))
		}
	}
}

func (c *Client) policy() *policy.Policy {
	return c.server.currentPolicy()
}

// writePump drains the send buffer to the socket and emits periodic
// pings so a dead peer is detected within pongWait.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close tears the session down in the broker and releases resources.
// Safe to call once; readPump's defer is the only caller.
func (c *Client) close() {
	owned := c.server.broker.ChannelsFor(c.id)
	c.session.Close()
	c.server.recordDisconnect(c.id, owned)
	c.server.rateLimiter.Remove(c.id)
	close(c.send)
}

var errSendBufferFull = sendBufferFullError{}

type sendBufferFullError struct{}

func (sendBufferFullError) Error() string { return "send buffer full" }
