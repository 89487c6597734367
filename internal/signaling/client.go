package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/webdrop/internal/dns"
	"github.com/BioHazard786/webdrop/internal/relay"
	"github.com/BioHazard786/webdrop/internal/transfer"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	// ConnectTimeout bounds the websocket handshake with the relay.
	ConnectTimeout = 10 * time.Second
)

// Client manages the websocket connection to the relay. A Client connects
// once; after Close or a dropped connection a new Client is needed and room
// membership is lost.
type Client struct {
	serverURL  string
	clientType string
	log        *slog.Logger

	conn     *websocket.Conn
	outgoing chan *relay.Message
	signals  chan json.RawMessage
	events   chan Event
	done     chan struct{}
	closed   chan struct{}

	closeOnce sync.Once
}

// NewClient creates a client for the relay at serverURL. clientType is
// announced to the other peer on create and join.
func NewClient(serverURL, clientType string, log *slog.Logger) *Client {
	return &Client{
		serverURL:  serverURL,
		clientType: clientType,
		log:        log,
		outgoing:   make(chan *relay.Message, 16),
		signals:    make(chan json.RawMessage, 32),
		events:     make(chan Event, 8),
		done:       make(chan struct{}),
		closed:     make(chan struct{}),
	}
}

// Connect establishes the websocket connection. It fails with
// transfer.ErrTimeout when the relay does not answer within ConnectTimeout.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return transfer.WrapError("connect", transfer.ErrSignalingError, fmt.Sprintf("invalid relay URL: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{
		NetDialContext:   dns.DialContext,
		HandshakeTimeout: ConnectTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return transfer.NewError("connect", transfer.ErrTimeout)
		}
		return transfer.WrapError("connect", transfer.ErrSignalingError, err.Error())
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	c.log.Debug("connected to relay", "url", c.serverURL)
	return nil
}

// readPump routes inbound messages: negotiation payloads to Signals, room
// notifications to Events.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.signals)
		close(c.events)
		close(c.closed)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg relay.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				c.log.Debug("relay connection lost", "err", err)
			}
			return
		}

		if msg.Type == relay.TypeSignal {
			select {
			case c.signals <- msg.Signal:
			case <-c.done:
				return
			}
			continue
		}

		select {
		case c.events <- newEvent(&msg):
		case <-c.done:
			return
		}
	}
}

// writePump writes queued messages and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.log.Debug("relay write failed", "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closed:
			return

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) send(ctx context.Context, msg *relay.Message) error {
	if c.conn == nil {
		return transfer.NewError("send "+msg.Type, transfer.ErrChannelNotOpen)
	}
	select {
	case <-c.done:
		return transfer.NewError("send "+msg.Type, transfer.ErrChannelClosed)
	case <-c.closed:
		return transfer.NewError("send "+msg.Type, transfer.ErrChannelClosed)
	default:
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return transfer.NewError("send "+msg.Type, transfer.ErrChannelClosed)
	case <-c.closed:
		return transfer.NewError("send "+msg.Type, transfer.ErrChannelClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateRoom asks the relay to register code with this connection as host.
func (c *Client) CreateRoom(ctx context.Context, code string) error {
	return c.send(ctx, &relay.Message{Type: relay.TypeCreateRoom, RoomID: code, ClientType: c.clientType})
}

// JoinRoom asks the relay to pair this connection with the host of code.
func (c *Client) JoinRoom(ctx context.Context, code string) error {
	return c.send(ctx, &relay.Message{Type: relay.TypeJoinRoom, RoomID: code, ClientType: c.clientType})
}

// SendSignal relays an opaque negotiation payload to the other member of code.
func (c *Client) SendSignal(ctx context.Context, code string, payload json.RawMessage) error {
	return c.send(ctx, &relay.Message{Type: relay.TypeSignal, RoomID: code, Signal: payload})
}

// Signals delivers negotiation payloads from the other peer. It is closed
// when the connection ends.
func (c *Client) Signals() <-chan json.RawMessage {
	return c.signals
}

// Events delivers room notifications. It is closed when the connection ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Disconnected is closed once the connection to the relay has ended.
func (c *Client) Disconnected() <-chan struct{} {
	return c.closed
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn == nil {
			close(c.signals)
			close(c.events)
			close(c.closed)
		}
	})
}

// Room binds the client to one room so it can carry a peer connection's
// negotiation.
func (c *Client) Room(code string) *RoomSignaler {
	return &RoomSignaler{client: c, code: code}
}

// RoomSignaler sends and receives negotiation payloads for a single room.
type RoomSignaler struct {
	client *Client
	code   string
}

func (s *RoomSignaler) Send(ctx context.Context, payload json.RawMessage) error {
	return s.client.SendSignal(ctx, s.code, payload)
}

func (s *RoomSignaler) Signals() <-chan json.RawMessage {
	return s.client.Signals()
}
