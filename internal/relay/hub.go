package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultSweepInterval is how often the hub looks for expired rooms.
const DefaultSweepInterval = time.Minute

// Hub is the central brain of the relay. Its Run goroutine is the only
// goroutine that touches rooms and clients.
type Hub struct {
	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Broadcast is a channel for inbound client messages.
	Broadcast chan *Message

	stats chan chan int
	done  chan struct{}

	clients       map[string]*Client
	registry      *Registry
	sweepInterval time.Duration
	now           func() time.Time
	log           *slog.Logger
}

// NewHub creates a hub whose rooms live for ttl and are swept every
// sweepInterval. Zero values select the defaults.
func NewHub(log *slog.Logger, ttl, sweepInterval time.Duration) *Hub {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Hub{
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		Broadcast:     make(chan *Message),
		stats:         make(chan chan int),
		done:          make(chan struct{}),
		clients:       make(map[string]*Client),
		registry:      NewRegistry(log, ttl),
		sweepInterval: sweepInterval,
		now:           time.Now,
		log:           log,
	}
}

// Run starts the hub's processing loop and blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.sweepInterval)
	defer func() {
		ticker.Stop()
		close(h.done)
		for id, c := range h.clients {
			close(c.Send)
			delete(h.clients, id)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.clients[client.ID] = client
			h.log.Debug("client registered", "conn", client.ID, "addr", client.Conn.RemoteAddr())

		case client := <-h.Unregister:
			h.drop(client.ID)

		case message := <-h.Broadcast:
			h.handle(message)

		case <-ticker.C:
			h.deliver(h.registry.SweepExpired(h.now()))

		case reply := <-h.stats:
			reply <- h.registry.Count()
		}
	}
}

// Rooms returns the number of live rooms.
func (h *Hub) Rooms(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	select {
	case h.stats <- reply:
	case <-h.done:
		return 0, ErrHubStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Serve registers a client for conn and starts its pumps.
func (h *Hub) Serve(conn *websocket.Conn) {
	c := NewClient(h, conn)
	if !h.registerClient(c) {
		conn.Close()
		return
	}
	go c.WritePump()
	go c.ReadPump()
}

func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) dispatchInbound(m *Message) bool {
	select {
	case h.Broadcast <- m:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) handle(m *Message) {
	from := m.client
	if _, ok := h.clients[from.ID]; !ok {
		return
	}

	var (
		out []Envelope
		err error
	)
	switch m.Type {
	case TypeCreateRoom:
		out, err = h.registry.CreateRoom(m.RoomID, from.ID, m.ClientType, h.now())
	case TypeJoinRoom:
		out, err = h.registry.JoinRoom(m.RoomID, from.ID, m.ClientType)
	case TypeSignal:
		out, err = h.registry.RelaySignal(from.ID, m.RoomID, m.Signal)
	default:
		h.log.Warn("unknown message type", "type", m.Type, "conn", from.ID)
		out = []Envelope{{To: from.ID, Msg: &Message{Type: TypeError, Payload: errorPayload("unknown message type")}}}
	}
	if err != nil {
		h.log.Debug("request rejected", "type", m.Type, "room", m.RoomID, "conn", from.ID, "err", err)
	}
	h.deliver(out)
}

// deliver hands each envelope to its recipient's send queue. A recipient
// whose queue is full is disconnected.
func (h *Hub) deliver(out []Envelope) {
	for len(out) > 0 {
		env := out[0]
		out = out[1:]

		c, ok := h.clients[env.To]
		if !ok {
			continue
		}
		select {
		case c.Send <- env.Msg:
		default:
			h.log.Warn("send queue full, dropping client", "conn", c.ID)
			out = append(out, h.evict(c.ID)...)
		}
	}
}

func (h *Hub) drop(id string) {
	h.deliver(h.evict(id))
}

func (h *Hub) evict(id string) []Envelope {
	c, ok := h.clients[id]
	if !ok {
		return nil
	}
	delete(h.clients, id)
	close(c.Send)
	h.log.Debug("client unregistered", "conn", id)
	return h.registry.HandleDisconnect(id)
}
