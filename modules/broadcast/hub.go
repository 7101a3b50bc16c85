package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/example/relay-chat/events"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
)

// Per-client write limits.
const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
)

// Sink is the write side of a client connection.
type Sink interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// RosterSource resolves the local members of a room.
type RosterSource interface {
	MemberIDs(room string) []string
}

// Client represents a connected WebSocket client.
type Client struct {
	ID   string
	Conn Sink

	send    chan []byte
	done    chan struct{}
	dropped bool
}

// unregisterRequest asks the Run loop to remove a client; the loop replies
// with the removed client, or nil.
type unregisterRequest struct {
	id    string
	reply chan *Client
}

// delivery is one envelope addressed to a resolved set of clients.
type delivery struct {
	recipients []string
	env        events.Envelope
}

// Hub owns the connections held by this process. The Run loop fans
// deliveries out to per-client queues in emit order; each client has its own
// writer, so a slow reader only ever delays itself.
type Hub struct {
	clients    map[string]*Client // clientID -> Client
	roster     RosterSource
	register   chan *Client
	unregister chan unregisterRequest
	broadcast  chan delivery
	done       chan struct{}
	writers    sync.WaitGroup
	mu         sync.RWMutex
	logger     types.Logger
}

// NewHub creates a new Hub. Room recipients are resolved through roster.
func NewHub(roster RosterSource, logger types.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		roster:     roster,
		register:   make(chan *Client),
		unregister: make(chan unregisterRequest),
		broadcast:  make(chan delivery, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop. It accepts a context for graceful shutdown.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllClients()
			h.writers.Wait()
			close(h.done)
			return
		case client := <-h.register:
			h.handleRegister(client)
		case req := <-h.unregister:
			req.reply <- h.handleUnregister(req.id)
		case d := <-h.broadcast:
			h.handleDelivery(d)
		}
	}
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

// closeAllClients closes all connected client connections.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		h.dropLocked(client)
	}
	h.clients = make(map[string]*Client)
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	h.writers.Add(1)
	go h.writePump(client)
	h.logger.Debug("Client registered", "connectionId", client.ID)
}

func (h *Hub) handleUnregister(id string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[id]
	if !ok {
		return nil
	}
	delete(h.clients, id)
	if !client.dropped {
		close(client.send)
	}
	h.logger.Debug("Client unregistered", "connectionId", id)
	return client
}

func (h *Hub) handleDelivery(d delivery) {
	data, err := json.Marshal(d.env)
	if err != nil {
		h.logger.Error("Failed to marshal envelope", "type", d.env.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range d.recipients {
		client, ok := h.clients[id]
		if !ok || client.dropped {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.Warn("Client send queue full, disconnecting", "connectionId", client.ID)
			h.dropLocked(client)
		}
	}
}

// dropLocked stops a client's writer and closes its connection. The entry
// stays until Unregister so the owner can still wait for the writer.
// h.mu must be held.
func (h *Hub) dropLocked(client *Client) {
	if client.dropped {
		return
	}
	client.dropped = true
	close(client.send)
	_ = client.Conn.Close()
}

// writePump writes queued frames to one client until its queue is closed.
func (h *Hub) writePump(client *Client) {
	defer h.writers.Done()
	defer close(client.done)

	for data := range client.send {
		_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn("Failed to send to client", "connectionId", client.ID, "error", err)
		}
	}
}

func (h *Hub) enqueue(d delivery) {
	if len(d.recipients) == 0 {
		return
	}
	select {
	case h.broadcast <- d:
	case <-h.done:
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	client.send = make(chan []byte, clientSendBuffer)
	client.done = make(chan struct{})
	select {
	case h.register <- client:
	case <-h.done:
		_ = client.Conn.Close()
	}
}

// Unregister removes a client from the hub. It returns once the client's
// writer has stopped, so the connection is no longer written to.
func (h *Hub) Unregister(clientID string) {
	req := unregisterRequest{id: clientID, reply: make(chan *Client, 1)}
	select {
	case h.unregister <- req:
	case <-h.done:
		// Run waits for every writer before it stops.
		return
	}
	if client := <-req.reply; client != nil {
		<-client.done
	}
}

// EmitTo sends env to a single connection.
func (h *Hub) EmitTo(connectionID string, env events.Envelope) {
	h.enqueue(delivery{recipients: []string{connectionID}, env: env})
}

// EmitToRoom sends env to the room's local members, skipping except.
// Members are resolved now, so a connection that joins afterwards does not
// receive it.
func (h *Hub) EmitToRoom(room string, env events.Envelope, except ...string) {
	ids := h.roster.MemberIDs(room)
	if len(except) > 0 {
		kept := ids[:0]
		for _, id := range ids {
			if !contains(except, id) {
				kept = append(kept, id)
			}
		}
		ids = kept
	}
	h.enqueue(delivery{recipients: ids, env: env})
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HasClient reports whether clientID is registered.
func (h *Hub) HasClient(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[clientID]
	return ok
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
