// Package feed pushes live dissected packets to websocket consumers.
//
// The feed is one-way: clients receive JSON messages and anything they send
// is read and discarded. Every client owns a bounded queue; when a slow client
// falls behind, packets for that client are dropped instead of stalling the
// capture loop.
package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"firestige.xyz/netcarve/internal/core"
	"firestige.xyz/netcarve/internal/log"
	"firestige.xyz/netcarve/internal/metrics"
)

const writeWait = 5 * time.Second

// Message types.
const (
	TypePacket         = "packet"
	TypeCaptureStarted = "capture_started"
	TypeCaptureStopped = "capture_stopped"
)

// Message is the envelope for everything sent to clients.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CaptureStatus is the payload of capture_started and capture_stopped.
type CaptureStatus struct {
	Interface string `json:"interface"`
	Packets   uint64 `json:"packets,omitempty"`
}

type client struct {
	conn   *websocket.Conn
	sendCh chan Message
	done   chan struct{}
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans messages out to every connected client.
type Hub struct {
	bufSize  int
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a hub whose clients buffer up to bufSize messages.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Hub{
		bufSize: bufSize,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and blocks until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.GetLogger().WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{
		conn:   conn,
		sendCh: make(chan Message, h.bufSize),
		done:   make(chan struct{}),
	}
	h.register(c)
	go h.writeLoop(c)
	h.readLoop(c)
}

// Publish queues pkt for every client. It never blocks.
func (h *Hub) Publish(pkt *core.CapturedPacket) {
	h.send(TypePacket, pkt)
}

// Notify sends a status message. Status messages displace the oldest queued
// packet when a client's queue is full.
func (h *Hub) Notify(msgType string, status CaptureStatus) {
	h.send(msgType, status)
}

// send encodes v and broadcasts it. Nothing is sent when v cannot be encoded.
func (h *Hub) send(msgType string, v interface{}) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		log.GetLogger().WithError(err).WithField("type", msgType).Debug("failed to encode feed message")
		return false
	}
	h.broadcast(Message{Type: msgType, Payload: payload})
	return true
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
	}
}

func (h *Hub) broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !enqueue(c, msg) {
			metrics.FeedDroppedTotal.Inc()
		}
	}
}

// enqueue reports whether msg was queued.
func enqueue(c *client, msg Message) bool {
	select {
	case c.sendCh <- msg:
		return true
	default:
	}
	if msg.Type == TypePacket {
		return false
	}

	select {
	case <-c.sendCh:
	default:
	}
	select {
	case c.sendCh <- msg:
		return true
	default:
		return false
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.FeedClients.Inc()
	log.GetLogger().WithFields(map[string]interface{}{
		"remote":  c.conn.RemoteAddr().String(),
		"clients": n,
	}).Info("feed client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		metrics.FeedClients.Dec()
		log.GetLogger().WithField("remote", c.conn.RemoteAddr().String()).Info("feed client disconnected")
	}
}

// readLoop discards inbound frames; it exists to notice close frames.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.unregister(c)
		c.close()
	}()

	go func() {
		<-c.done
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}
