package events

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/pagebound/jacket/util/log"
)

// Hub bridges the broker to websocket clients: every published cover
// update is written as one JSON frame to every connected client.
type Hub struct {
	broker   *Broker
	upgrader websocket.Upgrader

	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex

	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a hub attached to the given broker.
func NewHub(b *Broker) *Hub {
	return &Hub{
		broker: b,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*websocket.Conn]bool),
		done:    make(chan struct{}),
	}
}

// Start subscribes to the broker and begins forwarding events. It returns
// immediately; forwarding runs until Stop is called.
func (h *Hub) Start() {
	ch, cancel := h.broker.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				h.broadcast(ev)
			case <-h.done:
				return
			}
		}
	}()
}

// Stop ends forwarding and disconnects all clients.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// HandleWS upgrades the connection and keeps it registered until the
// client goes away. Inbound messages are read only as keepalive.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("events: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	h.clientsMu.Lock()
	h.clients[conn] = true
	h.clientsMu.Unlock()

	defer func() {
		h.clientsMu.Lock()
		delete(h.clients, conn)
		h.clientsMu.Unlock()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// broadcast writes the event to every client, dropping clients whose
// connection errors.
func (h *Hub) broadcast(ev CoverUpdated) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for conn := range h.clients {
		if err := conn.WriteJSON(ev); err != nil {
			log.Warnf("events: failed to push cover update, dropping client: %v", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// ClientCount returns the number of connected websocket clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}
