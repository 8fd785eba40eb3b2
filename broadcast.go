package main

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// ClientManager tracks connected WebSocket clients and fans out
// appointment events to them.
type ClientManager struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewClientManager creates a new client manager
func NewClientManager() *ClientManager {
	return &ClientManager{clients: make(map[*websocket.Conn]bool)}
}

// Add registers a connected client
func (c *ClientManager) Add(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[conn] = true
	log.Printf("🔌 WebSocket client connected (total: %d)", len(c.clients))
}

// Remove unregisters and closes a client connection
func (c *ClientManager) Remove(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.clients[conn]; ok {
		delete(c.clients, conn)
		conn.Close()
		log.Printf("🔌 WebSocket client disconnected (total: %d)", len(c.clients))
	}
}

// Broadcast sends an event to every connected client. Connections that
// fail the write are dropped.
func (c *ClientManager) Broadcast(ev AppointmentEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadClients := []*websocket.Conn{}
	for conn := range c.clients {
		if err := conn.WriteJSON(ev); err != nil {
			deadClients = append(deadClients, conn)
		}
	}

	for _, conn := range deadClients {
		delete(c.clients, conn)
		conn.Close()
	}
}
