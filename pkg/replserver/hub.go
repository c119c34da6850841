// Package replserver exposes the REPL (pkg/repl) over a WebSocket, for
// browser-based front-ends (`lispc repl --ws :PORT`). A registration
// channel feeds a single-goroutine hub loop, with one
// read-pump/write-pump goroutine pair per connection. Each connection
// owns its own isolated compiler.Session, so there is nothing to
// broadcast between connections.
package replserver

import (
	"log"
	"sync"
)

// Hub tracks the set of live REPL connections so that Shutdown can close
// them all, and so connection counts are observable (pkg/metrics).
type Hub struct {
	mu          sync.Mutex
	connections map[*Connection]bool
	register    chan *Connection
	unregister  chan *Connection
	shutdown    chan struct{}
	done        chan struct{}
}

// NewHub returns an idle Hub; call Run to start its dispatch loop.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Run processes register/unregister events until Shutdown is called.
// Intended to run in its own goroutine for the lifetime of the server.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn] = true
			h.mu.Unlock()
			log.Printf("[replserver] session %s connected (%d active)", conn.id, h.Count())
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
			}
			h.mu.Unlock()
			log.Printf("[replserver] session %s disconnected (%d active)", conn.id, h.Count())
		case <-h.shutdown:
			h.mu.Lock()
			for conn := range h.connections {
				conn.Close()
			}
			h.mu.Unlock()
			return
		}
	}
}

// Count reports the number of currently registered connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

// Shutdown stops Run and closes every live connection, blocking until
// Run has actually returned.
func (h *Hub) Shutdown() {
	close(h.shutdown)
	<-h.done
}
