package replserver

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes the REPL over a single WebSocket endpoint, for
// `lispc repl --ws :PORT`.
type Server struct {
	hub  *Hub
	http *http.Server
}

// New returns a Server listening on addr (e.g. ":4242") that upgrades
// every request on path (default "/repl") to a WebSocket REPL
// connection.
func New(addr, path string) *Server {
	hub := NewHub()
	return &Server{
		hub:  hub,
		http: &http.Server{Addr: addr, Handler: Handler(hub, path)},
	}
}

// Handler returns an http.Handler that upgrades requests on path
// (default "/repl") to WebSocket REPL connections registered with hub.
// Exposed separately from New so tests (and callers embedding the REPL
// endpoint in a larger mux) can wire it without binding a real listener.
func Handler(hub *Hub, path string) http.Handler {
	if path == "" {
		path = "/repl"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := newConnection(hub, ws)
		go conn.serve()
	})
	return mux
}

// ListenAndServe starts the hub's dispatch loop and blocks serving
// WebSocket connections until the process is interrupted or Shutdown is
// called from another goroutine.
func (s *Server) ListenAndServe() error {
	go s.hub.Run()
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown closes every live REPL connection and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Shutdown()
	return s.http.Shutdown(ctx)
}

// ActiveSessions reports the number of currently connected REPL clients.
func (s *Server) ActiveSessions() int {
	return s.hub.Count()
}
