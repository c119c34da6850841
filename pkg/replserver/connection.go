package replserver

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lispc/lispc/pkg/compiler"
	"github.com/lispc/lispc/pkg/native"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Frame is the wire message exchanged with a WebSocket REPL client: the
// client sends {"input": "(+ 1 2)"} and receives back either
// {"result": "3"} or {"error": "..."}.
type Frame struct {
	Input  string `json:"input,omitempty"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Connection is one browser's REPL session: its own compiler.Session (so
// one client's defs/macros never leak into another's), layered over a
// single WebSocket.
type Connection struct {
	id      string
	hub     *Hub
	ws      *websocket.Conn
	session *compiler.Session
	send    chan Frame
}

func newConnection(hub *Hub, ws *websocket.Conn) *Connection {
	session := compiler.NewSession()
	native.Register(session.VM())

	return &Connection{
		id:      uuid.NewString(),
		hub:     hub,
		ws:      ws,
		session: session,
		send:    make(chan Frame, 16),
	}
}

// Close closes the underlying WebSocket connection.
func (c *Connection) Close() {
	c.ws.Close()
}

// serve registers c with its hub and runs its read/write pumps until the
// connection closes. One goroutine owns the socket write side, the other
// the read side, to avoid concurrent writes on a single
// gorilla/websocket connection.
func (c *Connection) serve() {
	c.hub.register <- c
	go c.writePump()
	c.readPump()
}

func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.ws.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var in Frame
		if err := c.ws.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[replserver] session %s read error: %v", c.id, err)
			}
			return
		}

		result, err := c.session.RunString("<ws:"+c.id+">", in.Input)
		if err != nil {
			c.send <- Frame{Error: err.Error()}
			continue
		}
		if result == nil {
			c.send <- Frame{Result: "nil"}
			continue
		}
		c.send <- Frame{Result: result.String()}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
