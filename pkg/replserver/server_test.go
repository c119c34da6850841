package replserver

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestServerEvaluatesOverWebSocket(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	ts := httptest.NewServer(Handler(hub, "/repl"))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/repl"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(Frame{Input: "(+ 1 2)"}))

	var out Frame
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&out))
	require.Equal(t, "", out.Error)
	require.Equal(t, "3", out.Result)
}

func TestServerSessionsAreIsolated(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	ts := httptest.NewServer(Handler(hub, "/repl"))
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/repl"

	wsA, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer wsA.Close()
	wsB, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer wsB.Close()

	require.NoError(t, wsA.WriteJSON(Frame{Input: "(def x 10)"}))
	var outA Frame
	require.NoError(t, wsA.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, wsA.ReadJSON(&outA))

	require.NoError(t, wsB.WriteJSON(Frame{Input: "x"}))
	var outB Frame
	require.NoError(t, wsB.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, wsB.ReadJSON(&outB))
	require.Contains(t, outB.Error, "undefined variable")
}
