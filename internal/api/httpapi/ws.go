package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsMaxMessage = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients connect from arbitrary origins; auth is handled
	// upstream of this service.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsTransport adapts a gorilla connection to the registry transport.
// Gorilla permits one concurrent writer, so writes are serialized here.
type wsTransport struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (t *wsTransport) WriteJSON(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return t.ws.WriteJSON(v)
}

func (t *wsTransport) Ping(deadline time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ws.WriteControl(websocket.PingMessage, nil, deadline)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteWait))
	return t.ws.Close()
}

type clientMessage struct {
	Type string `json:"type"`
}

// handleConnect upgrades the request and attaches the socket as an
// observer of the session's event stream.
func (a *API) handleConnect(w http.ResponseWriter, r *http.Request) {
	sessionId := chi.URLParam(r, "sessionId")

	if _, err := a.assembler.Snapshot(sessionId); err != nil {
		writeDomainError(w, err)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn().Err(err).Str("sessionId", sessionId).Msg("Websocket upgrade failed")
		return
	}

	t := &wsTransport{ws: ws}
	conn, err := a.registry.Attach(sessionId, t)
	if err != nil {
		ws.Close()
		return
	}

	// Read loop. The client sends pongs in response to our pings and may
	// send its own {"type":"ping"} keepalives.
	ws.SetReadLimit(wsMaxMessage)
	ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		conn.Heartbeat()
		ws.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	go func() {
		defer conn.Close()
		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			ws.SetReadDeadline(time.Now().Add(wsPongWait))
			var msg clientMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			if msg.Type == "ping" {
				conn.Heartbeat()
				_ = t.WriteJSON(map[string]string{"type": "pong"})
			}
		}
	}()
}
