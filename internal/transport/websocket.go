package transport

import (
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"tracktweak/internal/log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 2 * time.Second
	broadcastDepth = 64
)

// hello is the first message every client receives.
type hello struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
	MeterID  string `json:"meterId"`
}

// WebSocketTransport implements the Transport interface by broadcasting to
// every connected WebSocket client. It is an http.Handler; mount it on the
// router at the websocket path.
type WebSocketTransport struct {
	meterID   string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]string // Connection to client ID.
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once
}

// NewWebSocketTransport creates a transport and starts its broadcast loop.
// allowedOrigins lists the accepted Origin headers; "*" or an empty list
// accepts any origin.
func NewWebSocketTransport(meterID string, allowedOrigins []string) *WebSocketTransport {
	wst := &WebSocketTransport{
		meterID: meterID,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		clients:   make(map[*websocket.Conn]string),
		broadcast: make(chan any, broadcastDepth),
		done:      make(chan struct{}),
	}

	go wst.handleBroadcasts()
	return wst
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser client.
		}
		return slices.ContainsFunc(allowed, func(a string) bool {
			return strings.EqualFold(a, origin)
		})
	}
}

// ServeHTTP upgrades the connection and registers the client.
func (wst *WebSocketTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	clientID := uuid.NewString()

	// Register under the lock so the greeting cannot interleave with a broadcast.
	wst.clientsMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(hello{Type: "hello", ClientID: clientID, MeterID: wst.meterID}); err != nil {
		wst.clientsMu.Unlock()
		conn.Close()
		return
	}
	wst.clients[conn] = clientID
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	log.Infof("WebSocketTransport: Client %s connected, total: %d", clientID, total)

	// Handle disconnect; clients never send anything meaningful.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.remove(conn)
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) remove(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	clientID, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	conn.Close()
	if ok {
		log.Infof("WebSocketTransport: Client %s disconnected, total: %d", clientID, total)
	}
}

// handleBroadcasts sends messages to all connected clients
func (wst *WebSocketTransport) handleBroadcasts() {
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			wst.clientsMu.Lock()
			for client, clientID := range wst.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteJSON(data); err != nil {
					log.Warnf("WebSocketTransport: Error sending to client %s: %v", clientID, err)
					client.Close()
					delete(wst.clients, client)
				}
			}
			wst.clientsMu.Unlock()
		}
	}
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Send queues data for every connected client. When the queue is full the
// message is dropped; the next poll supersedes it anyway.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case wst.broadcast <- data:
	default:
	}
	return nil
}

// Close disconnects every client and stops the broadcast loop.
func (wst *WebSocketTransport) Close() error {
	wst.closeOnce.Do(func() {
		close(wst.done)

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]string)
		wst.clientsMu.Unlock()
	})
	return nil
}

// Ensure WebSocketTransport satisfies the interfaces
var (
	_ Transport    = (*WebSocketTransport)(nil)
	_ http.Handler = (*WebSocketTransport)(nil)
)
