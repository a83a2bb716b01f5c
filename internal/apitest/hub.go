package apitest

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans push frames out to every connected websocket client.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	joined  chan struct{}
	tokens  []string
}

func NewHub() *Hub {
	return &Hub{
		clients: map[*websocket.Conn]struct{}{},
		joined:  make(chan struct{}, 16),
	}
}

func (h *Hub) add(conn *websocket.Conn, token string) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.tokens = append(h.tokens, token)
	h.mu.Unlock()
	select {
	case h.joined <- struct{}{}:
	default:
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Tokens lists the credential presented by every connection so far.
func (h *Hub) Tokens() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.tokens...)
}

// WaitClients blocks until at least n clients are connected or timeout
// elapses.
func (h *Hub) WaitClients(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if h.Clients() >= n {
			return true
		}
		select {
		case <-h.joined:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			return h.Clients() >= n
		}
	}
}

func (h *Hub) Emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	frame, err := json.Marshal(struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}{Event: event, Data: data})
	if err != nil {
		panic(err)
	}
	h.EmitRaw(frame)
}

// EmitRaw sends frame verbatim, for malformed-frame tests.
func (h *Hub) EmitRaw(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}

// DropAll closes every connection as a server restart would.
func (h *Hub) DropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.Close()
		delete(h.clients, conn)
	}
}

// pushSocket accepts a push subscription. The credential travels in the
// token query parameter.
func (s *Server) pushSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	s.mu.Lock()
	_, ok := s.tokens[token]
	s.mu.Unlock()
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "invalid token")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.Hub.add(conn, token)
	defer func() {
		s.Hub.remove(conn)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
