package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"iluminize-go-home/internal/light"
)

// WSHub manages WebSocket connections, broadcasts light events and routes
// replies to single clients.
type WSHub struct {
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
	logger  *slog.Logger

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan any
	direct     chan directMsg

	done     chan struct{}
	stopOnce sync.Once
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// directMsg is a message for one client.
type directMsg struct {
	client *wsClient
	msg    any
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub(logger *slog.Logger) *WSHub {
	return &WSHub{
		clients:    make(map[*wsClient]struct{}),
		logger:     logger,
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan any, 256),
		direct:     make(chan directMsg, 64),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop. Only Run closes client send channels.
func (h *WSHub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client connected", "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client)
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client disconnected", "total", total)

		case dm := <-h.direct:
			data, ok := h.marshal(dm.msg)
			if !ok {
				continue
			}
			h.mu.Lock()
			if _, ok := h.clients[dm.client]; ok {
				select {
				case dm.client.send <- data:
				default:
					h.drop(dm.client)
					h.logger.Warn("ws client evicted (too slow)")
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, ok := h.marshal(msg)
			if !ok {
				continue
			}
			h.mu.Lock()
			var slow []*wsClient
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					slow = append(slow, client)
				}
			}
			for _, client := range slow {
				h.drop(client)
				h.logger.Warn("ws client evicted (too slow)")
			}
			h.mu.Unlock()
		}
	}
}

// drop removes a client and closes its send channel. Callers hold mu.
func (h *WSHub) drop(client *wsClient) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *WSHub) marshal(msg any) ([]byte, bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("ws marshal", "err", err)
		return nil, false
	}
	return data, true
}

// Stop signals the hub to shut down. Safe to call multiple times.
func (h *WSHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Broadcast sends a message to all connected clients.
func (h *WSHub) Broadcast(msg any) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws broadcast channel full, dropping message")
	}
}

// SendTo sends a message to one client if it is still connected.
func (h *WSHub) SendTo(client *wsClient, msg any) {
	select {
	case h.direct <- directMsg{client: client, msg: msg}:
	case <-h.done:
	default:
		h.logger.Warn("ws direct channel full, dropping message")
	}
}

// Clients returns the number of connected clients.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// wsCommand is a light command sent by a client.
type wsCommand struct {
	ID       int    `json:"id,omitempty"`
	Type     string `json:"type"`
	EntityID string `json:"entity_id"`
	light.TurnOnParams
}

// wsResult answers a wsCommand.
type wsResult struct {
	ID      int          `json:"id,omitempty"`
	Type    string       `json:"type"`
	Success bool         `json:"success"`
	State   *light.State `json:"state,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(s.allowedOrigins) > 0 {
		opts.OriginPatterns = s.allowedOrigins
	}
	// Without allowedOrigins, nhooyr defaults to a same-origin check.

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Error("ws accept", "err", err)
		return
	}
	conn.SetReadLimit(4096)

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	select {
	case s.wsHub.register <- client:
	case <-s.wsHub.done:
		conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}

	s.wsHub.SendTo(client, light.Event{Type: "snapshot", Data: s.lights.Entities()})

	go s.wsWritePump(client)
	s.wsReadPump(client)
}

func (s *Server) wsWritePump(client *wsClient) {
	for msg := range client.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := client.conn.Write(ctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			return
		}
	}
	client.conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) wsReadPump(client *wsClient) {
	defer func() {
		select {
		case s.wsHub.unregister <- client:
		case <-s.wsHub.done:
			client.conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-s.wsHub.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		typ, data, err := client.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		s.wsHub.SendTo(client, s.handleWSCommand(ctx, data))
	}
}

// handleWSCommand runs one client command and builds its result.
func (s *Server) handleWSCommand(ctx context.Context, data []byte) wsResult {
	var cmd wsCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return wsResult{Type: "result", Error: "invalid message"}
	}
	res := wsResult{ID: cmd.ID, Type: "result"}

	var (
		st  light.State
		err error
	)
	switch cmd.Type {
	case "turn_on":
		st, err = s.lights.TurnOn(ctx, cmd.EntityID, cmd.TurnOnParams)
	case "turn_off":
		st, err = s.lights.TurnOff(ctx, cmd.EntityID)
	case "toggle":
		st, err = s.lights.Toggle(ctx, cmd.EntityID)
	default:
		res.Error = "unknown command: " + cmd.Type
		return res
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.State = &st
	return res
}
